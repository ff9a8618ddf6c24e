package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

func (d *Dispatcher) mainMenu(ctx context.Context, user *domain.User) error {
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) help(ctx context.Context, user *domain.User) error {
	d.say(ctx, user.UserID, msgHelp)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) about(ctx context.Context, user *domain.User) error {
	d.say(ctx, user.UserID, msgAbout)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) settings(ctx context.Context, user *domain.User) error {
	var b strings.Builder
	b.WriteString("⚙️ Settings\n\n")

	if user.HasCredential() {
		b.WriteString("🔗 Canvas: connected\n")
		if user.CredentialBaseURL != "" {
			fmt.Fprintf(&b, "🌐 %s\n", user.CredentialBaseURL)
		}
		if user.LastSyncAt != nil {
			fmt.Fprintf(&b, "🔄 Linked %s\n", user.LastSyncAt.In(d.opts.Location).Format(shortLayout))
		}
	} else {
		b.WriteString("🔗 Canvas: not connected\n")
	}

	if user.Premium {
		b.WriteString("💎 Plan: Premium (unlimited tasks)\n")
	} else if limit := d.opts.MaxFreeTasksPerMonth; limit > 0 {
		used, err := d.store.CountTasksSince(ctx, user.UserID, d.monthStart())
		if err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		fmt.Fprintf(&b, "🆓 Plan: Free (%d of %d tasks this month)\n", used, limit)
	} else {
		b.WriteString("🆓 Plan: Free\n")
	}
	fmt.Fprintf(&b, "🕐 Timezone: %s", d.opts.Location)

	replies := []messenger.QuickReply{messenger.NewQuickReply("🔗 Connect Canvas", CodeConnectCanvas)}
	if user.HasCredential() {
		replies[0] = messenger.NewQuickReply("🔑 Update token", CodeConnectCanvas)
		replies = append(replies, messenger.NewQuickReply("Disconnect", CodeDisconnectCanvas))
	}
	if !user.Premium {
		replies = append(replies, messenger.NewQuickReply("💎 Premium", CodeShowPremium))
	}
	replies = append(replies, messenger.NewQuickReply("Main Menu", CodeMainMenu))

	d.ask(ctx, user.UserID, b.String(), replies)
	return nil
}

// monthStart is midnight on the first of the current month.
func (d *Dispatcher) monthStart() time.Time {
	now := d.now().In(d.opts.Location)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, d.opts.Location)
}
