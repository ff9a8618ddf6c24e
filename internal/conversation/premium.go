package conversation

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

func (d *Dispatcher) showPremium(ctx context.Context, user *domain.User) error {
	if user.Premium {
		d.say(ctx, user.UserID, msgPremiumAlready)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}
	d.say(ctx, user.UserID, msgPremiumInfo)
	if d.opts.UpgradeURL != "" {
		d.buttons(ctx, user.UserID, msgPremiumLink, messenger.URLButton("Upgrade", d.opts.UpgradeURL))
	}
	d.ask(ctx, user.UserID, msgMainMenu, []messenger.QuickReply{
		messenger.NewQuickReply("I have a code", CodePremiumEnterCode),
		messenger.NewQuickReply("Maybe later", CodeSkipPremium),
	})
	return nil
}

func (d *Dispatcher) skipPremium(ctx context.Context, user *domain.User) error {
	d.say(ctx, user.UserID, msgSkipPremium)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) enterPremiumCode(ctx context.Context, user *domain.User) error {
	if user.Premium {
		d.say(ctx, user.UserID, msgPremiumAlready)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}
	if err := d.enterFlow(ctx, user.UserID, domain.StateWaitingForPremiumCode); err != nil {
		return err
	}
	d.ask(ctx, user.UserID, msgPremiumAskCode, cancelReply())
	return nil
}

// handlePremiumCode checks typed text against the configured activation codes.
func (d *Dispatcher) handlePremiumCode(ctx context.Context, user *domain.User, text string) error {
	if isCancel(text) {
		if err := d.clearState(ctx, user.UserID); err != nil {
			return err
		}
		d.say(ctx, user.UserID, msgPremiumCancelled)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}

	if len(d.opts.PremiumCodes) == 0 {
		if err := d.clearState(ctx, user.UserID); err != nil {
			return err
		}
		d.say(ctx, user.UserID, msgPremiumUnavailable)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}

	if !matchCode(text, d.opts.PremiumCodes) {
		d.ask(ctx, user.UserID, msgPremiumInvalid, cancelReply())
		return nil
	}

	if _, err := d.store.UpdateUser(ctx, user.UserID, domain.UserUpdate{Premium: domain.Ptr(true)}); err != nil {
		return fmt.Errorf("activate premium: %w", err)
	}
	if err := d.clearState(ctx, user.UserID); err != nil {
		return err
	}
	slog.Info("Premium activated", "user_id", user.UserID)
	d.say(ctx, user.UserID, msgPremiumActivated)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func matchCode(input string, codes []string) bool {
	got := []byte(strings.ToUpper(strings.TrimSpace(input)))
	matched := false
	for _, c := range codes {
		want := []byte(strings.ToUpper(strings.TrimSpace(c)))
		if subtle.ConstantTimeCompare(got, want) == 1 {
			matched = true
		}
	}
	return matched
}
