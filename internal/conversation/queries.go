package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
)

// query describes one assignment listing.
type query struct {
	name    string
	header  string
	empty   string
	window  func(now time.Time) domain.Window
	overdue bool
}

func (d *Dispatcher) todayQuery() query {
	return query{
		name:   "today",
		header: "📅 Due today",
		empty:  msgEmptyToday,
		window: func(now time.Time) domain.Window {
			day := startOfDay(now)
			return domain.Window{From: day, To: day.AddDate(0, 0, 1)}
		},
	}
}

// weekQuery covers tomorrow through the next seven days.
func (d *Dispatcher) weekQuery() query {
	return query{
		name:   "week",
		header: "🗓️ Due this week",
		empty:  msgEmptyWeek,
		window: func(now time.Time) domain.Window {
			day := startOfDay(now)
			return domain.Window{From: day.AddDate(0, 0, 1), To: day.AddDate(0, 0, 8)}
		},
	}
}

func (d *Dispatcher) monthQuery() query {
	return query{
		name:   "month",
		header: "📆 Due this month",
		empty:  msgEmptyMonth,
		window: func(now time.Time) domain.Window {
			day := startOfDay(now)
			first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())
			return domain.Window{From: day, To: first.AddDate(0, 1, 0)}
		},
	}
}

func (d *Dispatcher) overdueQuery() query {
	lookback := d.opts.OverdueLookbackDays
	return query{
		name:    "overdue",
		header:  "⚠️ Overdue",
		empty:   msgEmptyOverdue,
		overdue: true,
		window: func(now time.Time) domain.Window {
			return domain.Window{From: startOfDay(now).AddDate(0, 0, -lookback), To: now}
		},
	}
}

func (d *Dispatcher) upcomingQuery() query {
	days := d.opts.UpcomingDays
	return query{
		name:   "upcoming",
		header: "📋 Upcoming",
		empty:  fmt.Sprintf(msgEmptyUpcoming, days),
		window: func(now time.Time) domain.Window {
			return domain.Window{From: now, To: now.AddDate(0, 0, days)}
		},
	}
}

func (d *Dispatcher) tasksToday(ctx context.Context, user *domain.User) error {
	return d.runQuery(ctx, user, d.todayQuery())
}

func (d *Dispatcher) tasksWeek(ctx context.Context, user *domain.User) error {
	return d.runQuery(ctx, user, d.weekQuery())
}

func (d *Dispatcher) tasksMonth(ctx context.Context, user *domain.User) error {
	return d.runQuery(ctx, user, d.monthQuery())
}

func (d *Dispatcher) tasksOverdue(ctx context.Context, user *domain.User) error {
	return d.runQuery(ctx, user, d.overdueQuery())
}

func (d *Dispatcher) tasksUpcoming(ctx context.Context, user *domain.User) error {
	return d.runQuery(ctx, user, d.upcomingQuery())
}

func (d *Dispatcher) runQuery(ctx context.Context, user *domain.User, q query) error {
	now := d.now().In(d.opts.Location)
	items, err := d.records.FetchAssignments(ctx, user.UserID, q.window(now))
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		d.ask(ctx, user.UserID, msgNotConnected, connectReplies())
		return nil
	case errors.Is(err, domain.ErrCredentialRejected):
		d.ask(ctx, user.UserID, msgCredentialExpired, connectReplies())
		return nil
	case err != nil:
		slog.Error("Failed to fetch assignments", "user_id", user.UserID, "query", q.name, "error", err)
		d.say(ctx, user.UserID, msgQueryFailed)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}

	if len(items) == 0 {
		d.say(ctx, user.UserID, q.empty)
	} else {
		d.say(ctx, user.UserID, formatAssignments(q.header, items, d.opts.UpcomingLimit, now, q.overdue))
	}
	d.showMainMenu(ctx, user.UserID)
	return nil
}
