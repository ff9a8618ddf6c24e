package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

const (
	minTitleLength       = 2
	maxTitleLength       = 200
	maxDescriptionLength = 1000
)

func (d *Dispatcher) startTask(ctx context.Context, user *domain.User) error {
	if limit := d.opts.MaxFreeTasksPerMonth; !user.Premium && limit > 0 {
		count, err := d.store.CountTasksSince(ctx, user.UserID, d.monthStart())
		if err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		if count >= limit {
			d.ask(ctx, user.UserID, fmt.Sprintf(msgTaskLimitReached, limit), []messenger.QuickReply{
				messenger.NewQuickReply("💎 Premium", CodeShowPremium),
				messenger.NewQuickReply("Main Menu", CodeMainMenu),
			})
			return nil
		}
	}

	if err := d.store.ClearSessions(ctx, user.UserID); err != nil {
		return fmt.Errorf("reset draft: %w", err)
	}
	if err := d.enterFlow(ctx, user.UserID, domain.StateCreatingTaskTitle); err != nil {
		return err
	}
	d.ask(ctx, user.UserID, msgAskTitle, cancelReply())
	return nil
}

// flowCancelled reports whether ev abandons the task flow.
func flowCancelled(ev Event) bool {
	if ev.Kind == EventPostback {
		return ev.Code == CodeCancelFlow || ev.Code == CodeMainMenu
	}
	return isCancel(ev.Text)
}

func (d *Dispatcher) cancelTask(ctx context.Context, user *domain.User) error {
	if err := d.resetSessions(ctx, user.UserID); err != nil {
		return err
	}
	d.say(ctx, user.UserID, msgTaskCancelled)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

// abandonTask clears the flow and the partial draft after a failed write,
// then returns err.
func (d *Dispatcher) abandonTask(ctx context.Context, userID string, err error) error {
	if rerr := d.resetSessions(ctx, userID); rerr != nil {
		slog.Warn("Failed to clear task draft", "user_id", userID, "error", rerr)
	}
	return err
}

func (d *Dispatcher) handleTaskTitle(ctx context.Context, user *domain.User, ev Event) error {
	if flowCancelled(ev) {
		return d.cancelTask(ctx, user)
	}
	if ev.Kind == EventPostback {
		d.ask(ctx, user.UserID, msgAskTitle, cancelReply())
		return nil
	}

	title := strings.TrimSpace(ev.Text)
	if utf8.RuneCountInString(title) < minTitleLength {
		d.ask(ctx, user.UserID, msgTitleTooShort, cancelReply())
		return nil
	}
	title = truncate(title, maxTitleLength)

	if err := d.store.SetSession(ctx, user.UserID, domain.SessionKeyTaskTitle, title); err != nil {
		return d.abandonTask(ctx, user.UserID, fmt.Errorf("save title: %w", err))
	}
	if err := d.setState(ctx, user.UserID, domain.StateCreatingTaskDate); err != nil {
		return d.abandonTask(ctx, user.UserID, err)
	}
	d.ask(ctx, user.UserID, msgAskDate, datePickerReplies())
	return nil
}

func (d *Dispatcher) handleTaskDate(ctx context.Context, user *domain.User, ev Event) error {
	if flowCancelled(ev) {
		return d.cancelTask(ctx, user)
	}

	input := ev.Text
	if ev.Kind == EventPostback {
		switch ev.Code {
		case CodeDateToday:
			input = "today"
		case CodeDateTomorrow:
			input = "tomorrow"
		case CodeDateNextWeek:
			input = "next week"
		case CodeDateCustom:
			d.ask(ctx, user.UserID, msgAskCustomDate, cancelReply())
			return nil
		default:
			d.ask(ctx, user.UserID, msgAskDate, datePickerReplies())
			return nil
		}
	}

	date, err := ParseDate(input, d.now().In(d.opts.Location))
	if errors.Is(err, errPastDate) {
		d.ask(ctx, user.UserID, msgDatePast, datePickerReplies())
		return nil
	}
	if err != nil {
		d.ask(ctx, user.UserID, msgDateInvalid, datePickerReplies())
		return nil
	}

	if err := d.store.SetSession(ctx, user.UserID, domain.SessionKeyTaskDate, date.Format(domain.DraftDateLayout)); err != nil {
		return d.abandonTask(ctx, user.UserID, fmt.Errorf("save date: %w", err))
	}
	if err := d.setState(ctx, user.UserID, domain.StateCreatingTaskTime); err != nil {
		return d.abandonTask(ctx, user.UserID, err)
	}
	d.ask(ctx, user.UserID, msgAskTime, timePickerReplies())
	return nil
}

func (d *Dispatcher) handleTaskTime(ctx context.Context, user *domain.User, ev Event) error {
	if flowCancelled(ev) {
		return d.cancelTask(ctx, user)
	}

	var (
		hhmm string
		ok   bool
	)
	if ev.Kind == EventPostback {
		hhmm, ok = parseTimeCode(ev.Code)
	} else {
		var err error
		hhmm, err = ParseTime(ev.Text)
		ok = err == nil
	}
	if !ok {
		d.ask(ctx, user.UserID, msgTimeInvalid, timePickerReplies())
		return nil
	}

	if err := d.store.SetSession(ctx, user.UserID, domain.SessionKeyTaskTime, hhmm); err != nil {
		return d.abandonTask(ctx, user.UserID, fmt.Errorf("save time: %w", err))
	}
	if err := d.setState(ctx, user.UserID, domain.StateCreatingTaskDescription); err != nil {
		return d.abandonTask(ctx, user.UserID, err)
	}
	d.ask(ctx, user.UserID, msgAskDescription, []messenger.QuickReply{
		messenger.NewQuickReply("Skip", CodeDescriptionSkip),
		messenger.NewQuickReply("Cancel", CodeCancelFlow),
	})
	return nil
}

func (d *Dispatcher) handleTaskDescription(ctx context.Context, user *domain.User, ev Event) error {
	if flowCancelled(ev) {
		return d.cancelTask(ctx, user)
	}

	var description string
	switch {
	case ev.Kind == EventPostback && ev.Code == CodeDescriptionSkip:
	case ev.Kind == EventPostback:
		d.ask(ctx, user.UserID, msgAskDescription, []messenger.QuickReply{
			messenger.NewQuickReply("Skip", CodeDescriptionSkip),
			messenger.NewQuickReply("Cancel", CodeCancelFlow),
		})
		return nil
	case strings.EqualFold(strings.TrimSpace(ev.Text), "skip"):
	default:
		description = truncate(strings.TrimSpace(ev.Text), maxDescriptionLength)
	}

	if err := d.store.SetSession(ctx, user.UserID, domain.SessionKeyTaskDescription, description); err != nil {
		return d.abandonTask(ctx, user.UserID, fmt.Errorf("save description: %w", err))
	}
	draft, err := d.loadDraft(ctx, user.UserID)
	if err != nil {
		return d.abandonTask(ctx, user.UserID, err)
	}

	created, createErr := d.records.CreateTask(ctx, user.UserID, draft)
	if err := d.resetSessions(ctx, user.UserID); err != nil {
		slog.Warn("Failed to clear task draft", "user_id", user.UserID, "error", err)
	}

	if createErr != nil {
		slog.Error("Failed to create task", "user_id", user.UserID, "error", createErr)
		d.say(ctx, user.UserID, fmt.Sprintf(msgTaskFailed, createErr.Error()))
		d.showMainMenu(ctx, user.UserID)
		return nil
	}

	slog.Info("Task created", "user_id", user.UserID, "task_id", created.ID, "synced", created.Synced)
	d.say(ctx, user.UserID, taskConfirmation(created, d.opts.Location))
	d.showMainMenu(ctx, user.UserID)
	return nil
}

// loadDraft reads the task fields collected so far.
func (d *Dispatcher) loadDraft(ctx context.Context, userID string) (domain.TaskDraft, error) {
	var draft domain.TaskDraft
	fields := []struct {
		key string
		dst *string
	}{
		{domain.SessionKeyTaskTitle, &draft.Title},
		{domain.SessionKeyTaskDate, &draft.Date},
		{domain.SessionKeyTaskTime, &draft.Time},
		{domain.SessionKeyTaskDescription, &draft.Description},
	}
	for _, f := range fields {
		v, _, err := d.store.GetSession(ctx, userID, f.key)
		if err != nil {
			return draft, fmt.Errorf("load draft %s: %w", f.key, err)
		}
		*f.dst = v
	}
	return draft, nil
}

func taskConfirmation(t *domain.CreatedTask, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, msgTaskCreated, t.Title, t.DueAt.In(loc).Format(dueLayout))
	if t.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s", t.Description)
	}
	b.WriteString("\n\n")
	if t.Synced {
		b.WriteString(msgTaskSynced)
	} else {
		b.WriteString(msgTaskLocal)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
