// Package conversation routes inbound Messenger events through the
// onboarding, credential, task and query flows.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/easely-bot/internal/config"
	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
	"github.com/ashureev/easely-bot/internal/metrics"
)

// EventKind distinguishes typed text from button and quick reply taps.
type EventKind string

// Event kinds.
const (
	EventText     EventKind = "text"
	EventPostback EventKind = "postback"
)

// Event is one inbound user action.
type Event struct {
	Kind EventKind
	Text string
	Code string
}

// TextEvent builds a free-text event.
func TextEvent(text string) Event { return Event{Kind: EventText, Text: text} }

// PostbackEvent builds a postback event.
func PostbackEvent(code string) Event { return Event{Kind: EventPostback, Code: code} }

// Store is the user directory and session store the dispatcher needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	CreateUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error)
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
	CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error)

	GetSession(ctx context.Context, userID, key string) (string, bool, error)
	SetSession(ctx context.Context, userID, key, value string) error
	DeleteSession(ctx context.Context, userID, key string) error
	ClearSessions(ctx context.Context, userID string) error
}

// Records reads and writes a user's coursework.
type Records interface {
	TestCredential(ctx context.Context, token, baseURL string) (*domain.Identity, error)
	FetchAssignments(ctx context.Context, userID string, w domain.Window) ([]domain.Assignment, error)
	CreateTask(ctx context.Context, userID string, draft domain.TaskDraft) (*domain.CreatedTask, error)
}

// Outbound sends messages back to the user.
type Outbound interface {
	SendText(ctx context.Context, userID, text string) error
	SendQuickReplies(ctx context.Context, userID, text string, replies []messenger.QuickReply) error
	SendButtons(ctx context.Context, userID, text string, buttons []messenger.Button) error
	SendTypingIndicator(ctx context.Context, userID string, on bool) error
}

// Options tunes dialogue behaviour.
type Options struct {
	Location             *time.Location
	PromptDelay          time.Duration
	UpcomingDays         int
	UpcomingLimit        int
	OverdueLookbackDays  int
	MaxFreeTasksPerMonth int
	PremiumCodes         []string
	DefaultBaseURL       string
	PrivacyPolicyURL     string
	TermsURL             string
	TutorialURL          string
	UpgradeURL           string
}

// OptionsFromConfig maps application config onto dispatcher options.
func OptionsFromConfig(cfg *config.Config) Options {
	c := cfg.Conversation
	return Options{
		Location:             cfg.Location(),
		PromptDelay:          c.PromptDelay,
		UpcomingDays:         c.UpcomingDays,
		UpcomingLimit:        c.UpcomingLimit,
		OverdueLookbackDays:  c.OverdueLookbackDays,
		MaxFreeTasksPerMonth: c.MaxFreeTasksPerMonth,
		PremiumCodes:         c.PremiumCodes,
		DefaultBaseURL:       cfg.Canvas.BaseURL,
		PrivacyPolicyURL:     c.PrivacyPolicyURL,
		TermsURL:             c.TermsURL,
		TutorialURL:          c.TutorialURL,
		UpgradeURL:           c.UpgradeURL,
	}
}

// Dispatcher is the single entry point for inbound events.
type Dispatcher struct {
	store     Store
	records   Records
	out       Outbound
	scheduler *Scheduler
	opts      Options
	now       func() time.Time
}

// New creates a dispatcher.
func New(store Store, records Records, out Outbound, scheduler *Scheduler, opts Options) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.UpcomingDays <= 0 {
		opts.UpcomingDays = 30
	}
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = 10
	}
	if opts.OverdueLookbackDays <= 0 {
		opts.OverdueLookbackDays = 14
	}
	return &Dispatcher{
		store:     store,
		records:   records,
		out:       out,
		scheduler: scheduler,
		opts:      opts,
		now:       time.Now,
	}
}

// Dispatch handles one event for userID. It never panics and reports
// failures to the user as an apology.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, ev Event) {
	start := time.Now()
	d.typing(ctx, userID, true)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatch panicked", "user_id", userID, "kind", ev.Kind, "panic", r)
			metrics.DispatchErrorsTotal.Inc()
			d.say(ctx, userID, msgApology)
		}
		d.typing(ctx, userID, false)
		metrics.DispatchDuration.WithLabelValues(string(ev.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := d.dispatch(ctx, userID, ev); err != nil {
		slog.Error("Failed to handle event", "user_id", userID, "kind", ev.Kind, "code", ev.Code, "error", err)
		metrics.DispatchErrorsTotal.Inc()
		d.say(ctx, userID, msgApology)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, userID string, ev Event) error {
	user, isNew, err := d.ensureUser(ctx, userID)
	if err != nil {
		return err
	}

	state, err := d.state(ctx, userID)
	if err != nil {
		return err
	}

	if state.AwaitingInput() {
		return d.handleFlow(ctx, user, state, ev)
	}

	if ev.Kind == EventPostback {
		return d.handlePostback(ctx, user, ev.Code)
	}

	if state == domain.StateWaitingForPremiumCode {
		return d.handlePremiumCode(ctx, user, ev.Text)
	}

	if isNew || user.NeedsOnboarding() {
		return d.resumeOnboarding(ctx, user, state)
	}

	return d.classify(ctx, user, ev.Text)
}

// ensureUser loads or creates the user. The second result is true for a
// user seen for the first time.
func (d *Dispatcher) ensureUser(ctx context.Context, userID string) (*domain.User, bool, error) {
	user, err := d.store.GetUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		user, err = d.store.CreateUser(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("create user: %w", err)
		}
		slog.Info("New user", "user_id", userID)
		return user, true, nil
	}

	if err := d.store.UpdateLastSeen(ctx, userID, d.now()); err != nil {
		slog.Warn("Failed to update last seen", "user_id", userID, "error", err)
	}
	return user, false, nil
}

// handleFlow routes any event received while a step waits for input.
func (d *Dispatcher) handleFlow(ctx context.Context, user *domain.User, state domain.State, ev Event) error {
	switch state {
	case domain.StateWaitingForToken:
		return d.handleTokenInput(ctx, user, ev)
	case domain.StateCreatingTaskTitle:
		return d.handleTaskTitle(ctx, user, ev)
	case domain.StateCreatingTaskDate:
		return d.handleTaskDate(ctx, user, ev)
	case domain.StateCreatingTaskTime:
		return d.handleTaskTime(ctx, user, ev)
	case domain.StateCreatingTaskDescription:
		return d.handleTaskDescription(ctx, user, ev)
	}
	return fmt.Errorf("no handler for state %q", state)
}

func (d *Dispatcher) state(ctx context.Context, userID string) (domain.State, error) {
	raw, ok, err := d.store.GetSession(ctx, userID, domain.SessionKeyState)
	if err != nil {
		return domain.StateIdle, fmt.Errorf("get state: %w", err)
	}
	if !ok {
		return domain.StateIdle, nil
	}
	state, known := domain.ParseState(raw)
	if !known {
		slog.Warn("Unknown conversation state, treating as idle", "user_id", userID, "state", raw)
	}
	return state, nil
}

func (d *Dispatcher) setState(ctx context.Context, userID string, state domain.State) error {
	if state == domain.StateIdle {
		return d.clearState(ctx, userID)
	}
	if err := d.store.SetSession(ctx, userID, domain.SessionKeyState, string(state)); err != nil {
		return fmt.Errorf("set state %s: %w", state, err)
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(state)).Inc()
	return nil
}

func (d *Dispatcher) clearState(ctx context.Context, userID string) error {
	if err := d.store.DeleteSession(ctx, userID, domain.SessionKeyState); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(domain.StateIdle)).Inc()
	return nil
}

type entryReasonKey struct{}

// withEntryReason tags ctx with what triggered the current handler, such as
// "postback:ADD_NEW_TASK" or "text:add_task".
func withEntryReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, entryReasonKey{}, reason)
}

func entryReason(ctx context.Context) string {
	reason, _ := ctx.Value(entryReasonKey{}).(string)
	return reason
}

// enterFlow moves the user into state and records the entry reason carried by ctx.
func (d *Dispatcher) enterFlow(ctx context.Context, userID string, state domain.State) error {
	if err := d.setState(ctx, userID, state); err != nil {
		return err
	}
	reason := entryReason(ctx)
	if reason == "" {
		return nil
	}
	if err := d.store.SetSession(ctx, userID, domain.SessionKeyEntryReason, reason); err != nil {
		slog.Warn("Failed to record entry reason", "user_id", userID, "state", state, "error", err)
	}
	return nil
}

// resetSessions drops the state and every draft field.
func (d *Dispatcher) resetSessions(ctx context.Context, userID string) error {
	if err := d.store.ClearSessions(ctx, userID); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	metrics.StateTransitionsTotal.WithLabelValues(string(domain.StateIdle)).Inc()
	return nil
}

// Send failures are logged and never abort a flow.

func (d *Dispatcher) say(ctx context.Context, userID, text string) {
	if err := d.out.SendText(ctx, userID, text); err != nil {
		slog.Warn("Failed to send text", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) ask(ctx context.Context, userID, text string, replies []messenger.QuickReply) {
	if err := d.out.SendQuickReplies(ctx, userID, text, replies); err != nil {
		slog.Warn("Failed to send quick replies", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) buttons(ctx context.Context, userID, text string, buttons ...messenger.Button) {
	if err := d.out.SendButtons(ctx, userID, text, buttons); err != nil {
		slog.Warn("Failed to send buttons", "user_id", userID, "error", err)
	}
}

func (d *Dispatcher) typing(ctx context.Context, userID string, on bool) {
	if err := d.out.SendTypingIndicator(ctx, userID, on); err != nil {
		slog.Debug("Failed to send typing indicator", "user_id", userID, "on", on, "error", err)
	}
}

func (d *Dispatcher) showMainMenu(ctx context.Context, userID string) {
	d.ask(ctx, userID, msgMainMenu, mainMenuReplies())
}

// isCancel reports whether text is one of the escape words.
func isCancel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "cancel", "back", "menu", "stop":
		return true
	}
	return false
}
