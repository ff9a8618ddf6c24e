package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

var testLoc = time.FixedZone("PHT", 8*60*60)

// Monday.
var testNow = time.Date(2025, time.March, 10, 9, 0, 0, 0, testLoc)

type memStore struct {
	mu        sync.Mutex
	users     map[string]*domain.User
	sessions  map[string]map[string]string
	updates   []domain.UserUpdate
	taskCount int

	getUserErr error
	updateErr  error
	sessionErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*domain.User),
		sessions: make(map[string]map[string]string),
	}
}

func (m *memStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getUserErr != nil {
		return nil, m.getUserErr
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateUser(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &domain.User{UserID: userID, CreatedAt: testNow}
	m.users[userID] = u
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateUser(_ context.Context, userID string, upd domain.UserUpdate) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	u, ok := m.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	m.updates = append(m.updates, upd)
	if upd.Onboarded != nil {
		u.Onboarded = *upd.Onboarded
	}
	if upd.Credential != nil {
		u.Credential = *upd.Credential
	}
	if upd.CredentialBaseURL != nil {
		u.CredentialBaseURL = *upd.CredentialBaseURL
	}
	if upd.CanvasUserID != nil {
		u.CanvasUserID = *upd.CanvasUserID
	}
	if upd.Premium != nil {
		u.Premium = *upd.Premium
	}
	if upd.LastSyncAt != nil {
		t := *upd.LastSyncAt
		u.LastSyncAt = &t
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastSeenAt = lastSeen
	}
	return nil
}

func (m *memStore) CountTasksSince(context.Context, string, time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskCount, nil
}

func (m *memStore) GetSession(_ context.Context, userID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions[userID][key]
	return v, ok, nil
}

func (m *memStore) SetSession(_ context.Context, userID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionErr != nil {
		return m.sessionErr
	}
	if m.sessions[userID] == nil {
		m.sessions[userID] = make(map[string]string)
	}
	m.sessions[userID][key] = value
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions[userID], key)
	return nil
}

func (m *memStore) ClearSessions(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *memStore) session(userID, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.sessions[userID][key]
	return v, ok
}

func (m *memStore) user(userID string) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[userID]
}

type fakeRecords struct {
	mu sync.Mutex

	identity  *domain.Identity
	testErr   error
	lastToken string
	lastBase  string

	assignments []domain.Assignment
	fetchErr    error
	fetchPanic  bool
	lastWindow  domain.Window
	fetchCalls  int

	drafts    []domain.TaskDraft
	createErr error
}

func (f *fakeRecords) TestCredential(_ context.Context, token, baseURL string) (*domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastToken, f.lastBase = token, baseURL
	if f.testErr != nil {
		return nil, f.testErr
	}
	if f.identity != nil {
		return f.identity, nil
	}
	return &domain.Identity{ID: "4242", Name: "Ana"}, nil
}

func (f *fakeRecords) FetchAssignments(_ context.Context, _ string, w domain.Window) ([]domain.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchPanic {
		panic("boom")
	}
	f.fetchCalls++
	f.lastWindow = w
	return f.assignments, f.fetchErr
}

func (f *fakeRecords) CreateTask(_ context.Context, userID string, draft domain.TaskDraft) (*domain.CreatedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, draft)
	if f.createErr != nil {
		return nil, f.createErr
	}
	due, err := draft.DueAt(testLoc)
	if err != nil {
		return nil, err
	}
	return &domain.CreatedTask{
		Task: domain.Task{
			ID:          "task-1",
			UserID:      userID,
			Title:       draft.Title,
			Description: draft.Description,
			DueAt:       due,
		},
		Synced: true,
	}, nil
}

type sent struct {
	kind    string
	text    string
	replies []messenger.QuickReply
	buttons []messenger.Button
}

type fakeOutbound struct {
	mu        sync.Mutex
	msgs      []sent
	typingOn  int
	typingOff int
	sendErr   error
}

func (f *fakeOutbound) SendText(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{kind: "text", text: text})
	return f.sendErr
}

func (f *fakeOutbound) SendQuickReplies(_ context.Context, _, text string, replies []messenger.QuickReply) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{kind: "quick_replies", text: text, replies: replies})
	return f.sendErr
}

func (f *fakeOutbound) SendButtons(_ context.Context, _, text string, buttons []messenger.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sent{kind: "buttons", text: text, buttons: buttons})
	return f.sendErr
}

func (f *fakeOutbound) SendTypingIndicator(_ context.Context, _ string, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.typingOn++
	} else {
		f.typingOff++
	}
	return nil
}

func (f *fakeOutbound) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.text
	}
	return out
}

func (f *fakeOutbound) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return sent{}
	}
	return f.msgs[len(f.msgs)-1]
}

func (f *fakeOutbound) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = nil
}

type harness struct {
	d       *Dispatcher
	store   *memStore
	records *fakeRecords
	out     *fakeOutbound
	sched   *Scheduler
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	if opts.Location == nil {
		opts.Location = testLoc
	}
	if opts.DefaultBaseURL == "" {
		opts.DefaultBaseURL = "https://canvas.instructure.com"
	}
	h := &harness{
		store:   newMemStore(),
		records: &fakeRecords{},
		out:     &fakeOutbound{},
		sched:   NewScheduler(time.Second),
	}
	h.d = New(h.store, h.records, h.out, h.sched, opts)
	h.d.now = func() time.Time { return testNow }
	t.Cleanup(h.sched.Close)
	return h
}

// connectedUser seeds an onboarded user with a credential.
func (h *harness) connectedUser(userID string) {
	h.store.users[userID] = &domain.User{UserID: userID, Onboarded: true, Credential: "stored-token"}
}

func (h *harness) setState(userID string, s domain.State) {
	_ = h.store.SetSession(context.Background(), userID, domain.SessionKeyState, string(s))
}

func (h *harness) text(userID, s string) {
	h.d.Dispatch(context.Background(), userID, TextEvent(s))
}

func (h *harness) postback(userID, code string) {
	h.d.Dispatch(context.Background(), userID, PostbackEvent(code))
}

func (h *harness) state(userID string) string {
	v, _ := h.store.session(userID, domain.SessionKeyState)
	return v
}

var errStore = errors.New("database is locked")
