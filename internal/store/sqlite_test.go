package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/secret"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateUserIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{})

	u, err := s.CreateUser(ctx, "psid-1")
	require.NoError(t, err)
	assert.False(t, u.Onboarded)
	assert.False(t, u.HasCredential())

	_, err = s.UpdateUser(ctx, "psid-1", domain.UserUpdate{Onboarded: domain.Ptr(true)})
	require.NoError(t, err)

	again, err := s.CreateUser(ctx, "psid-1")
	require.NoError(t, err)
	assert.True(t, again.Onboarded, "second CreateUser must not overwrite the record")
}

func TestGetUserMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{})

	u, err := s.GetUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUpdateUserAppliesAllFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{Sealer: secret.NewSealer("test-key")})

	_, err := s.CreateUser(ctx, "psid-2")
	require.NoError(t, err)

	synced := time.Unix(1_700_000_000, 0)
	u, err := s.UpdateUser(ctx, "psid-2", domain.UserUpdate{
		Onboarded:         domain.Ptr(true),
		Credential:        domain.Ptr("7~abcdefghijklmnop"),
		CredentialBaseURL: domain.Ptr("https://school.instructure.com"),
		CanvasUserID:      domain.Ptr("42"),
		LastSyncAt:        &synced,
	})
	require.NoError(t, err)
	assert.True(t, u.Onboarded)
	assert.Equal(t, "7~abcdefghijklmnop", u.Credential)
	assert.Equal(t, "https://school.instructure.com", u.CredentialBaseURL)
	assert.Equal(t, "42", u.CanvasUserID)
	require.NotNil(t, u.LastSyncAt)
	assert.True(t, u.LastSyncAt.Equal(synced))

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT canvas_token FROM users WHERE user_id = ?`, "psid-2").Scan(&raw))
	assert.NotEqual(t, "7~abcdefghijklmnop", raw, "credential should be sealed at rest")

	cleared, err := s.UpdateUser(ctx, "psid-2", domain.UserUpdate{Credential: domain.Ptr("")})
	require.NoError(t, err)
	assert.False(t, cleared.HasCredential())
	assert.True(t, cleared.Onboarded)
}

func TestUpdateUserUnknown(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, Options{})

	_, err := s.UpdateUser(context.Background(), "ghost", domain.UserUpdate{Premium: domain.Ptr(true)})
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{SessionTTL: time.Hour})

	require.NoError(t, s.SetSession(ctx, "u", domain.SessionKeyState, string(domain.StateCreatingTaskDate)))
	require.NoError(t, s.SetSession(ctx, "u", domain.SessionKeyTaskTitle, "Essay"))

	v, ok, err := s.GetSession(ctx, "u", domain.SessionKeyTaskTitle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Essay", v)

	require.NoError(t, s.DeleteSession(ctx, "u", domain.SessionKeyState))
	_, ok, err = s.GetSession(ctx, "u", domain.SessionKeyState)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ClearSessions(ctx, "u"))
	_, ok, err = s.GetSession(ctx, "u", domain.SessionKeyTaskTitle)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{SessionTTL: time.Hour})

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetSession(ctx, "u", domain.SessionKeyState, "waiting_for_token"))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, ok, err := s.GetSession(ctx, "u", domain.SessionKeyState)
	require.NoError(t, err)
	assert.False(t, ok, "expired session must read as absent")

	deleted, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestSetSessionSlidesExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{SessionTTL: time.Hour})

	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.SetSession(ctx, "u", domain.SessionKeyTaskTitle, "Essay"))

	s.now = func() time.Time { return base.Add(50 * time.Minute) }
	require.NoError(t, s.SetSession(ctx, "u", domain.SessionKeyTaskDate, "2025-03-14"))

	s.now = func() time.Time { return base.Add(90 * time.Minute) }
	v, ok, err := s.GetSession(ctx, "u", domain.SessionKeyTaskTitle)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Essay", v)
}

func TestTasksAndCounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{})

	now := time.Now().Truncate(time.Second)
	for i, title := range []string{"Read ch. 3", "Lab report"} {
		require.NoError(t, s.CreateTask(ctx, &domain.Task{
			ID:            uuid.NewString(),
			UserID:        "u",
			Title:         title,
			DueAt:         now.Add(time.Duration(i+1) * 24 * time.Hour),
			CanvasEventID: "evt-9",
			CreatedAt:     now,
		}))
	}

	n, err := s.CountTasksSince(ctx, "u", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	tasks, err := s.ListTasks(ctx, "u", now, now.Add(36*time.Hour))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Read ch. 3", tasks[0].Title)
	assert.Equal(t, "evt-9", tasks[0].CanvasEventID)
}

func TestMessageLogPruning(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t, Options{})

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.LogMessage(ctx, domain.MessageLog{UserID: "u", Kind: "text", Content: "hi", CreatedAt: old}))
	require.NoError(t, s.LogMessage(ctx, domain.MessageLog{UserID: "u", Kind: "postback", Content: "MAIN_MENU"}))

	deleted, err := s.DeleteMessageLogsBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
