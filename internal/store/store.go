// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
)

// Repository defines the interface for persisting users, conversation
// sessions, manual tasks and inbound message logs.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil if absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser inserts a user if absent and returns the stored record.
	// An existing user is never overwritten.
	CreateUser(ctx context.Context, userID string) (*domain.User, error)

	// UpdateUser applies a partial update in a single statement.
	UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error)

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetSession returns a live session value and whether it was present.
	GetSession(ctx context.Context, userID, key string) (string, bool, error)

	// SetSession stores a session value and refreshes the user's session expiry.
	SetSession(ctx context.Context, userID, key, value string) error

	// DeleteSession removes one session value.
	DeleteSession(ctx context.Context, userID, key string) error

	// ClearSessions removes every session value for a user.
	ClearSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions removes session rows past their expiry.
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// CreateTask persists a manual task.
	CreateTask(ctx context.Context, task *domain.Task) error

	// ListTasks returns a user's manual tasks due within [from, to).
	ListTasks(ctx context.Context, userID string, from, to time.Time) ([]*domain.Task, error)

	// CountTasksSince counts manual tasks a user created at or after since.
	CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error)

	// LogMessage appends an inbound event to the message log.
	LogMessage(ctx context.Context, entry domain.MessageLog) error

	// DeleteMessageLogsBefore prunes message logs older than cutoff.
	DeleteMessageLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
