package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
)

// CreateTask persists a manual task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *domain.Task) error {
	query := `
	INSERT INTO tasks (id, user_id, title, description, due_at, canvas_event_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return s.withRetry(ctx, "create task", func() error {
		_, err := s.db.ExecContext(ctx, query,
			task.ID, task.UserID, task.Title, task.Description,
			task.DueAt.Unix(), nullIfEmpty(task.CanvasEventID), task.CreatedAt.Unix(),
		)
		return err
	})
}

// ListTasks returns a user's manual tasks due within [from, to), earliest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, userID string, from, to time.Time) ([]*domain.Task, error) {
	query := `
		SELECT id, user_id, title, description, due_at, canvas_event_id, created_at
		FROM tasks WHERE user_id = ? AND due_at >= ? AND due_at < ?
		ORDER BY due_at`

	rows, err := s.db.QueryContext(ctx, query, userID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close task rows", "error", closeErr)
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		var task domain.Task
		var eventID sql.NullString
		var dueAt, createdAt int64

		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description,
			&dueAt, &eventID, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}

		task.DueAt = time.Unix(dueAt, 0)
		task.CanvasEventID = eventID.String
		task.CreatedAt = time.Unix(createdAt, 0)
		tasks = append(tasks, &task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// CountTasksSince counts tasks created by a user at or after since.
func (s *SQLiteStore) CountTasksSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE user_id = ? AND created_at >= ?`,
		userID, since.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// LogMessage appends an inbound event to the message log.
func (s *SQLiteStore) LogMessage(ctx context.Context, entry domain.MessageLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_logs (user_id, kind, content, created_at) VALUES (?, ?, ?, ?)`,
		entry.UserID, entry.Kind, entry.Content, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}
	return nil
}

// DeleteMessageLogsBefore prunes message logs older than cutoff.
func (s *SQLiteStore) DeleteMessageLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, "delete message logs", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM message_logs WHERE created_at < ?`, cutoff.Unix())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}
