package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSession returns the value for key if it exists and has not expired.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, key string) (string, bool, error) {
	query := `
		SELECT session_value FROM user_sessions
		WHERE user_id = ? AND session_key = ? AND expires_at > ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, userID, key, s.now().Unix()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get session %s: %w", key, err)
	}
	return value, true, nil
}

// SetSession upserts key and slides the expiry of all the user's session rows
// so state and draft fields expire together.
func (s *SQLiteStore) SetSession(ctx context.Context, userID, key, value string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	now := s.now()
	expiresAt := now.Add(s.sessionTTL).Unix()

	return s.withRetry(ctx, "set session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		upsert := `
		INSERT INTO user_sessions (user_id, session_key, session_value, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_key) DO UPDATE SET
			session_value = excluded.session_value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`
		if _, err := tx.ExecContext(ctx, upsert, userID, key, value, expiresAt, now.Unix()); err != nil {
			return err
		}

		slide := `UPDATE user_sessions SET expires_at = ? WHERE user_id = ? AND expires_at > ?`
		if _, err := tx.ExecContext(ctx, slide, expiresAt, userID, now.Unix()); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// DeleteSession removes a single key.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, key string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return s.withRetry(ctx, "delete session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = ? AND session_key = ?`, userID, key)
		return err
	})
}

// ClearSessions removes every key for the user.
func (s *SQLiteStore) ClearSessions(ctx context.Context, userID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return s.withRetry(ctx, "clear sessions", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = ?`, userID)
		return err
	})
}

// DeleteExpiredSessions removes rows whose expiry has passed.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	var deleted int64
	err := s.withRetry(ctx, "delete expired sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE expires_at <= ?`, s.now().Unix())
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}
