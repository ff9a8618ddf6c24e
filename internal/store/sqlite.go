package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/secret"
	"github.com/ashureev/easely-bot/internal/shared"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	writeAttempts  = 3
	writeBaseDelay = 50 * time.Millisecond
)

// Options configures a SQLiteStore.
type Options struct {
	// SessionTTL is how long session values live after the last write.
	SessionTTL time.Duration
	// Sealer encrypts credentials at rest. Nil stores them as given.
	Sealer *secret.Sealer
}

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db         *sql.DB
	sealer     *secret.Sealer
	sessionTTL time.Duration
	now        func() time.Time
	sessionMu  sync.Mutex // serialises session writes to keep SQLITE_BUSY rare
}

var _ Repository = (*SQLiteStore)(nil)

// NewSQLite creates a new SQLite-backed repository and applies migrations.
func NewSQLite(dbPath string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Sealer == nil {
		opts.Sealer = secret.NewSealer("")
	}

	store := &SQLiteStore{
		db:         db,
		sealer:     opts.Sealer,
		sessionTTL: opts.SessionTTL,
		now:        time.Now,
	}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("Applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const userColumns = `user_id, onboarded, canvas_token, canvas_base_url, canvas_user_id,
	premium, last_sync_at, last_seen_at, created_at, updated_at`

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var token, baseURL, canvasUserID sql.NullString
	var lastSync sql.NullInt64
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Onboarded, &token, &baseURL, &canvasUserID,
		&user.Premium, &lastSync, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	credential, err := s.sealer.Open(token.String)
	if err != nil {
		return nil, fmt.Errorf("open credential for %s: %w", userID, err)
	}
	user.Credential = credential
	user.CredentialBaseURL = baseURL.String
	user.CanvasUserID = canvasUserID.String
	if lastSync.Valid {
		ts := time.Unix(lastSync.Int64, 0)
		user.LastSyncAt = &ts
	}
	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// CreateUser inserts the user unless it already exists.
func (s *SQLiteStore) CreateUser(ctx context.Context, userID string) (*domain.User, error) {
	now := s.now().Unix()
	query := `
	INSERT INTO users (user_id, onboarded, premium, last_seen_at, created_at, updated_at)
	VALUES (?, 0, 0, ?, ?, ?)
	ON CONFLICT(user_id) DO NOTHING`

	err := s.withRetry(ctx, "create user", func() error {
		_, err := s.db.ExecContext(ctx, query, userID, now, now, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("create user %s: row missing after insert", userID)
	}
	return user, nil
}

// UpdateUser applies the set fields of upd in one UPDATE statement.
func (s *SQLiteStore) UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (*domain.User, error) {
	if upd.IsEmpty() {
		return s.GetUser(ctx, userID)
	}

	var sets []string
	var args []interface{}

	if upd.Onboarded != nil {
		sets = append(sets, "onboarded = ?")
		args = append(args, *upd.Onboarded)
	}
	if upd.Credential != nil {
		sealed, err := s.sealer.Seal(*upd.Credential)
		if err != nil {
			return nil, fmt.Errorf("seal credential: %w", err)
		}
		sets = append(sets, "canvas_token = ?")
		args = append(args, nullIfEmpty(sealed))
	}
	if upd.CredentialBaseURL != nil {
		sets = append(sets, "canvas_base_url = ?")
		args = append(args, nullIfEmpty(*upd.CredentialBaseURL))
	}
	if upd.CanvasUserID != nil {
		sets = append(sets, "canvas_user_id = ?")
		args = append(args, nullIfEmpty(*upd.CanvasUserID))
	}
	if upd.Premium != nil {
		sets = append(sets, "premium = ?")
		args = append(args, *upd.Premium)
	}
	if upd.LastSyncAt != nil {
		sets = append(sets, "last_sync_at = ?")
		args = append(args, upd.LastSyncAt.Unix())
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now().Unix(), userID)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE user_id = ?`

	var rows int64
	err := s.withRetry(ctx, "update user", func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("update user %s: %w", userID, domain.ErrUserNotFound)
	}

	return s.GetUser(ctx, userID)
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), s.now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

func (s *SQLiteStore) withRetry(ctx context.Context, name string, op func() error) error {
	return shared.RetrySQLite(ctx, name, writeAttempts, writeBaseDelay, op)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
