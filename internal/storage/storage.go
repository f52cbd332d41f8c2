package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Storage is the SQL user store. SQLite by default, Postgres for shared deployments.
type Storage struct {
	db *sql.DB
}

// New opens a SQLite database at dbPath and initializes the schema.
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	return open(db)
}

// NewPostgres connects to Postgres and initializes the schema.
func NewPostgres(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(db)
}

func open(db *sql.DB) (*Storage, error) {
	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			external_id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			customer_ref TEXT NOT NULL DEFAULT '',
			subscription_ref TEXT NOT NULL DEFAULT '',
			last_event_id TEXT NOT NULL DEFAULT '',
			version BIGINT NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_status ON users(status)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// FindByExternalID returns the user with the given id
func (s *Storage) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	var u User
	var status string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT external_id, display_name, handle, status, customer_ref, subscription_ref,
			last_event_id, version, created_at, updated_at
		 FROM users WHERE external_id = $1`,
		externalID,
	).Scan(&u.ExternalID, &u.DisplayName, &u.Handle, &status, &u.CustomerRef, &u.SubscriptionRef,
		&u.LastAppliedEventID, &u.Version, &createdAt, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find user", err)
	}

	u.Status = Status(status)
	u.CreatedAt = time.UnixMilli(createdAt)
	u.UpdatedAt = time.UnixMilli(updatedAt)
	return &u, nil
}

// Create inserts a new user, ErrAlreadyExists if the id is taken
func (s *Storage) Create(ctx context.Context, user *User) (*User, error) {
	u := user.Clone()
	u.Version = 1

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (external_id, display_name, handle, status, customer_ref, subscription_ref,
			last_event_id, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (external_id) DO NOTHING`,
		u.ExternalID, u.DisplayName, u.Handle, string(u.Status), u.CustomerRef, u.SubscriptionRef,
		u.LastAppliedEventID, u.Version, u.CreatedAt.UnixMilli(), u.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return nil, unavailable("create user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, unavailable("create user", err)
	}
	if rows == 0 {
		return nil, ErrAlreadyExists
	}

	return u, nil
}

// Update replaces the mutable fields if the stored version matches
func (s *Storage) Update(ctx context.Context, user *User) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			display_name = $1, handle = $2, status = $3, customer_ref = $4, subscription_ref = $5,
			last_event_id = $6, updated_at = $7, version = version + 1
		 WHERE external_id = $8 AND version = $9`,
		user.DisplayName, user.Handle, string(user.Status), user.CustomerRef, user.SubscriptionRef,
		user.LastAppliedEventID, user.UpdatedAt.UnixMilli(),
		user.ExternalID, user.Version,
	)
	if err != nil {
		return unavailable("update user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("update user", err)
	}
	if rows == 0 {
		// Distinguish a missing row from a stale version.
		if _, err := s.FindByExternalID(ctx, user.ExternalID); err != nil {
			return err
		}
		return ErrConflict
	}

	user.Version++
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
