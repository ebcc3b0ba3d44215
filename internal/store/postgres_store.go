package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"qe2ee/internal/domain"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS olm_accounts (
		account_id    TEXT PRIMARY KEY,
		pickle        BYTEA NOT NULL,
		pickling_salt BYTEA,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS olm_sessions (
		account_id TEXT NOT NULL,
		sender_key TEXT NOT NULL,
		session_id TEXT NOT NULL,
		pickle     BYTEA NOT NULL,
		seq        BIGSERIAL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (account_id, sender_key, session_id)
	)`,
	`ALTER TABLE olm_sessions ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
}

// PostgresStore keeps pickles in the olm_accounts and olm_sessions tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for dsn and applies the migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migration %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveAccount(ctx context.Context, rec domain.AccountRecord) error {
	const q = `
		INSERT INTO olm_accounts (account_id, pickle, pickling_salt)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET pickle = EXCLUDED.pickle, pickling_salt = EXCLUDED.pickling_salt, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, rec.AccountID, rec.Pickle, rec.PicklingSalt); err != nil {
		return fmt.Errorf("store: save account %s: %w", rec.AccountID, err)
	}
	return nil
}

func (s *PostgresStore) LoadAccount(ctx context.Context, accountID string) (domain.AccountRecord, bool, error) {
	const q = `SELECT pickle, pickling_salt FROM olm_accounts WHERE account_id = $1`
	rec := domain.AccountRecord{AccountID: accountID}
	err := s.pool.QueryRow(ctx, q, accountID).Scan(&rec.Pickle, &rec.PicklingSalt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccountRecord{}, false, nil
	}
	if err != nil {
		return domain.AccountRecord{}, false, fmt.Errorf("store: load account %s: %w", accountID, err)
	}
	return rec, true, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, accountID, senderKey, sessionID string, pickle []byte) error {
	const q = `
		INSERT INTO olm_sessions (account_id, sender_key, session_id, pickle)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, sender_key, session_id) DO UPDATE
		SET pickle = EXCLUDED.pickle, updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, accountID, senderKey, sessionID, pickle); err != nil {
		return fmt.Errorf("store: save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) LoadSessions(ctx context.Context, accountID, senderKey string) ([]domain.SessionRecord, error) {
	const q = `
		SELECT session_id, pickle, seq FROM olm_sessions
		WHERE account_id = $1 AND sender_key = $2
		ORDER BY seq`
	rows, err := s.pool.Query(ctx, q, accountID, senderKey)
	if err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		var rec domain.SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.Pickle, &rec.Seq); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteSession(ctx context.Context, accountID, senderKey, sessionID string) error {
	const q = `DELETE FROM olm_sessions WHERE account_id = $1 AND sender_key = $2 AND session_id = $3`
	if _, err := s.pool.Exec(ctx, q, accountID, senderKey, sessionID); err != nil {
		return fmt.Errorf("store: delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ domain.PickleStore = (*PostgresStore)(nil)
