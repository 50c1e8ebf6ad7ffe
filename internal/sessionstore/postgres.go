// File: internal/sessionstore/postgres.go
package sessionstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/checkout-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised against a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps sessions in a single table:
//
//	CREATE TABLE sessions (
//	    name       TEXT PRIMARY KEY,
//	    blob       BYTEA NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and returns the store.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("session_store"),
	}, nil
}

func (s *PostgresStore) Save(ctx context.Context, name string, blob []byte) error {
	sql := `
        INSERT INTO sessions (name, blob, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (name) DO UPDATE SET
            blob = EXCLUDED.blob,
            updated_at = EXCLUDED.updated_at;
    `
	if _, err := s.pool.Exec(ctx, sql, SanitizeName(name), blob); err != nil {
		return fmt.Errorf("failed to upsert session %q: %w", name, err)
	}
	s.log.Info("Session saved.", zap.String("name", SanitizeName(name)), zap.Int("bytes", len(blob)))
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT blob FROM sessions WHERE name = $1;`,
		SanitizeName(name),
	).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load session %q: %w", name, err)
	}
	return blob, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]schemas.SessionInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, updated_at, octet_length(blob) FROM sessions ORDER BY name ASC;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []schemas.SessionInfo
	for rows.Next() {
		var info schemas.SessionInfo
		if err := rows.Scan(&info.Name, &info.ModifiedAt, &info.SizeBytes); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE name = $1;`, SanitizeName(name))
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	s.log.Info("Session deleted.", zap.String("name", SanitizeName(name)))
	return nil
}
