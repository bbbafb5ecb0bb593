package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists destinations to a Postgres table so multiple
// coordinator replicas share the same seeded URLs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a Postgres-backed settings store using the provided DSN.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres settings dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres settings config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres settings pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the Postgres connection pool resources.
func (s *PostgresStore) Close(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Ping verifies the backing database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	return s.pool.Ping(ctx)
}

// Set stores or overwrites the destination for the user.
func (s *PostgresStore) Set(ctx context.Context, userID, rtmpURL string) error {
	if _, err := ValidateURL(rtmpURL); err != nil {
		return err
	}
	if s.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO stream_settings (user_id, rtmp_url, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE SET rtmp_url = EXCLUDED.rtmp_url, updated_at = NOW()
`, userID, strings.TrimSpace(rtmpURL))
	return err
}

// Get fetches the destination for the user.
func (s *PostgresStore) Get(ctx context.Context, userID string) (string, bool, error) {
	if s.pool == nil {
		return "", false, fmt.Errorf("postgres settings pool not configured")
	}
	row := s.pool.QueryRow(ctx, `
SELECT rtmp_url
FROM stream_settings
WHERE user_id = $1
`, userID)
	var rtmpURL string
	if err := row.Scan(&rtmpURL); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return rtmpURL, true, nil
}

// Delete removes the user's entry.
func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	if s.pool == nil {
		return fmt.Errorf("postgres settings pool not configured")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM stream_settings WHERE user_id = $1`, userID)
	return err
}
