package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/fulfillment/internal/idempotency"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Find(ctx context.Context, key string, kind idempotency.Kind) (*idempotency.Record, error) {
	query := `
		SELECT key, target_kind, target_id, status, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1 AND target_kind = $2 AND expires_at > now()
	`

	var record idempotency.Record
	err := s.pool.QueryRow(ctx, query, key, string(kind)).Scan(
		&record.Key,
		&record.Kind,
		&record.TargetID,
		&record.Status,
		&record.Response,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &record, nil
}

func (s *Store) Save(ctx context.Context, record idempotency.Record) error {
	query := `
		INSERT INTO idempotency_keys (key, target_kind, target_id, status, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key, target_kind) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		record.Key,
		string(record.Kind),
		record.TargetID,
		string(record.Status),
		record.Response,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}
