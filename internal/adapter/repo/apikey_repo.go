package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"harmoniq/internal/domain"
)

// APIKeyRepositoryPG implements domain.APIKeyRepository backed by PostgreSQL.
type APIKeyRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository creates a new APIKeyRepositoryPG.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepositoryPG {
	return &APIKeyRepositoryPG{pool: pool}
}

// GetByHash fetches a key by the SHA-256 hash of its plaintext.
func (r *APIKeyRepositoryPG) GetByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, key_hash, name, plan, rate_limit, disabled, created_at, last_used_at
FROM api_keys
WHERE key_hash = $1;
`, keyHash)
	return scanAPIKey(row)
}

// Touch stamps the key's last use.
func (r *APIKeyRepositoryPG) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1;`, id)
	return err
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	if err := row.Scan(&k.ID, &k.KeyHash, &k.Name, &k.Plan, &k.RateLimit, &k.Disabled, &k.CreatedAt, &k.LastUsedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &k, nil
}
