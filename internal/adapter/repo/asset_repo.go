package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"harmoniq/internal/domain"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(pool *pgxpool.Pool) *AssetRepositoryPG {
	return &AssetRepositoryPG{pool: pool}
}

// ListByGenerationID returns all assets belonging to the generation.
func (r *AssetRepositoryPG) ListByGenerationID(ctx context.Context, generationID string) ([]domain.Asset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, generation_id, url, storage_path, mime_type, size_bytes, duration_sec, created_at
FROM assets
WHERE generation_id = $1
ORDER BY created_at ASC;
`, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var asset domain.Asset
		if err := rows.Scan(&asset.ID, &asset.GenerationID, &asset.URL, &asset.StoragePath, &asset.MimeType, &asset.SizeBytes, &asset.DurationSec, &asset.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// SaveAll persists a list of assets.
func (r *AssetRepositoryPG) SaveAll(ctx context.Context, generationID string, assets []domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}

	query := `
INSERT INTO assets (id, generation_id, url, storage_path, mime_type, size_bytes, duration_sec)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

	for _, asset := range assets {
		a := asset
		if _, err := r.pool.Exec(ctx, query, a.ID, generationID, a.URL, a.StoragePath, a.MimeType, a.SizeBytes, a.DurationSec); err != nil {
			return err
		}
	}

	return nil
}
