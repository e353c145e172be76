package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"harmoniq/internal/domain"
)

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

const generationColumns = `id, api_key_id, type, prompt, lyrics, title, style, tags, instrumental, provider, upstream_id, status, audio_url, clips_json, error_message, created_at, updated_at, completed_at`

// Create inserts a new generation record.
func (r *GenerationRepositoryPG) Create(ctx context.Context, gen *domain.Generation) error {
	query := `
INSERT INTO generations (id, api_key_id, type, prompt, lyrics, title, style, tags, instrumental, provider, upstream_id, status, audio_url, clips_json, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
`
	_, err := r.pool.Exec(ctx, query,
		gen.ID,
		gen.APIKeyID,
		gen.Type,
		gen.Prompt,
		gen.Lyrics,
		gen.Title,
		gen.Style,
		gen.Tags,
		gen.Instrumental,
		gen.Provider,
		gen.UpstreamID,
		gen.Status,
		gen.AudioURL,
		nullableBytes(gen.ClipsJSON),
		gen.ErrorMessage,
	)
	return err
}

// GetByID fetches a generation by its identifier.
func (r *GenerationRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1;`
	gen, err := scanGeneration(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return gen, nil
}

// List returns generations matching the filter, newest first.
func (r *GenerationRepositoryPG) List(ctx context.Context, params domain.GenerationListParams) ([]domain.Generation, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+"$"+strconv.Itoa(len(args)))
	}
	if params.APIKeyID != "" {
		add("api_key_id = ", params.APIKeyID)
	}
	if params.Type != "" {
		add("type = ", params.Type)
	}
	if params.Status != "" {
		add("status = ", params.Status)
	}
	query := `SELECT ` + generationColumns + ` FROM generations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := params.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *gen)
	}
	return out, rows.Err()
}

// MarkDispatched records the provider and upstream task id once the provider
// accepts the request.
func (r *GenerationRepositoryPG) MarkDispatched(ctx context.Context, id, provider, upstreamID string) error {
	query := `
UPDATE generations
SET status = $2,
    provider = $3,
    upstream_id = $4,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, domain.GenerationStatusDispatched, provider, upstreamID)
	return err
}

// UpdateStatus updates the generation status and optionally the result and
// error payloads. CompletedAt is stamped on terminal transitions.
func (r *GenerationRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.GenerationStatus, audioURL string, clipsJSON []byte, errMsg *string) error {
	query := `
UPDATE generations
SET status = $2,
    updated_at = NOW(),
    audio_url = CASE WHEN $3 <> '' THEN $3 ELSE audio_url END,
    clips_json = COALESCE($4, clips_json),
    error_message = COALESCE($5, error_message),
    completed_at = CASE WHEN $2 IN ('complete', 'failed') AND completed_at IS NULL THEN NOW() ELSE completed_at END
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status, audioURL, nullableBytes(clipsJSON), errMsg)
	return err
}

// claimLease bounds how long a polling claim survives its worker. A crashed
// worker's rows become claimable again once the lease expires; live workers
// finish well inside it (the poll ceiling is two minutes).
const claimLease = `INTERVAL '5 minutes'`

// ClaimDispatched marks up to limit dispatched generations as polling and
// returns them. The status transition commits with the claim, so a second
// worker sees neither the row lock nor the dispatched status. Stale polling
// rows are reclaimed after the lease expires.
func (r *GenerationRepositoryPG) ClaimDispatched(ctx context.Context, limit int) ([]domain.Generation, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
SELECT ` + generationColumns + `
FROM generations
WHERE status = $1
   OR (status = $2 AND updated_at < NOW() - ` + claimLease + `)
ORDER BY updated_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED;
`
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, query, domain.GenerationStatusDispatched, domain.GenerationStatusPolling, limit)
	if err != nil {
		return nil, err
	}
	var out []domain.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *gen)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) > 0 {
		claim := `UPDATE generations SET status = $2, updated_at = NOW() WHERE id = ANY($1);`
		ids := make([]string, len(out))
		for i := range out {
			ids[i] = out[i].ID
			out[i].Status = domain.GenerationStatusPolling
		}
		if _, err := tx.Exec(ctx, claim, ids, domain.GenerationStatusPolling); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*domain.Generation, error) {
	var gen domain.Generation
	if err := row.Scan(
		&gen.ID,
		&gen.APIKeyID,
		&gen.Type,
		&gen.Prompt,
		&gen.Lyrics,
		&gen.Title,
		&gen.Style,
		&gen.Tags,
		&gen.Instrumental,
		&gen.Provider,
		&gen.UpstreamID,
		&gen.Status,
		&gen.AudioURL,
		&gen.ClipsJSON,
		&gen.ErrorMessage,
		&gen.CreatedAt,
		&gen.UpdatedAt,
		&gen.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &gen, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
