package domain

import "context"

// GenerationRepository defines persistence for generation records.
type GenerationRepository interface {
	Create(ctx context.Context, gen *Generation) error
	GetByID(ctx context.Context, id string) (*Generation, error)
	List(ctx context.Context, params GenerationListParams) ([]Generation, error)
	MarkDispatched(ctx context.Context, id, provider, upstreamID string) error
	UpdateStatus(ctx context.Context, id string, status GenerationStatus, audioURL string, clipsJSON []byte, errMsg *string) error
	// ClaimDispatched moves up to limit dispatched records into the polling
	// status and returns them. Rows already in polling belong to another
	// worker and are not returned until their claim goes stale. Callers
	// release a claim by updating the record back to dispatched or to a
	// terminal status.
	ClaimDispatched(ctx context.Context, limit int) ([]Generation, error)
}

// AssetRepository handles persistence for downloaded audio assets.
type AssetRepository interface {
	SaveAll(ctx context.Context, generationID string, assets []Asset) error
	ListByGenerationID(ctx context.Context, generationID string) ([]Asset, error)
}

// APIKeyRepository resolves caller API keys for attribution and rate limits.
type APIKeyRepository interface {
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
	Touch(ctx context.Context, id string) error
}
