package domain

import "time"

// GenerationType enumerates supported generation categories.
type GenerationType string

const (
	GenerationTypeMusic  GenerationType = "music"
	GenerationTypeSFX    GenerationType = "sfx"
	GenerationTypeLyrics GenerationType = "lyrics"
)

// GenerationStatus enumerates the lifecycle of a generation record. A record
// is pending until the provider accepts it, dispatched while the provider
// renders, polling while a worker holds a claim on it, and terminal once
// complete or failed. Polling reverts to dispatched when the worker releases
// the claim without a terminal answer.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusDispatched GenerationStatus = "dispatched"
	GenerationStatusPolling    GenerationStatus = "polling"
	GenerationStatusComplete   GenerationStatus = "complete"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// Terminal reports whether the status will not change again.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationStatusComplete || s == GenerationStatusFailed
}

// Generation is the persisted record of one generation request. UpstreamID is
// the provider's task id and is only meaningful together with Provider.
type Generation struct {
	ID           string
	APIKeyID     string
	Type         GenerationType
	Prompt       string
	Lyrics       string
	Title        string
	Style        string
	Tags         string
	Instrumental bool
	Provider     string
	UpstreamID   string
	Status       GenerationStatus
	AudioURL     string
	ClipsJSON    []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// GenerationListParams filters and pages the generation listing.
type GenerationListParams struct {
	APIKeyID string
	Type     GenerationType
	Status   GenerationStatus
	Limit    int
	Offset   int
}

// Asset is a generated audio file persisted to storage.
type Asset struct {
	ID           string
	GenerationID string
	URL          string
	StoragePath  string
	MimeType     string
	SizeBytes    int64
	DurationSec  float64
	CreatedAt    time.Time
}
