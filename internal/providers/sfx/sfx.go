package sfx

import (
	"context"
	"errors"
)

// ErrMissingAPIKey indicates that a generator was configured without
// credentials.
var ErrMissingAPIKey = errors.New("sfx: api key is required")

// Request captures the inputs for a sound-effect generation.
type Request struct {
	Prompt          string
	DurationSeconds float64
	RequestID       string
}

// Asset is the normalized result of a sound-effect generation. Depending on
// the vendor either URL or Data is populated.
type Asset struct {
	URL    string
	Data   []byte
	Format string
}

// Generator produces a short sound effect from a text prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (*Asset, error)
}
