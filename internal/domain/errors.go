package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrRateLimited        = errors.New("rate limited")
	ErrProviderFailure    = errors.New("provider failure")
	ErrProviderMismatch   = errors.New("generation belongs to a different provider")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
