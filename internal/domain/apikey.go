package domain

import "time"

// APIKeyPlan enumerates billing plans attached to an API key.
type APIKeyPlan string

const (
	APIKeyPlanFree APIKeyPlan = "free"
	APIKeyPlanPro  APIKeyPlan = "pro"
)

// APIKey identifies a caller. Keys are stored hashed; the plaintext never
// touches the database.
type APIKey struct {
	ID         string
	KeyHash    string
	Name       string
	Plan       APIKeyPlan
	RateLimit  int
	Disabled   bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// IsFree reports whether the key is on the free plan.
func (k APIKey) IsFree() bool {
	return k.Plan == APIKeyPlanFree
}
