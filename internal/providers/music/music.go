package music

import (
	"context"
	"errors"
	"time"
)

// Status is the vendor-agnostic lifecycle state of a generation job.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change. Callers should
// stop polling once they observe a terminal status, even if a lagging vendor
// later reports an earlier state.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Vendor-safe field limits applied to every adapter before transmission.
const (
	MaxPromptLen = 2000
	MaxLyricsLen = 5000
	MaxTitleLen  = 100
	MaxStyleLen  = 200
	MaxTagsLen   = 200
)

// GenerationRequest is the caller-supplied intent for one music generation.
// It is immutable once submitted.
type GenerationRequest struct {
	Prompt          string
	Lyrics          string
	Title           string
	Style           string
	Tags            string
	Instrumental    bool
	DurationSeconds int
	Model           string
	// CustomMode marks the lyrics as caller-authored rather than
	// vendor-authored.
	CustomMode bool
}

// Job identifies a submitted generation on the vendor side. The ID is only
// meaningful within the provider that issued it.
type Job struct {
	ID        string
	Provider  string
	Status    Status
	CreatedAt time.Time
}

// Clip is one playable output of a completed generation. Vendors may return
// several alternatives per job.
type Clip struct {
	ID       string  `json:"id"`
	AudioURL string  `json:"audio_url"`
	Title    string  `json:"title,omitempty"`
	Lyrics   string  `json:"lyrics,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// StatusUpdate is the normalized answer to one status poll. AudioURL and
// Clips are set once the job is complete; Error once it has failed.
type StatusUpdate struct {
	ID       string
	Status   Status
	AudioURL string
	Clips    []Clip
	Error    string
}

// AccountInfo describes the vendor account behind the active credential.
type AccountInfo struct {
	Credits float64
	UserID  string
	Plan    string
}

// Provider is the capability contract every vendor adapter implements.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (*Job, error)
	GetStatus(ctx context.Context, id string) (*StatusUpdate, error)
}

// AccountReporter is implemented by providers that expose account or credit
// introspection. Its absence means "unsupported", not "error".
type AccountReporter interface {
	GetUser(ctx context.Context) (*AccountInfo, error)
}

var (
	// ErrNotConfigured means no provider credential is present in the
	// environment.
	ErrNotConfigured = errors.New("music: no provider credentials configured")
	// ErrUnknownProvider means the provider override names an adapter that
	// does not exist.
	ErrUnknownProvider = errors.New("music: unknown provider")
	// ErrMissingJobID means the vendor reported success without a task id.
	// The most common real-world cause is an exhausted credit balance.
	ErrMissingJobID = errors.New("music: vendor accepted the request but returned no task id; check the account credit balance")
)

// sanitize clamps free-text fields to vendor-safe lengths. Applied uniformly
// by every adapter regardless of the vendor's own limits.
func sanitize(req GenerationRequest) GenerationRequest {
	req.Prompt = truncate(req.Prompt, MaxPromptLen)
	req.Lyrics = truncate(req.Lyrics, MaxLyricsLen)
	req.Title = truncate(req.Title, MaxTitleLen)
	req.Style = truncate(req.Style, MaxStyleLen)
	req.Tags = truncate(req.Tags, MaxTagsLen)
	return req
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
