package music

import "strings"

// NormalizeStatus maps a vendor status token onto the shared Status enum. It
// is total: every input yields a value, and unrecognized tokens map to
// StatusStarting so that a transient vendor state is never mistaken for a
// terminal one.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded", "success", "complete", "completed", "done", "finished":
		return StatusComplete
	case "failed", "error", "errored", "cancelled", "canceled":
		return StatusFailed
	case "processing", "running", "in_progress", "generating", "streaming":
		return StatusProcessing
	case "queued", "pending", "starting", "submitted":
		return StatusStarting
	default:
		return StatusStarting
	}
}
