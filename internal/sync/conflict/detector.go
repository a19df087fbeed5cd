// Package conflict decides when a queued creation duplicates work the server
// already has, so the sync engine can drop it instead of pushing twice.
package conflict

import (
	"time"

	"github.com/retailbase/possync/internal/models"
)

// Detector applies the content-duplicate heuristic: a queued add whose
// natural key matches a canonical entity updated within the window is
// treated as a double submission from a UI race or a second session.
//
// Best effort only. It can false-positive on a legitimate re-add of the same
// name and false-negative outside the window; it is a guard, not a
// correctness invariant.
type Detector[T models.Entity] struct {
	window time.Duration
}

// NewDetector creates a detector with the given recency window.
func NewDetector[T models.Entity](window time.Duration) *Detector[T] {
	return &Detector[T]{window: window}
}

// Window returns the configured recency window.
func (d *Detector[T]) Window() time.Duration {
	return d.window
}

// FindDuplicate returns the canonical entity the candidate duplicates, if
// any. Entities with empty natural keys never match.
func (d *Detector[T]) FindDuplicate(candidate T, canonical []T, now time.Time) (T, bool) {
	var zero T

	key := candidate.NaturalKey()
	if key == "" {
		return zero, false
	}

	cutoff := now.Add(-d.window).Unix()
	for _, existing := range canonical {
		if existing.NaturalKey() != key {
			continue
		}
		if existing.UpdatedUnix() >= cutoff {
			return existing, true
		}
	}
	return zero, false
}
