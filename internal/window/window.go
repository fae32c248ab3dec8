// Package window maintains the per-channel set of open questions
// eligible for answer matching.
package window

import (
	"sort"
	"time"

	"github.com/qawatch/qawatch/internal/types"
)

// Window is a bounded, timestamp-ordered collection of open questions
// for one channel. It is an in-memory view: eviction and expiry here
// never delete persisted rows, they only remove matching eligibility.
//
// A window is owned by exactly one channel worker and is not safe for
// concurrent use; channel processing is strictly sequential.
type Window struct {
	capacity int
	entries  []types.Question // ascending by Timestamp
}

// New creates a window holding at most capacity open questions
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Insert adds an open question, keeping entries sorted by timestamp.
// Batch replay can deliver out of order, so this is a sorted insert
// rather than an append. When the window is over capacity the oldest
// entry is dropped first.
func (w *Window) Insert(q types.Question) {
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].Timestamp.After(q.Timestamp)
	})
	w.entries = append(w.entries, types.Question{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = q

	if len(w.entries) > w.capacity {
		w.entries = w.entries[len(w.entries)-w.capacity:]
	}
}

// MostRecentCandidates returns open questions with timestamp <= before,
// most recent first, at most limit entries. This bounds the matching
// search space per incoming message.
func (w *Window) MostRecentCandidates(before time.Time, limit int) []types.Question {
	if limit < 1 {
		return nil
	}
	var out []types.Question
	for i := len(w.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if !w.entries[i].Timestamp.After(before) {
			out = append(out, w.entries[i])
		}
	}
	return out
}

// Expire removes questions older than the horizon and returns their
// IDs so the caller can persist the status transition. Called before
// every match attempt so stale questions are never matched.
func (w *Window) Expire(now time.Time, horizon time.Duration) []int64 {
	cutoff := now.Add(-horizon)
	var expired []int64

	kept := w.entries[:0]
	for _, q := range w.entries {
		if q.Timestamp.Before(cutoff) {
			expired = append(expired, q.ID)
		} else {
			kept = append(kept, q)
		}
	}
	w.entries = kept
	return expired
}

// MarkAnswered removes the question from matching eligibility.
// Idempotent: repeated calls for the same id are no-ops. Returns
// whether the question was present.
func (w *Window) MarkAnswered(id int64) bool {
	for i, q := range w.entries {
		if q.ID == id {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of open questions currently in the window
func (w *Window) Len() int {
	return len(w.entries)
}
