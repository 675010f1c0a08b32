package session

import (
	"sort"

	"staychat/domain/chat"
)

// Reconciler merges the one-shot history load with streamed messages into
// a single ordered, duplicate-free timeline. The historical batch is
// ordered by creation time, streamed messages by arrival. The first
// observed copy of an ID wins: duplicate delivery from network retry or
// at-least-once semantics never creates duplicate rows or reorders
// existing ones.
//
// Not safe for concurrent use; the owning session serializes access.
type Reconciler struct {
	seeded   bool
	timeline []chat.Message
	known    map[string]struct{}
}

func NewReconciler() *Reconciler {
	return &Reconciler{known: make(map[string]struct{})}
}

// Seed establishes the initial timeline from the history fetch.
// Only the first call has any effect.
func (r *Reconciler) Seed(history []chat.Message) {
	if r.seeded {
		return
	}
	r.seeded = true

	sorted := make([]chat.Message, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	for _, m := range sorted {
		r.insert(m)
	}
}

// Ingest inserts a streamed message. It reports whether the message was
// new; a known ID is left as-is and reported false. Idempotent under
// repeated delivery, and the timeline only ever grows.
func (r *Reconciler) Ingest(m chat.Message) bool {
	return r.insert(m)
}

func (r *Reconciler) insert(m chat.Message) bool {
	if _, ok := r.known[m.ID]; ok {
		return false
	}
	r.known[m.ID] = struct{}{}
	r.timeline = append(r.timeline, m)
	return true
}

// Seeded reports whether the historical batch was loaded.
func (r *Reconciler) Seeded() bool {
	return r.seeded
}

// Len returns the number of distinct messages observed so far.
func (r *Reconciler) Len() int {
	return len(r.timeline)
}

// Snapshot returns a copy of the timeline in display order.
func (r *Reconciler) Snapshot() []chat.Message {
	out := make([]chat.Message, len(r.timeline))
	copy(out, r.timeline)
	return out
}
