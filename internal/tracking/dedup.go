package tracking

import "github.com/56kcloud/mb-client/internal/status"

// ShouldAccept reports whether msg introduces a new slug. The first message of
// a session (hasLast false) is always accepted.
func ShouldAccept(lastSlug string, hasLast bool, msg status.Message) bool {
	return !hasLast || msg.Slug != lastSlug
}

// Deduplicator remembers the last accepted slug of a session.
type Deduplicator struct {
	last    string
	hasLast bool
}

// Accept applies ShouldAccept and records msg's slug when it passes.
func (d *Deduplicator) Accept(msg status.Message) bool {
	if !ShouldAccept(d.last, d.hasLast, msg) {
		return false
	}
	d.last = msg.Slug
	d.hasLast = true
	return true
}

// Last returns the last accepted slug, if any.
func (d *Deduplicator) Last() (string, bool) {
	return d.last, d.hasLast
}
