package situation

import "time"

// DefaultTrailSize bounds a unit's breadcrumb history.
const DefaultTrailSize = 10

// Trail is the bounded ring of a unit's past raw inputs, newest first.
// It belongs exclusively to one invoking unit instance; parallel siblings
// must be distinct instances, so no locking is needed.
type Trail struct {
	max    int
	crumbs []Breadcrumb
}

// NewTrail constructs a trail bounded to max entries (DefaultTrailSize when
// max is not positive).
func NewTrail(max int) *Trail {
	if max <= 0 {
		max = DefaultTrailSize
	}
	return &Trail{max: max}
}

// Push records a raw input tagged with that call's orientation confidence.
// The oldest entry is evicted once the bound is reached.
func (t *Trail) Push(query, confidence string, at time.Time) {
	crumb := Breadcrumb{Query: query, Timestamp: at, Confidence: confidence}
	t.crumbs = append([]Breadcrumb{crumb}, t.crumbs...)
	if len(t.crumbs) > t.max {
		t.crumbs = t.crumbs[:t.max]
	}
}

// Crumbs returns a copy of the history, newest first.
func (t *Trail) Crumbs() []Breadcrumb {
	return append([]Breadcrumb(nil), t.crumbs...)
}

// Len returns the current number of entries.
func (t *Trail) Len() int { return len(t.crumbs) }

// Cap returns the configured bound.
func (t *Trail) Cap() int { return t.max }
