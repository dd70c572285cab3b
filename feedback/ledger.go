// Package feedback implements the decaying per-signal-path utility ledger
// that drives adaptive auto-suppression. Scores are volatile by design: the
// ledger lives on the invoking unit instance and is never persisted across
// restarts.
package feedback

import (
	"sort"
	"strings"

	"github.com/composekit/unitflow/core"
)

const (
	// DefaultDecay is the multiplicative factor applied to every score at
	// call start. 1 disables decay; 0 forgets everything each call.
	DefaultDecay = 0.9

	// pruneEpsilon: entries whose magnitude decays below this are dropped.
	pruneEpsilon = 0.01
)

// Ledger holds signed utility scores keyed by dotted signal path or bare
// category name. It is owned by a single unit instance and is not safe for
// concurrent use; parallel invocation paths must use distinct instances.
type Ledger struct {
	decay  float64
	scores map[string]float64
}

// Options configures a Ledger.
type Options struct {
	// Decay overrides DefaultDecay. Values outside [0,1] are clamped.
	Decay float64
}

// NewLedger constructs an empty ledger.
func NewLedger(optFns ...func(o *Options)) *Ledger {
	opts := Options{Decay: DefaultDecay}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Decay < 0 {
		opts.Decay = 0
	}
	if opts.Decay > 1 {
		opts.Decay = 1
	}
	return &Ledger{decay: opts.Decay, scores: make(map[string]float64)}
}

// Decay runs once at call start: every score is multiplied by the decay
// factor and entries below the prune epsilon are dropped. Decay always
// precedes this call's aggregate check so suppression and recovery react to
// the freshest value.
func (l *Ledger) Decay() {
	for path, score := range l.scores {
		score *= l.decay
		if score < pruneEpsilon && score > -pruneEpsilon {
			delete(l.scores, path)
			continue
		}
		l.scores[path] = score
	}
}

// Record runs once post-call: each useful path gains one point, each
// useless path loses one. Scores are unbounded in both directions.
func (l *Ledger) Record(fb core.Feedback) {
	for _, path := range fb.UsefulSignals {
		l.scores[path]++
	}
	for _, path := range fb.UselessSignals {
		l.scores[path]--
	}
}

// Score returns the current score for a path (0 when absent).
func (l *Ledger) Score(path string) float64 { return l.scores[path] }

// Len returns the number of live entries.
func (l *Ledger) Len() int { return len(l.scores) }

// Paths returns the live paths in sorted order.
func (l *Ledger) Paths() []string {
	paths := make([]string, 0, len(l.scores))
	for p := range l.scores {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// AggregateByCategory sums entries whose leading path segment is one of the
// known categories. Bare category names count toward their own category.
func (l *Ledger) AggregateByCategory(known []string) map[string]float64 {
	recognized := make(map[string]bool, len(known))
	for _, cat := range known {
		recognized[cat] = true
	}

	sums := make(map[string]float64)
	for path, score := range l.scores {
		head, _, _ := strings.Cut(path, ".")
		if recognized[head] {
			sums[head] += score
		}
	}
	return sums
}
