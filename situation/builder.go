package situation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// EchoProvider supplies relevance-ordered memory echoes for a raw input.
// The default provider returns no echoes.
type EchoProvider func(raw string) []Echo

// BehaviorProvider supplies the invoker's behavioral profile. The default
// provider returns the neutral profile.
type BehaviorProvider func() Behavioral

// PriorProvider supplies named disambiguation priors for a raw input. The
// default provider returns none.
type PriorProvider func(raw string) map[string]Prior

// CrumbProvider supplies the invoking unit's breadcrumb history, newest
// first. The default provider returns none.
type CrumbProvider func() []Breadcrumb

// BuilderOptions holds the overridable extension points of a Builder.
type BuilderOptions struct {
	Echoes   EchoProvider
	Behavior BehaviorProvider
	Priors   PriorProvider
	Crumbs   CrumbProvider

	// Now overrides the wall clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Builder derives a fresh Context from a raw input. Build is a pure
// function of the current time, the raw text and the configured extension
// points; it has no side effects.
type Builder struct {
	echoes   EchoProvider
	behavior BehaviorProvider
	priors   PriorProvider
	crumbs   CrumbProvider
	now      func() time.Time
}

// NewBuilder constructs a Builder with optional extension-point overrides.
func NewBuilder(optFns ...func(o *BuilderOptions)) *Builder {
	opts := BuilderOptions{
		Echoes:   func(string) []Echo { return []Echo{} },
		Behavior: NeutralBehavioral,
		Priors:   func(string) map[string]Prior { return map[string]Prior{} },
		Crumbs:   func() []Breadcrumb { return []Breadcrumb{} },
		Now:      time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Builder{
		echoes:   opts.Echoes,
		behavior: opts.Behavior,
		priors:   opts.Priors,
		crumbs:   opts.Crumbs,
		now:      opts.Now,
	}
}

// Minimal returns the fully-empty context for this builder's clock, used
// when privacy disables enrichment entirely.
func (b *Builder) Minimal() *Context { return Minimal(b.now()) }

// Build assembles the full situational context for one invocation. The
// orientation is synthesized last, from the already-built categories.
func (b *Builder) Build(raw string) *Context {
	at := b.now()

	c := &Context{
		Timestamp:    at,
		Temporal:     buildTemporal(at),
		Query:        buildQuerySignals(raw),
		MemoryEchoes: b.echoes(raw),
		Behavioral:   b.behavior(),
		Priors:       b.priors(raw),
		Breadcrumbs:  b.crumbs(),
	}
	if c.MemoryEchoes == nil {
		c.MemoryEchoes = []Echo{}
	}
	if c.Priors == nil {
		c.Priors = map[string]Prior{}
	}
	if c.Breadcrumbs == nil {
		c.Breadcrumbs = []Breadcrumb{}
	}

	c.Orientation = synthesizeOrientation(c)

	return c
}

// buildTemporal classifies the invocation time into the situational frame.
func buildTemporal(at time.Time) Temporal {
	t := Temporal{
		DayOfWeek: strings.ToLower(at.Weekday().String()),
		Weekend:   at.Weekday() == time.Saturday || at.Weekday() == time.Sunday,
	}

	switch h := at.Hour(); {
	case h >= 5 && h < 12:
		t.TimeOfDay = "morning"
	case h >= 12 && h < 17:
		t.TimeOfDay = "afternoon"
	case h >= 17 && h < 22:
		t.TimeOfDay = "evening"
	default:
		t.TimeOfDay = "night"
	}

	switch day, month := at.Day(), at.Month(); {
	case day >= 25 && (month == time.March || month == time.June || month == time.September || month == time.December):
		t.FiscalBucket = "quarter_end"
	case day >= 25:
		t.FiscalBucket = "month_end"
	case day <= 5:
		t.FiscalBucket = "month_start"
	default:
		t.FiscalBucket = "mid_month"
	}

	// Reporting deadlines cluster at period close.
	t.Urgent = t.FiscalBucket == "month_end" || t.FiscalBucket == "quarter_end"

	t.LikelyActivity = likelyActivity(t.TimeOfDay, t.Weekend)

	return t
}

func likelyActivity(timeOfDay string, weekend bool) string {
	if weekend {
		if timeOfDay == "night" {
			return "winding_down"
		}
		return "personal_time"
	}
	switch timeOfDay {
	case "morning":
		return "planning"
	case "afternoon":
		return "deep_work"
	case "evening":
		return "wrap_up"
	default:
		return "winding_down"
	}
}

var idPattern = regexp.MustCompile(`\b([A-Z]{2,}-\d+|#\d+|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\b`)

// buildQuerySignals derives specificity and surface hints from the raw text.
func buildQuerySignals(raw string) QuerySignals {
	q := QuerySignals{Hints: []string{}}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		q.Specificity = "vague"
		return q
	}

	words := strings.Fields(trimmed)
	q.WordCount = len(words)
	q.Question = strings.HasSuffix(trimmed, "?") || hasInterrogativeLead(words[0])
	q.IDPattern = idPattern.MatchString(trimmed)

	switch {
	case q.IDPattern || strings.Contains(trimmed, `"`):
		q.Specificity = "specific"
	case q.WordCount <= 3:
		q.Specificity = "vague"
	case q.WordCount >= 12:
		q.Specificity = "specific"
	default:
		q.Specificity = "moderate"
	}

	if q.IDPattern {
		q.Hints = append(q.Hints, "contains_identifier")
	}
	if q.Question {
		q.Hints = append(q.Hints, "question")
	}
	if q.WordCount <= 3 {
		q.Hints = append(q.Hints, "short_query")
	}

	return q
}

func hasInterrogativeLead(first string) bool {
	switch strings.ToLower(strings.Trim(first, ",.;:")) {
	case "what", "who", "where", "when", "why", "how", "which", "can", "could", "should", "is", "are", "do", "does":
		return true
	}
	return false
}

// synthesizeOrientation computes the orientation once from the built
// categories. It is never recomputed; governance may prepend exactly one
// priority hint afterwards.
func synthesizeOrientation(c *Context) Orientation {
	o := Orientation{Hints: []string{}, ResponseStyle: "standard"}

	strongPriors := 0
	for _, p := range c.Priors {
		if p.Confidence >= 0.8 {
			strongPriors++
		}
	}

	switch {
	case strongPriors > 0 || c.Query.Specificity == "specific":
		o.Confidence = ConfidenceHigh
	case c.Query.Specificity == "vague" && len(c.MemoryEchoes) == 0 && len(c.Priors) == 0:
		o.Confidence = ConfidenceLow
	default:
		o.Confidence = ConfidenceMedium
	}

	switch {
	case o.Confidence == ConfidenceLow && c.Query.Question:
		o.Approach = ApproachClarify
	case len(c.Priors) > 0:
		o.Approach = ApproachUsePreference
	case len(c.MemoryEchoes) > 0:
		o.Approach = ApproachContextual
	default:
		o.Approach = ApproachDirect
	}

	// Prior hints in deterministic order.
	names := make([]string, 0, len(c.Priors))
	for name := range c.Priors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o.Hints = append(o.Hints, fmt.Sprintf("prior:%s=%s", name, c.Priors[name].Preferred))
	}
	for _, e := range c.MemoryEchoes {
		o.Hints = append(o.Hints, fmt.Sprintf("recall:%s", e.Source))
	}
	o.Hints = append(o.Hints, c.Query.Hints...)

	if c.Behavioral.Brevity == "brief" || c.Query.WordCount > 0 && c.Query.WordCount <= 3 {
		o.ResponseStyle = "concise"
	}

	return o
}
