package situation

import (
	"maps"
	"time"

	"github.com/composekit/unitflow/core"
)

// Category names one of the independent signal categories of a Context.
type Category string

const (
	// CategoryTemporal is the wall-clock frame (time of day, fiscal bucket...).
	CategoryTemporal Category = "temporal"
	// CategoryQuery holds signals derived from the raw request text.
	CategoryQuery Category = "query"
	// CategoryMemory holds relevance-ordered memory echoes.
	CategoryMemory Category = "memory"
	// CategoryBehavioral holds the invoker's interaction preferences.
	CategoryBehavioral Category = "behavioral"
	// CategoryPriors holds named disambiguation hints.
	CategoryPriors Category = "priors"
)

// Categories returns all signal categories in their canonical order.
func Categories() []Category {
	return []Category{CategoryTemporal, CategoryQuery, CategoryMemory, CategoryBehavioral, CategoryPriors}
}

// Orientation confidence tiers.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Recommended approaches synthesized into the orientation.
const (
	ApproachDirect        = "direct"
	ApproachUsePreference = "use_preference"
	ApproachContextual    = "contextual"
	ApproachClarify       = "clarify"
)

// Temporal is the wall-clock situational frame, a pure function of the
// invocation time.
type Temporal struct {
	TimeOfDay      string `json:"time_of_day"`
	DayOfWeek      string `json:"day_of_week"`
	Weekend        bool   `json:"weekend"`
	FiscalBucket   string `json:"fiscal_bucket"`
	LikelyActivity string `json:"likely_activity"`
	Urgent         bool   `json:"urgent"`
}

// QuerySignals are derived from the raw request text.
type QuerySignals struct {
	Specificity string   `json:"specificity"`
	Hints       []string `json:"hints"`
	WordCount   int      `json:"word_count"`
	Question    bool     `json:"question"`
	IDPattern   bool     `json:"id_pattern"`
}

// Echo is one relevance-scored recollection supplied by the memory
// extension point.
type Echo struct {
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance"`
	Source    string  `json:"source"`
}

// Behavioral captures the invoker's interaction preferences. The neutral
// default applies when no behavior provider is configured or the category
// is suppressed.
type Behavioral struct {
	Brevity          string   `json:"brevity"`
	TechnicalTier    string   `json:"technical_tier"`
	FrequentEntities []string `json:"frequent_entities"`
}

// NeutralBehavioral is the documented empty default for the behavioral
// category.
func NeutralBehavioral() Behavioral {
	return Behavioral{Brevity: "neutral", TechnicalTier: "neutral", FrequentEntities: []string{}}
}

// Prior is a named disambiguation hint with a preferred value and a
// confidence in [0,1].
type Prior struct {
	Preferred  string  `json:"preferred"`
	Confidence float64 `json:"confidence"`
}

// Orientation is the synthesized summary computed once per build. It is
// mutated at most once afterwards, to prepend a priority announcement hint.
type Orientation struct {
	Confidence    string   `json:"confidence"`
	Approach      string   `json:"approach"`
	Hints         []string `json:"hints"`
	ResponseStyle string   `json:"response_style"`
}

// Breadcrumb is one bounded-history entry of a unit's past raw inputs
// tagged with that call's orientation confidence.
type Breadcrumb struct {
	Query      string    `json:"query"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence string    `json:"confidence"`
}

// Context is the enriched, per-invocation bundle of signal categories plus
// the synthesized orientation. All five categories are always present; a
// suppressed category carries its empty default.
type Context struct {
	Timestamp     time.Time        `json:"timestamp"`
	Temporal      Temporal         `json:"temporal"`
	Query         QuerySignals     `json:"query"`
	MemoryEchoes  []Echo           `json:"memory_echoes"`
	Behavioral    Behavioral       `json:"behavioral"`
	Priors        map[string]Prior `json:"priors"`
	Orientation   Orientation      `json:"orientation"`
	Breadcrumbs   []Breadcrumb     `json:"breadcrumbs"`
	UpstreamSlush *core.Slush      `json:"upstream_slush,omitempty"`

	prioritized bool // priority hint already prepended
}

// Minimal returns the fully-empty Context produced when privacy is disabled:
// every category at its empty default, no orientation hints, no breadcrumbs.
func Minimal(at time.Time) *Context {
	return &Context{
		Timestamp:    at,
		Query:        QuerySignals{Hints: []string{}},
		MemoryEchoes: []Echo{},
		Behavioral:   NeutralBehavioral(),
		Priors:       map[string]Prior{},
		Orientation: Orientation{
			Confidence:    ConfidenceLow,
			Approach:      ApproachDirect,
			Hints:         []string{},
			ResponseStyle: "standard",
		},
		Breadcrumbs: []Breadcrumb{},
	}
}

// Suppress resets the named category to its empty default. Unknown
// categories are ignored.
func (c *Context) Suppress(cat Category) {
	switch cat {
	case CategoryTemporal:
		c.Temporal = Temporal{}
	case CategoryQuery:
		c.Query = QuerySignals{Hints: []string{}}
	case CategoryMemory:
		c.MemoryEchoes = []Echo{}
	case CategoryBehavioral:
		c.Behavioral = NeutralBehavioral()
	case CategoryPriors:
		c.Priors = map[string]Prior{}
	}
}

// PrependPriorityHint inserts a synthetic hint at the front of the
// orientation hints. Only the first call has an effect; the orientation is
// computed once and mutated at most once.
func (c *Context) PrependPriorityHint(hint string) {
	if c.prioritized {
		return
	}
	c.Orientation.Hints = append([]string{hint}, c.Orientation.Hints...)
	c.prioritized = true
}

// Clone returns a deep copy. Debug checkpoints hand out clones so handlers
// can never mutate the live context.
func (c *Context) Clone() *Context {
	clone := *c
	clone.Query.Hints = append([]string(nil), c.Query.Hints...)
	clone.MemoryEchoes = append([]Echo(nil), c.MemoryEchoes...)
	clone.Behavioral.FrequentEntities = append([]string(nil), c.Behavioral.FrequentEntities...)
	clone.Priors = make(map[string]Prior, len(c.Priors))
	maps.Copy(clone.Priors, c.Priors)
	clone.Orientation.Hints = append([]string(nil), c.Orientation.Hints...)
	clone.Breadcrumbs = append([]Breadcrumb(nil), c.Breadcrumbs...)
	clone.UpstreamSlush = c.UpstreamSlush.Clone()
	return &clone
}
