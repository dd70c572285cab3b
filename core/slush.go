package core

import (
	"maps"
	"time"
)

// Slush is the best-effort payload one invocation emits and the next folds
// into its situational context. Source and Timestamp are required; the rest
// is advisory and may be dropped by any consumer without breaking the run.
type Slush struct {
	Source      string               `json:"source"`
	Timestamp   time.Time            `json:"timestamp"`
	Orientation *OrientationSnapshot `json:"orientation,omitempty"`
	Temporal    *TemporalSnapshot    `json:"temporal,omitempty"`
	Confidence  string               `json:"confidence,omitempty"`
	Signals     map[string]any       `json:"signals,omitempty"`
}

// OrientationSnapshot is the frozen orientation a unit chooses to pass on.
type OrientationSnapshot struct {
	Confidence    string   `json:"confidence"`
	Approach      string   `json:"approach"`
	Hints         []string `json:"hints,omitempty"`
	ResponseStyle string   `json:"response_style,omitempty"`
}

// TemporalSnapshot is the frozen temporal frame a unit chooses to pass on.
type TemporalSnapshot struct {
	TimeOfDay string `json:"time_of_day"`
	DayOfWeek string `json:"day_of_week"`
	Weekend   bool   `json:"weekend"`
}

// NewSlush constructs a slush stamped with the emitting unit's id and the
// current time.
func NewSlush(source string) *Slush {
	return &Slush{Source: source, Timestamp: time.Now().UTC()}
}

// Set records a named signal, allocating the map on first use, and returns
// the slush for chaining.
func (s *Slush) Set(name string, value any) *Slush {
	if s.Signals == nil {
		s.Signals = make(map[string]any)
	}
	s.Signals[name] = value
	return s
}

// Lookup resolves a field reference against the slush: named signals first,
// then the reserved source/confidence fields. Conditional pipeline steps
// evaluate their predicates through this method.
func (s *Slush) Lookup(field string) (any, bool) {
	if s == nil {
		return nil, false
	}
	if v, ok := s.Signals[field]; ok {
		return v, true
	}
	switch field {
	case "source":
		return s.Source, s.Source != ""
	case "confidence":
		return s.Confidence, s.Confidence != ""
	}
	return nil, false
}

// Clone returns a deep copy so one step's record cannot be mutated through
// another step's context.
func (s *Slush) Clone() *Slush {
	if s == nil {
		return nil
	}
	c := *s
	if s.Orientation != nil {
		o := *s.Orientation
		o.Hints = append([]string(nil), s.Orientation.Hints...)
		c.Orientation = &o
	}
	if s.Temporal != nil {
		t := *s.Temporal
		c.Temporal = &t
	}
	if s.Signals != nil {
		c.Signals = make(map[string]any, len(s.Signals))
		maps.Copy(c.Signals, s.Signals)
	}
	return &c
}
