package situation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/composekit/unitflow/logging"
)

// DefaultAutoSuppressThreshold is the feedback aggregate at or below which a
// category is excluded automatically.
const DefaultAutoSuppressThreshold = -3.0

// Privacy configures the privacy stage of governance.
type Privacy struct {
	// Disabled short-circuits the whole enrichment to a minimal
	// fully-empty Context, skipping filters, preferences and
	// auto-suppression.
	Disabled bool `yaml:"disabled" json:"disabled"`
	// Redact lists dotted signal paths to delete.
	Redact []string `yaml:"redact" json:"redact,omitempty"`
	// Obfuscate lists dotted signal paths whose values are replaced with
	// a deterministic hash placeholder, never the literal value.
	Obfuscate []string `yaml:"obfuscate" json:"obfuscate,omitempty"`
}

// Policy declares how a unit's context is governed. The zero value governs
// nothing: no filters, no preferences, default auto-suppression threshold,
// privacy fully open.
type Policy struct {
	// Include, when non-empty, is an explicit allow-list: everything not
	// named is excluded. Include wins over Exclude, and protects its
	// categories from auto-suppression.
	Include []Category `yaml:"include" json:"include,omitempty"`
	// Exclude names categories reset to their empty defaults.
	Exclude []Category `yaml:"exclude" json:"exclude,omitempty"`

	// Suppress is the preference-driven exclusion list; it delegates to
	// the same mechanism as Exclude.
	Suppress []Category `yaml:"suppress" json:"suppress,omitempty"`
	// Prioritize inserts one synthetic priority announcement hint naming
	// the prioritized categories at the front of the orientation hints.
	Prioritize []Category `yaml:"prioritize" json:"prioritize,omitempty"`

	Privacy Privacy `yaml:"privacy" json:"privacy"`

	// AutoSuppressThreshold overrides DefaultAutoSuppressThreshold when
	// non-nil.
	AutoSuppressThreshold *float64 `yaml:"auto_suppress_threshold" json:"auto_suppress_threshold,omitempty"`
}

// hasFilter reports whether the policy declares any static filter. A
// per-call override with a filter replaces the unit-level filter entirely.
func (p *Policy) hasFilter() bool {
	return p != nil && (len(p.Include) > 0 || len(p.Exclude) > 0)
}

// Governor applies a unit-level policy, optionally overridden per call, to a
// freshly built context. Stages run in fixed order: filter, preferences,
// adaptive auto-suppression, privacy.
type Governor struct {
	policy Policy
	logger logging.Logger
}

// NewGovernor constructs a Governor for a unit-level policy.
func NewGovernor(policy Policy, logger logging.Logger) *Governor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Governor{policy: policy, logger: logger}
}

// Policy returns the unit-level policy.
func (g *Governor) Policy() Policy { return g.policy }

// PrivacyDisabled reports whether the effective privacy mode short-circuits
// enrichment for this call.
func (g *Governor) PrivacyDisabled(override *Policy) bool {
	if override != nil && override.Privacy.Disabled {
		return true
	}
	return g.policy.Privacy.Disabled
}

// ApplyFilters runs the filter, preference and auto-suppression stages in
// place. aggregates carries the feedback ledger's per-category sums after
// this call's decay, so suppression and recovery react to the freshest
// value.
func (g *Governor) ApplyFilters(c *Context, override *Policy, aggregates map[Category]float64) {
	effective := &g.policy
	if override.hasFilter() {
		effective = override
	}

	included := map[Category]bool{}
	excluded := map[Category]bool{}

	// (a) static filter: an include-list excludes everything else;
	// include wins over exclude.
	if len(effective.Include) > 0 {
		for _, cat := range effective.Include {
			included[cat] = true
		}
		for _, cat := range Categories() {
			if !included[cat] {
				excluded[cat] = true
			}
		}
	} else {
		for _, cat := range effective.Exclude {
			excluded[cat] = true
		}
	}

	// (b) preferences: suppress delegates to exclusion; prioritize is
	// applied after exclusions below.
	prefs := g.mergedPreferences(override)
	for _, cat := range prefs.Suppress {
		if !included[cat] {
			excluded[cat] = true
		}
	}

	// (c) adaptive auto-suppression, unless explicitly protected by an
	// active include-list.
	threshold := g.threshold(override)
	for cat, sum := range aggregates {
		if sum <= threshold && !included[cat] {
			excluded[cat] = true
			g.logger.Debug("category auto-suppressed", "category", string(cat), "aggregate", sum, "threshold", threshold)
		}
	}

	for cat := range excluded {
		c.Suppress(cat)
	}

	if len(prefs.Prioritize) > 0 {
		c.PrependPriorityHint(priorityAnnouncement(prefs.Prioritize))
	}
}

// mergedPreferences layers a per-call override on the unit-level
// preferences; an override naming either preference list replaces both.
func (g *Governor) mergedPreferences(override *Policy) Policy {
	if override != nil && (len(override.Suppress) > 0 || len(override.Prioritize) > 0) {
		return *override
	}
	return g.policy
}

func (g *Governor) threshold(override *Policy) float64 {
	if override != nil && override.AutoSuppressThreshold != nil {
		return *override.AutoSuppressThreshold
	}
	if g.policy.AutoSuppressThreshold != nil {
		return *g.policy.AutoSuppressThreshold
	}
	return DefaultAutoSuppressThreshold
}

// priorityAnnouncement renders the synthetic hint naming the prioritized
// categories, in canonical category order.
func priorityAnnouncement(cats []Category) string {
	names := make([]string, 0, len(cats))
	for _, cat := range cats {
		names = append(names, string(cat))
	}
	sort.Strings(names)
	return fmt.Sprintf("priority:%s", strings.Join(names, ","))
}

// ApplyPrivacy runs the privacy stage in place: redactions first, then
// obfuscations. Unknown paths are ignored.
func (g *Governor) ApplyPrivacy(c *Context, override *Policy) {
	privacy := g.policy.Privacy
	if override != nil && (len(override.Privacy.Redact) > 0 || len(override.Privacy.Obfuscate) > 0) {
		privacy = override.Privacy
	}

	for _, path := range privacy.Redact {
		redactPath(c, path)
	}
	for _, path := range privacy.Obfuscate {
		obfuscatePath(c, path)
	}
}
