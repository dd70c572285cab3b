package situation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// obfuscated renders the deterministic placeholder for a value. The literal
// value never appears; equal inputs map to equal placeholders so downstream
// consumers can still correlate.
func obfuscated(v any) string {
	sum := sha256.Sum256([]byte(fmt.Sprint(v)))
	return "obf:" + hex.EncodeToString(sum[:4])
}

// redactPath deletes the value at a dotted signal path. A bare category
// name resets the whole category to its empty default. Unknown paths are
// no-ops.
func redactPath(c *Context, path string) {
	head, rest, nested := strings.Cut(path, ".")

	if !nested {
		switch head {
		case "breadcrumbs":
			c.Breadcrumbs = []Breadcrumb{}
			return
		case "upstream_slush":
			c.UpstreamSlush = nil
			return
		case "orientation":
			c.Orientation = Orientation{Hints: []string{}}
			return
		}
		c.Suppress(Category(head))
		return
	}

	switch head {
	case "temporal":
		redactTemporal(&c.Temporal, rest)
	case "query":
		redactQuery(&c.Query, rest)
	case "memory":
		c.MemoryEchoes = []Echo{}
	case "behavioral":
		redactBehavioral(&c.Behavioral, rest)
	case "priors":
		delete(c.Priors, rest)
	case "orientation":
		redactOrientation(&c.Orientation, rest)
	case "upstream_slush":
		if c.UpstreamSlush != nil {
			delete(c.UpstreamSlush.Signals, rest)
		}
	}
}

// obfuscatePath replaces the string value at a dotted path with its
// deterministic placeholder. Non-string leaves cannot carry a placeholder
// and fall back to redaction.
func obfuscatePath(c *Context, path string) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		redactPath(c, path)
		return
	}

	switch head {
	case "temporal":
		if field := temporalField(&c.Temporal, rest); field != nil {
			*field = obfuscated(*field)
		} else {
			redactTemporal(&c.Temporal, rest)
		}
	case "query":
		if rest == "specificity" {
			c.Query.Specificity = obfuscated(c.Query.Specificity)
		} else {
			redactQuery(&c.Query, rest)
		}
	case "behavioral":
		switch rest {
		case "brevity":
			c.Behavioral.Brevity = obfuscated(c.Behavioral.Brevity)
		case "technical_tier":
			c.Behavioral.TechnicalTier = obfuscated(c.Behavioral.TechnicalTier)
		case "frequent_entities":
			for i, e := range c.Behavioral.FrequentEntities {
				c.Behavioral.FrequentEntities[i] = obfuscated(e)
			}
		}
	case "priors":
		if p, ok := c.Priors[rest]; ok {
			p.Preferred = obfuscated(p.Preferred)
			c.Priors[rest] = p
		}
	case "orientation":
		switch rest {
		case "response_style":
			c.Orientation.ResponseStyle = obfuscated(c.Orientation.ResponseStyle)
		default:
			redactOrientation(&c.Orientation, rest)
		}
	case "upstream_slush":
		if c.UpstreamSlush != nil {
			if v, ok := c.UpstreamSlush.Signals[rest]; ok {
				c.UpstreamSlush.Signals[rest] = obfuscated(v)
			}
		}
	default:
		redactPath(c, path)
	}
}

func temporalField(t *Temporal, field string) *string {
	switch field {
	case "time_of_day":
		return &t.TimeOfDay
	case "day_of_week":
		return &t.DayOfWeek
	case "fiscal_bucket":
		return &t.FiscalBucket
	case "likely_activity":
		return &t.LikelyActivity
	}
	return nil
}

func redactTemporal(t *Temporal, field string) {
	if f := temporalField(t, field); f != nil {
		*f = ""
		return
	}
	switch field {
	case "weekend":
		t.Weekend = false
	case "urgent":
		t.Urgent = false
	}
}

func redactQuery(q *QuerySignals, field string) {
	switch field {
	case "specificity":
		q.Specificity = ""
	case "hints":
		q.Hints = []string{}
	case "word_count":
		q.WordCount = 0
	case "question":
		q.Question = false
	case "id_pattern":
		q.IDPattern = false
	}
}

func redactBehavioral(b *Behavioral, field string) {
	switch field {
	case "brevity":
		b.Brevity = ""
	case "technical_tier":
		b.TechnicalTier = ""
	case "frequent_entities":
		b.FrequentEntities = []string{}
	}
}

func redactOrientation(o *Orientation, field string) {
	switch field {
	case "confidence":
		o.Confidence = ""
	case "approach":
		o.Approach = ""
	case "hints":
		o.Hints = []string{}
	case "response_style":
		o.ResponseStyle = ""
	}
}
