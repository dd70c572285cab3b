package situation

import (
	"time"

	"github.com/composekit/unitflow/logging"
)

// Checkpoint labels one of the four fixed points of the enrichment pipeline
// a debug observer may subscribe to.
type Checkpoint string

const (
	// CheckpointContextBuilt fires right after the context is built,
	// before any governance.
	CheckpointContextBuilt Checkpoint = "context_built"
	// CheckpointGoverned fires after filters, preferences and adaptive
	// auto-suppression have been applied.
	CheckpointGoverned Checkpoint = "governance_applied"
	// CheckpointPrivacyApplied fires after the privacy stage; the
	// snapshot here is what the unit actually sees.
	CheckpointPrivacyApplied Checkpoint = "privacy_applied"
	// CheckpointPostInvocation fires after the unit returned, carrying a
	// result-size metric instead of a fresh context mutation.
	CheckpointPostInvocation Checkpoint = "post_invocation"
)

// CheckpointEvent is the immutable snapshot delivered to debug handlers.
type CheckpointEvent struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Unit       string     `json:"unit"`
	Timestamp  time.Time  `json:"timestamp"`
	// Context is a deep clone; handlers may inspect it freely.
	Context *Context `json:"context"`
	// ResultBytes is the serialized result size, set only on
	// CheckpointPostInvocation.
	ResultBytes int `json:"result_bytes,omitempty"`
}

// Handler receives checkpoint events. Handlers run synchronously, in
// registration order; a panicking handler is isolated and cannot affect the
// invocation or other handlers.
type Handler func(ev CheckpointEvent)

// Observers fans checkpoint events out to registered handlers.
type Observers struct {
	unit     string
	handlers []Handler
	logger   logging.Logger
}

// NewObservers constructs an observer list for the named unit.
func NewObservers(unit string, logger logging.Logger, handlers ...Handler) *Observers {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Observers{unit: unit, handlers: handlers, logger: logger}
}

// Subscribe appends a handler. Not safe to call concurrently with Emit.
func (o *Observers) Subscribe(h Handler) {
	if h != nil {
		o.handlers = append(o.handlers, h)
	}
}

// Enabled reports whether any handler is registered; callers skip snapshot
// cloning when nobody is listening.
func (o *Observers) Enabled() bool { return o != nil && len(o.handlers) > 0 }

// Emit delivers an event snapshot to every handler. Each handler runs under
// its own recover so one failure cannot interrupt the invocation or starve
// later handlers.
func (o *Observers) Emit(cp Checkpoint, c *Context, resultBytes int) {
	if !o.Enabled() {
		return
	}

	ev := CheckpointEvent{
		Checkpoint:  cp,
		Unit:        o.unit,
		Timestamp:   time.Now().UTC(),
		Context:     c.Clone(),
		ResultBytes: resultBytes,
	}

	for _, h := range o.handlers {
		o.deliver(h, ev)
	}
}

func (o *Observers) deliver(h Handler, ev CheckpointEvent) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("debug handler panicked", "unit", o.unit, "checkpoint", string(ev.Checkpoint), "panic", r)
		}
	}()
	h(ev)
}
