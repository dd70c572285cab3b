package core

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Reserved input keys interpreted by the orchestration layer. Units receive
// them alongside business inputs; everything else in an Input belongs to the
// unit alone.
const (
	// RawInputKey carries the raw textual request a unit was asked to
	// handle. The situational context builder derives its query signals
	// from this value.
	RawInputKey = "input"

	// UpstreamSlushKey carries the *Slush emitted by the previous step.
	// Runners place it here before invocation so the context merge picks
	// it up; units should not write to it.
	UpstreamSlushKey = "_upstream_slush"

	// SituationOverrideKey carries a per-call *situation.Policy override.
	// Stored as any to avoid an import cycle; the unit layer asserts it.
	SituationOverrideKey = "_situation"
)

// Input is the named-parameter bag passed to a unit invocation.
type Input map[string]any

// Merge returns a new Input containing the receiver's pairs overlaid with
// each of the given inputs in order; later values win. Nil maps are skipped.
func (in Input) Merge(overlays ...Input) Input {
	merged := make(Input, len(in))
	for k, v := range in {
		merged[k] = v
	}
	for _, o := range overlays {
		for k, v := range o {
			merged[k] = v
		}
	}
	return merged
}

// RawText returns the raw textual request carried under RawInputKey, or ""
// when absent or not a string.
func (in Input) RawText() string {
	if s, ok := in[RawInputKey].(string); ok {
		return s
	}
	return ""
}

// UpstreamSlush returns the threaded slush payload, or nil when the step has
// no upstream.
func (in Input) UpstreamSlush() *Slush {
	if s, ok := in[UpstreamSlushKey].(*Slush); ok {
		return s
	}
	return nil
}

// Unit is the uniform capability every composable unit satisfies: accept
// named inputs, return a result envelope. Failure may be signaled either via
// the returned error or via an Envelope with StatusError; runners treat both
// as step failure.
//
// Implementations must respect context cancellation on blocking work. A unit
// instance owns its mutable state (breadcrumbs, feedback ledger); distinct
// instances are required on concurrent invocation paths if that state
// matters.
type Unit interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input Input) (Envelope, error)
}

// Resolver maps a unit name to an instance. The pipeline runner uses it for
// dynamic dispatch and static validation.
type Resolver func(name string) (Unit, bool)

// Registry is a name-to-instance unit registry a host supplies to the
// pipeline runner. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	units map[string]Unit
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{units: make(map[string]Unit)}
}

// Register adds a unit under its own name. Registering a second unit with
// the same name is a configuration error.
func (r *Registry) Register(u Unit) error {
	if u == nil || u.Name() == "" {
		return fmt.Errorf("cannot register unit without a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.units[u.Name()]; exists {
		return fmt.Errorf("unit %q already registered", u.Name())
	}
	r.units[u.Name()] = u
	return nil
}

// Resolve returns the unit registered under name.
func (r *Registry) Resolve(name string) (Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// Resolver adapts the registry to the Resolver callback shape.
func (r *Registry) Resolver() Resolver { return r.Resolve }

// Names returns the registered unit names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for n := range r.units {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewID generates a unique identifier for runs and records.
func NewID() string { return uuid.NewString() }
