// Package unit provides the building blocks for composable units: Base
// bundles the per-instance situational machinery (context builder,
// governance, feedback ledger, breadcrumb trail) behind one enriched
// invocation lifecycle; Func wraps a plain Go function as a unit; Model
// wraps a completion provider as a unit.
package unit

import (
	"context"
	"fmt"

	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/feedback"
	"github.com/composekit/unitflow/logging"
	"github.com/composekit/unitflow/situation"
)

// Base bundles the mutable state owned by a unit instance and the enriched
// invocation lifecycle every concrete unit runs through. Embed it and supply
// an Invoke method to satisfy core.Unit.
//
// A Base belongs to exactly one invocation path at a time: the ledger and
// trail are unsynchronized by design. Parallel fan-out must use distinct
// instances if this state matters.
type Base struct {
	name        string
	description string

	builder   *situation.Builder
	governor  *situation.Governor
	observers *situation.Observers
	ledger    *feedback.Ledger
	trail     *situation.Trail
	logger    logging.Logger
}

// BaseOptions holds construction overrides for a Base.
type BaseOptions struct {
	Description string
	Logger      logging.Logger

	// Policy is the unit-level governance default; a per-call override
	// under core.SituationOverrideKey beats it.
	Policy situation.Policy

	// DebugHandlers subscribe to the four enrichment checkpoints.
	DebugHandlers []situation.Handler

	// TrailSize bounds the breadcrumb ring (situation.DefaultTrailSize
	// when zero).
	TrailSize int

	// Decay overrides the feedback ledger decay factor.
	Decay float64

	// Extension points of the context builder.
	Echoes   situation.EchoProvider
	Behavior situation.BehaviorProvider
	Priors   situation.PriorProvider
}

// NewBase constructs a Base with generated description (customizable via
// options). The builder's breadcrumb source is wired to the unit's own
// trail.
func NewBase(name string, optFns ...func(o *BaseOptions)) Base {
	opts := BaseOptions{
		Description: fmt.Sprintf("Unit %s", name),
		Logger:      logging.NoOpLogger{},
		Decay:       feedback.DefaultDecay,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	trail := situation.NewTrail(opts.TrailSize)

	b := Base{
		name:        name,
		description: opts.Description,
		governor:    situation.NewGovernor(opts.Policy, opts.Logger),
		observers:   situation.NewObservers(name, opts.Logger, opts.DebugHandlers...),
		ledger:      feedback.NewLedger(func(o *feedback.Options) { o.Decay = opts.Decay }),
		trail:       trail,
		logger:      opts.Logger,
	}

	b.builder = situation.NewBuilder(func(o *situation.BuilderOptions) {
		o.Crumbs = trail.Crumbs
		if opts.Echoes != nil {
			o.Echoes = opts.Echoes
		}
		if opts.Behavior != nil {
			o.Behavior = opts.Behavior
		}
		if opts.Priors != nil {
			o.Priors = opts.Priors
		}
	})

	return b
}

// Name returns the unit's external identifier.
func (b *Base) Name() string { return b.name }

// Description returns a detailed description of this unit's purpose.
func (b *Base) Description() string { return b.description }

// SetDescription updates the unit's description.
func (b *Base) SetDescription(desc string) { b.description = desc }

// Ledger exposes the unit's feedback ledger, mainly for hosts and tests.
func (b *Base) Ledger() *feedback.Ledger { return b.ledger }

// Trail exposes the unit's breadcrumb ring.
func (b *Base) Trail() *situation.Trail { return b.trail }

// Subscribe adds a debug checkpoint handler after construction.
func (b *Base) Subscribe(h situation.Handler) { b.observers.Subscribe(h) }

// InvokeFunc is the business logic a concrete unit runs inside the enriched
// lifecycle: it receives the governed situational context alongside the raw
// named inputs.
type InvokeFunc func(ctx context.Context, sctx *situation.Context, input core.Input) (core.Envelope, error)

// Process runs one enriched invocation:
//
//  1. decay the feedback ledger
//  2. build the situational context (folding in upstream slush)
//  3. apply governance (filter, preferences, auto-suppression, privacy),
//     firing the debug checkpoints
//  4. invoke fn
//  5. fire the post-invocation checkpoint with the result size
//  6. record envelope feedback and push a breadcrumb
//
// When privacy is disabled the enrichment short-circuits to a minimal empty
// context, skipping the filter stages, and the raw query is kept out of the
// breadcrumb trail.
func (b *Base) Process(ctx context.Context, input core.Input, fn InvokeFunc) (core.Envelope, error) {
	raw := input.RawText()
	override := situationOverride(input)

	b.ledger.Decay()

	privacyDisabled := b.governor.PrivacyDisabled(override)

	var sctx *situation.Context
	if privacyDisabled {
		sctx = b.builder.Minimal()
		b.observers.Emit(situation.CheckpointContextBuilt, sctx, 0)
		b.observers.Emit(situation.CheckpointGoverned, sctx, 0)
	} else {
		sctx = b.builder.Build(raw)
		sctx.UpstreamSlush = input.UpstreamSlush().Clone()

		b.observers.Emit(situation.CheckpointContextBuilt, sctx, 0)

		aggregates := b.categoryAggregates()
		b.governor.ApplyFilters(sctx, override, aggregates)
		b.observers.Emit(situation.CheckpointGoverned, sctx, 0)

		b.governor.ApplyPrivacy(sctx, override)
	}
	b.observers.Emit(situation.CheckpointPrivacyApplied, sctx, 0)

	env, err := fn(ctx, sctx, input)

	b.observers.Emit(situation.CheckpointPostInvocation, sctx, env.Size())

	if err == nil && env.Feedback != nil {
		b.ledger.Record(*env.Feedback)
	}
	// A privacy-disabled call leaves no breadcrumb: its raw query must not
	// resurface in later builds.
	if !privacyDisabled {
		b.trail.Push(raw, sctx.Orientation.Confidence, sctx.Timestamp)
	}

	return env, err
}

// categoryAggregates converts the ledger's per-category sums to the
// governance key type.
func (b *Base) categoryAggregates() map[situation.Category]float64 {
	known := make([]string, 0, len(situation.Categories()))
	for _, cat := range situation.Categories() {
		known = append(known, string(cat))
	}

	aggregates := make(map[situation.Category]float64)
	for cat, sum := range b.ledger.AggregateByCategory(known) {
		aggregates[situation.Category(cat)] = sum
	}
	return aggregates
}

// situationOverride extracts the per-call policy override from the reserved
// input key, if present.
func situationOverride(input core.Input) *situation.Policy {
	if p, ok := input[core.SituationOverrideKey].(*situation.Policy); ok {
		return p
	}
	return nil
}
