// Package unitflow provides a high-level façade over the orchestration
// engines: a unit registry (which doubles as the pipeline resolver), chain
// construction helpers, and the transport-mappable three-operation pipeline
// surface (run / validate / status). Most applications interact with this
// package by:
//  1. Creating a UnitFlow via New() (optionally overriding the logger)
//  2. Registering one or more units (function, model-backed, custom)
//  3. Running chains or declarative pipelines against them
//
// All defaults are safe for local development and testing; production
// deployments typically supply a structured logger (slog or zap adapter).
package unitflow

import (
	"context"
	"fmt"

	"github.com/composekit/unitflow/chain"
	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/logging"
	"github.com/composekit/unitflow/pipeline"
)

// The three named pipeline operations a host may map onto any transport.
const (
	OpRun      = "run"
	OpValidate = "validate"
	OpStatus   = "status"
)

// Options configures the UnitFlow instance.
type Options struct {
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// UnitFlow is the high-level façade aggregating the unit registry and the
// pipeline runner.
type UnitFlow struct {
	registry  *core.Registry
	pipelines *pipeline.Runner
	logger    logging.Logger
}

// New creates a new UnitFlow instance with optional overrides.
func New(optFns ...func(o *Options)) *UnitFlow {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := core.NewRegistry()

	return &UnitFlow{
		registry: registry,
		pipelines: pipeline.NewRunner(registry.Resolver(), func(o *pipeline.Options) {
			o.Logger = opts.Logger
		}),
		logger: opts.Logger,
	}
}

// Register adds units to the registry, stopping at the first failure.
func (f *UnitFlow) Register(units ...core.Unit) error {
	for _, u := range units {
		if err := f.registry.Register(u); err != nil {
			return err
		}
	}
	return nil
}

// Registry exposes the underlying unit registry.
func (f *UnitFlow) Registry() *core.Registry { return f.registry }

// NewChain constructs a chain wired to the façade's logger.
func (f *UnitFlow) NewChain(name string, optFns ...func(o *chain.Options)) *chain.Chain {
	fns := append([]func(o *chain.Options){func(o *chain.Options) {
		o.Logger = f.logger
	}}, optFns...)
	return chain.New(name, fns...)
}

// RunPipeline executes a declarative spec against the registered units.
func (f *UnitFlow) RunPipeline(ctx context.Context, spec pipeline.Spec) (*pipeline.Result, error) {
	return f.pipelines.Run(ctx, spec)
}

// ValidatePipeline statically checks a spec without executing anything.
func (f *UnitFlow) ValidatePipeline(spec pipeline.Spec) pipeline.ValidationResult {
	return f.pipelines.Validate(spec)
}

// PipelineStatus returns the last run's summary, or an informational
// envelope when nothing has run yet.
func (f *UnitFlow) PipelineStatus() core.Envelope {
	return f.pipelines.Status()
}

// PipelineOperation dispatches one of the three named pipeline operations
// and always answers with a structured envelope, making the surface
// directly mappable onto a transport. Configuration problems come back as
// error-status envelopes, never as failures.
func (f *UnitFlow) PipelineOperation(ctx context.Context, op string, spec pipeline.Spec) core.Envelope {
	switch op {
	case OpRun:
		result, err := f.pipelines.Run(ctx, spec)
		if err != nil {
			return core.Errorf("%s", err.Error())
		}
		return core.Envelope{
			Status: core.StatusSuccess,
			Fields: map[string]any{
				"pipeline": result.Name,
				"run_id":   result.RunID,
				"status":   string(result.Status),
				"steps":    len(result.Steps),
			},
			Slush: result.RunSlush,
		}
	case OpValidate:
		v := f.pipelines.Validate(spec)
		return core.Envelope{
			Status: core.StatusSuccess,
			Fields: map[string]any{"valid": v.Valid, "errors": v.Errors},
		}
	case OpStatus:
		return f.pipelines.Status()
	default:
		return core.Errorf("unknown pipeline operation %q", op)
	}
}

// Invoke runs a single registered unit directly, outside any chain or
// pipeline. Convenience for hosts exposing one-shot unit calls.
func (f *UnitFlow) Invoke(ctx context.Context, name string, input core.Input) (core.Envelope, error) {
	u, ok := f.registry.Resolve(name)
	if !ok {
		return core.Envelope{}, fmt.Errorf("unit %q not registered", name)
	}
	return u.Invoke(ctx, input)
}
