// Package chain implements the fixed sequential runner: a statically
// declared list of unit invocations, each threading the previous step's
// emitted slush forward under the reserved upstream-slush input key. Raw
// prior results are never implicitly forwarded; a step that needs them binds
// an explicit transform.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/logging"
)

// Transform derives the next step's input from the previous step's envelope
// and emitted slush. Its output is merged under the step's static input
// (static wins).
type Transform func(prev core.Envelope, prevSlush *core.Slush) core.Input

// Step is one statically declared chain entry.
type Step struct {
	ID        string
	Unit      core.Unit
	Static    core.Input
	Transform Transform
}

// Chain executes its steps strictly in declared order.
type Chain struct {
	name        string
	steps       []Step
	stopOnError bool
	logger      logging.Logger
}

// Options configures a Chain.
type Options struct {
	// StopOnError halts the run on the first step failure. Default true;
	// when false, failures are recorded and the run continues.
	StopOnError bool
	Logger      logging.Logger
}

// New constructs an empty chain. An empty chain is valid: running it yields
// a success with zero steps and a nil final result.
func New(name string, optFns ...func(o *Options)) *Chain {
	opts := Options{StopOnError: true, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Chain{name: name, stopOnError: opts.StopOnError, logger: opts.Logger}
}

// Append adds a step bound to a unit, with optional static input, and
// returns the chain for fluent construction. The step id defaults to the
// unit name when empty.
func (c *Chain) Append(id string, u core.Unit, static core.Input) *Chain {
	if id == "" && u != nil {
		id = u.Name()
	}
	c.steps = append(c.steps, Step{ID: id, Unit: u, Static: static})
	return c
}

// AppendTransformed adds a step whose input is derived from the previous
// step's envelope and slush before the static input is overlaid.
func (c *Chain) AppendTransformed(id string, u core.Unit, static core.Input, t Transform) *Chain {
	if id == "" && u != nil {
		id = u.Name()
	}
	c.steps = append(c.steps, Step{ID: id, Unit: u, Static: static, Transform: t})
	return c
}

// Len returns the number of declared steps.
func (c *Chain) Len() int { return len(c.steps) }

// Run executes the chain. Step 0 receives initial merged with its static
// input; later steps receive only their transform output (if bound) merged
// with static input, plus the threaded slush. Failures are always recorded;
// stopOnError controls continuation, not visibility. A non-nil error is
// returned only for engine misconfiguration (a step without a unit).
func (c *Chain) Run(ctx context.Context, initial core.Input) (*core.RunResult, error) {
	result := &core.RunResult{
		RunID:  core.NewID(),
		Name:   c.name,
		Status: core.RunSuccess,
		Steps:  []core.StepRecord{},
	}

	started := time.Now()
	defer func() { result.Duration = time.Since(started) }()

	var (
		prevEnvelope core.Envelope
		prevSlush    *core.Slush
		successes    int
		failures     int
	)

	for i, step := range c.steps {
		if step.Unit == nil {
			return nil, fmt.Errorf("chain %s: step %q has no unit bound", c.name, step.ID)
		}

		input := c.stepInput(i, step, initial, prevEnvelope, prevSlush)

		record := invoke(ctx, step.ID, step.Unit, input)
		result.Steps = append(result.Steps, record)

		if record.Status == core.StepError {
			failures++
			c.logger.Warn("chain step failed", "chain", c.name, "step", step.ID, "error", record.Error)
			if c.stopOnError {
				result.Status = core.RunError
				final := record.Result
				result.Final = &final
				result.LastSlush = prevSlush
				return result, nil
			}
			// Failed steps contribute no slush; the next step sees the
			// last successful one.
			prevEnvelope = record.Result
			continue
		}

		successes++
		prevEnvelope = record.Result
		if record.Slush != nil {
			prevSlush = record.Slush
		}
		c.logger.Debug("chain step completed", "chain", c.name, "step", step.ID, "duration", record.Duration)
	}

	switch {
	case failures == 0:
		result.Status = core.RunSuccess
	case successes == 0:
		result.Status = core.RunError
	default:
		result.Status = core.RunPartial
	}

	result.LastSlush = prevSlush
	if n := len(result.Steps); n > 0 {
		final := result.Steps[n-1].Result
		result.Final = &final
	}

	return result, nil
}

// stepInput assembles a step's input per the threading rules.
func (c *Chain) stepInput(i int, step Step, initial core.Input, prevEnvelope core.Envelope, prevSlush *core.Slush) core.Input {
	var input core.Input
	if i == 0 {
		input = initial.Merge(step.Static)
	} else if step.Transform != nil {
		input = step.Transform(prevEnvelope, prevSlush).Merge(step.Static)
	} else {
		input = core.Input{}.Merge(step.Static)
	}

	if prevSlush != nil {
		input[core.UpstreamSlushKey] = prevSlush
	}
	return input
}

// invoke runs one unit invocation and converts the outcome into a step
// record. Errors from the invocation channel and error-status envelopes are
// both step failures.
func invoke(ctx context.Context, id string, u core.Unit, input core.Input) core.StepRecord {
	started := time.Now()
	env, err := u.Invoke(ctx, input)
	record := core.StepRecord{
		ID:       id,
		Unit:     u.Name(),
		Result:   env,
		Duration: time.Since(started),
	}

	switch {
	case err != nil:
		record.Status = core.StepError
		record.Error = err.Error()
		record.Result = core.Errorf("%s", err.Error())
	case env.Failed():
		record.Status = core.StepError
		record.Error = env.Message()
	default:
		record.Status = core.StepSuccess
		record.Slush = env.Slush
	}

	return record
}
