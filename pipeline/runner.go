package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/logging"
)

// Result is the outcome of one pipeline run: the ordered step records plus
// the run-level slush summarizing pipeline name and step count.
type Result struct {
	core.RunResult
	RunSlush *core.Slush `json:"run_slush,omitempty"`
}

// ValidationResult lists every configuration problem found in a spec.
// Validation executes nothing.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Runner executes declarative pipeline specs against units resolved by name
// through the injected resolver. Safe for concurrent use; the last-run
// summary is guarded internally.
type Runner struct {
	resolver core.Resolver
	logger   logging.Logger

	mu   sync.Mutex
	last *Result
}

// Options configures a Runner.
type Options struct {
	Logger logging.Logger
}

// NewRunner constructs a Runner around a resolver.
func NewRunner(resolver core.Resolver, optFns ...func(o *Options)) *Runner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{resolver: resolver, logger: opts.Logger}
}

// Validate statically checks a spec: the pipeline must be named, every
// agent/conditional/loop step must name a unit, every parallel step must
// name at least one, and every name must resolve.
func (r *Runner) Validate(spec Spec) ValidationResult {
	var errs []string

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, "pipeline has no name")
	}

	for i, step := range spec.Steps {
		label := step.ID
		if label == "" {
			label = fmt.Sprintf("step %d", i)
		}

		switch step.Type {
		case StepAgent, StepConditional, StepLoop:
			if step.Unit == "" {
				errs = append(errs, fmt.Sprintf("%s: %s step names no unit", label, step.Type))
			} else if _, ok := r.resolver(step.Unit); !ok {
				errs = append(errs, fmt.Sprintf("%s: unit %q does not resolve", label, step.Unit))
			}
			if step.Type == StepConditional && step.When == nil {
				errs = append(errs, fmt.Sprintf("%s: conditional step has no predicate", label))
			}
		case StepParallel:
			if len(step.Units) == 0 {
				errs = append(errs, fmt.Sprintf("%s: parallel step names no units", label))
			}
			for _, name := range step.Units {
				if _, ok := r.resolver(name); !ok {
					errs = append(errs, fmt.Sprintf("%s: unit %q does not resolve", label, name))
				}
			}
		case "":
			errs = append(errs, fmt.Sprintf("%s: step has no type", label))
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown step type %q", label, step.Type))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Run executes the spec's steps in declared order. Configuration problems
// surface as an error; step failures never do — they are recorded, and the
// per-step onError policy decides continuation.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if v := r.Validate(spec); !v.Valid {
		return nil, fmt.Errorf("invalid pipeline spec: %s", strings.Join(v.Errors, "; "))
	}

	result := &Result{RunResult: core.RunResult{
		RunID:  core.NewID(),
		Name:   spec.Name,
		Status: core.RunCompleted,
		Steps:  []core.StepRecord{},
	}}

	started := time.Now()
	run := runState{}

	for _, step := range spec.Steps {
		var halted bool
		switch step.Type {
		case StepAgent:
			halted = r.runAgent(ctx, step, &run, result)
		case StepParallel:
			halted = r.runParallel(ctx, step, &run, result)
		case StepConditional:
			halted = r.runConditional(ctx, step, &run, result)
		case StepLoop:
			halted = r.runLoop(ctx, step, &run, result)
		}
		if halted {
			result.Status = core.RunFailed
			break
		}
	}

	if result.Status != core.RunFailed {
		if run.failures > 0 {
			result.Status = core.RunPartial
		} else {
			result.Status = core.RunCompleted
		}
	}

	result.LastSlush = run.lastSlush
	if n := len(result.Steps); n > 0 {
		final := result.Steps[n-1].Result
		result.Final = &final
	}
	result.Duration = time.Since(started)

	result.RunSlush = core.NewSlush("pipeline:" + spec.Name).
		Set("pipeline", spec.Name).
		Set("steps", len(result.Steps))

	r.mu.Lock()
	r.last = result
	r.mu.Unlock()

	r.logger.Info("pipeline run finished",
		"pipeline", spec.Name, "run_id", result.RunID,
		"status", string(result.Status), "steps", len(result.Steps))

	return result, nil
}

// Status returns the last run's summary without re-executing, or an
// informational envelope when nothing has run yet.
func (r *Runner) Status() core.Envelope {
	r.mu.Lock()
	last := r.last
	r.mu.Unlock()

	if last == nil {
		return core.Infof("no run yet")
	}

	return core.Envelope{
		Status: core.StatusSuccess,
		Fields: map[string]any{
			"pipeline": last.Name,
			"run_id":   last.RunID,
			"status":   string(last.Status),
			"steps":    len(last.Steps),
			"duration": last.Duration.String(),
		},
		Slush: last.RunSlush,
	}
}

// runState threads the cross-step execution state of one run.
type runState struct {
	lastSlush *core.Slush
	failures  int
}

// stepInput assembles the declared static input plus the threaded slush. The
// slush is cloned: units may mutate what they receive without reaching the
// recorded original or a parallel sibling's copy.
func (run *runState) stepInput(step StepSpec) core.Input {
	input := core.Input{}.Merge(core.Input(step.Input))
	if run.lastSlush != nil {
		input[core.UpstreamSlushKey] = run.lastSlush.Clone()
	}
	return input
}

// settle folds one record into the run, returning true when the step's
// policy halts the run.
func (run *runState) settle(record core.StepRecord, policy ErrorPolicy, result *Result) bool {
	result.Steps = append(result.Steps, record)

	switch record.Status {
	case core.StepError:
		run.failures++
		return !policy.continues()
	case core.StepSuccess:
		if record.Slush != nil {
			run.lastSlush = record.Slush
		}
	}
	return false
}

func (r *Runner) runAgent(ctx context.Context, step StepSpec, run *runState, result *Result) bool {
	u, _ := r.resolver(step.Unit)
	record := invoke(ctx, step.ID, u, run.stepInput(step))
	return run.settle(record, step.policy(), result)
}

// runParallel starts every member together and settles only once all have
// finished; one member's failure never cancels siblings. Members share the
// step id but each gets its own record, appended in declaration order so
// the threaded slush stays deterministic.
func (r *Runner) runParallel(ctx context.Context, step StepSpec, run *runState, result *Result) bool {
	records := make([]core.StepRecord, len(step.Units))

	var wg sync.WaitGroup
	for i, name := range step.Units {
		u, _ := r.resolver(name)
		// Each member gets its own input map: units may write scratch keys
		// into their input bag, which must not race a sibling's.
		input := run.stepInput(step)
		wg.Add(1)
		go func(i int, u core.Unit, input core.Input) {
			defer wg.Done()
			records[i] = invoke(ctx, step.ID, u, input)
		}(i, u, input)
	}
	wg.Wait()

	halt := false
	for _, record := range records {
		if run.settle(record, step.policy(), result) {
			halt = true
		}
	}
	return halt
}

func (r *Runner) runConditional(ctx context.Context, step StepSpec, run *runState, result *Result) bool {
	if !evaluate(step.When, run.lastSlush) {
		result.Steps = append(result.Steps, core.StepRecord{
			ID:     step.ID,
			Unit:   step.Unit,
			Status: core.StepSkipped,
			Result: core.Infof("condition not met"),
		})
		r.logger.Debug("conditional step skipped", "step", step.ID, "unit", step.Unit)
		return false
	}
	return r.runAgent(ctx, step, run, result)
}

// runLoop invokes the bound unit up to the iteration bound unconditionally,
// each iteration threading the previous one's slush. A bound below one is
// treated as a single iteration.
func (r *Runner) runLoop(ctx context.Context, step StepSpec, run *runState, result *Result) bool {
	iters := step.MaxIterations
	if iters < 1 {
		iters = 1
	}

	u, _ := r.resolver(step.Unit)
	for i := 0; i < iters; i++ {
		record := invoke(ctx, step.ID, u, run.stepInput(step))
		if run.settle(record, step.policy(), result) {
			return true
		}
	}
	return false
}

// evaluate applies a conditional predicate to the most recent slush. Absent
// slush never satisfies a predicate. Equality is deep: signal values and
// YAML-decoded operands carry dynamic types (lists, maps) a plain == would
// panic on.
func evaluate(cond *Condition, slush *core.Slush) bool {
	if cond == nil {
		return true
	}
	value, present := slush.Lookup(cond.Field)
	if cond.Equals != nil {
		return present && reflect.DeepEqual(value, cond.Equals)
	}
	return present
}

// invoke runs one unit invocation and converts the outcome into a step
// record. Failure-channel errors and error-status envelopes are both step
// failures.
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
