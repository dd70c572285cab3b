package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/composekit/unitflow/core"
)

// stubUnit is a scripted core.Unit: each invocation pops the next scripted
// outcome (the last one repeats) and captures the input it received.
type stubUnit struct {
	name   string
	outs   []stubOut
	calls  atomic.Int32
	inputs []core.Input
}

type stubOut struct {
	env core.Envelope
	err error
}

func newStub(name string, outs ...stubOut) *stubUnit {
	if len(outs) == 0 {
		outs = []stubOut{{env: core.Success(nil)}}
	}
	return &stubUnit{name: name, outs: outs}
}

func (s *stubUnit) Name() string        { return s.name }
func (s *stubUnit) Description() string { return "stub " + s.name }

func (s *stubUnit) Invoke(_ context.Context, input core.Input) (core.Envelope, error) {
	n := int(s.calls.Add(1)) - 1
	s.inputs = append(s.inputs, input)
	if n >= len(s.outs) {
		n = len(s.outs) - 1
	}
	return s.outs[n].env, s.outs[n].err
}

func resolverFor(units ...core.Unit) core.Resolver {
	byName := make(map[string]core.Unit, len(units))
	for _, u := range units {
		byName[u.Name()] = u
	}
	return func(name string) (core.Unit, bool) {
		u, ok := byName[name]
		return u, ok
	}
}

func TestValidateCatchesConfigErrors(t *testing.T) {
	known := newStub("known")
	r := NewRunner(resolverFor(known))

	v := r.Validate(Spec{
		Name: "",
		Steps: []StepSpec{
			{ID: "s1", Type: StepAgent, Unit: "missing"},
			{ID: "s2", Type: StepAgent},
			{ID: "s3", Type: StepParallel},
			{ID: "s4", Type: StepConditional, Unit: "known"},
			{ID: "s5", Type: "teleport", Unit: "known"},
			{ID: "s6"},
		},
	})

	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "pipeline has no name")
	assert.Contains(t, v.Errors, `s1: unit "missing" does not resolve`)
	assert.Contains(t, v.Errors, "s2: agent step names no unit")
	assert.Contains(t, v.Errors, "s3: parallel step names no units")
	assert.Contains(t, v.Errors, "s4: conditional step has no predicate")
	assert.Contains(t, v.Errors, `s5: unknown step type "teleport"`)
	assert.Contains(t, v.Errors, "s6: step has no type")
}

func TestValidateAcceptsGoodSpec(t *testing.T) {
	a, b := newStub("a"), newStub("b")
	r := NewRunner(resolverFor(a, b))

	v := r.Validate(Spec{Name: "ok", Steps: []StepSpec{
		{ID: "one", Type: StepAgent, Unit: "a"},
		{ID: "two", Type: StepParallel, Units: []string{"a", "b"}},
		{ID: "three", Type: StepConditional, Unit: "b", When: &Condition{Field: "verdict", Exists: true}},
		{ID: "four", Type: StepLoop, Unit: "a", MaxIterations: 2},
	}})

	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}

func TestRunRejectsInvalidSpec(t *testing.T) {
	r := NewRunner(resolverFor())

	_, err := r.Run(context.Background(), Spec{Name: "bad", Steps: []StepSpec{{ID: "x", Type: StepAgent}}})

	assert.ErrorContains(t, err, "invalid pipeline spec")
}

func TestRunAgentSteps(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a").Set("verdict", "go"))})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	result, err := r.Run(context.Background(), Spec{Name: "two-step", Steps: []StepSpec{
		{ID: "first", Type: StepAgent, Unit: "a", Input: map[string]any{"input": "begin"}},
		{ID: "second", Type: StepAgent, Unit: "b"},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "begin", a.inputs[0].RawText())

	// Step two sees step one's slush under the reserved key.
	upstream := b.inputs[0].UpstreamSlush()
	require.NotNil(t, upstream)
	assert.Equal(t, "a", upstream.Source)

	assert.Equal(t, "a", result.LastSlush.Source)
	require.NotNil(t, result.RunSlush)
	assert.Equal(t, "two-step", result.RunSlush.Signals["pipeline"])
	assert.Equal(t, 2, result.RunSlush.Signals["steps"])
}

func TestRunStopPolicyHaltsPipeline(t *testing.T) {
	a := newStub("a", stubOut{err: errors.New("broke")})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	result, err := r.Run(context.Background(), Spec{Name: "halting", Steps: []StepSpec{
		{ID: "first", Type: StepAgent, Unit: "a"},
		{ID: "second", Type: StepAgent, Unit: "b"},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, result.Status)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, core.StepError, result.Steps[0].Status)
	assert.Zero(t, b.calls.Load())
}

func TestRunContinuePolicyYieldsPartial(t *testing.T) {
	a := newStub("a", stubOut{env: core.Errorf("broke")})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	for _, policy := range []ErrorPolicy{PolicyContinue, PolicySkip} {
		result, err := r.Run(context.Background(), Spec{Name: "tolerant", Steps: []StepSpec{
			{ID: "first", Type: StepAgent, Unit: "a", OnError: policy},
			{ID: "second", Type: StepAgent, Unit: "b"},
		}})

		require.NoError(t, err)
		assert.Equal(t, core.RunPartial, result.Status, "policy %s", policy)
		assert.Len(t, result.Steps, 2, "policy %s", policy)
	}
}

func TestRunConditionalTriggered(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a").Set("escalate", true))})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	result, err := r.Run(context.Background(), Spec{Name: "gated", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "a"},
		{ID: "escalation", Type: StepConditional, Unit: "b", When: &Condition{Field: "escalate", Equals: true}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, core.StepSuccess, result.Steps[1].Status)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestRunConditionalSkipped(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a").Set("escalate", false))})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	result, err := r.Run(context.Background(), Spec{Name: "gated", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "a"},
		{ID: "escalation", Type: StepConditional, Unit: "b", When: &Condition{Field: "escalate", Equals: true}},
	}})

	require.NoError(t, err)
	// A skip is not a failure: the run still completes.
	assert.Equal(t, core.RunCompleted, result.Status)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, core.StepSkipped, result.Steps[1].Status)
	assert.Equal(t, core.StatusInfo, result.Steps[1].Result.Status)
	assert.Zero(t, b.calls.Load())
}

func TestRunConditionalExistsMode(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a").Set("verdict", "anything"))})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	result, err := r.Run(context.Background(), Spec{Name: "exists", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "a"},
		{ID: "gated", Type: StepConditional, Unit: "b", When: &Condition{Field: "verdict", Exists: true}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.StepSuccess, result.Steps[1].Status)
}

func TestRunConditionalEqualsDeepValues(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a").Set("tags", []any{"p1", "p2"}))})
	b := newStub("b")
	r := NewRunner(resolverFor(a, b))

	// List-valued operands must compare by value, never panic.
	result, err := r.Run(context.Background(), Spec{Name: "deep", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "a"},
		{ID: "gated", Type: StepConditional, Unit: "b", When: &Condition{Field: "tags", Equals: []any{"p1", "p2"}}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.StepSuccess, result.Steps[1].Status)

	result, err = r.Run(context.Background(), Spec{Name: "deep", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "a"},
		{ID: "gated", Type: StepConditional, Unit: "b", When: &Condition{Field: "tags", Equals: []any{"p3"}}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.StepSkipped, result.Steps[1].Status)
}

func TestRunConditionalWithoutUpstreamSlushSkips(t *testing.T) {
	b := newStub("b")
	r := NewRunner(resolverFor(b))

	result, err := r.Run(context.Background(), Spec{Name: "no-slush", Steps: []StepSpec{
		{ID: "gated", Type: StepConditional, Unit: "b", When: &Condition{Field: "anything", Exists: true}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.StepSkipped, result.Steps[0].Status)
}

func TestRunLoopIterates(t *testing.T) {
	u := newStub("worker",
		stubOut{env: core.Success(nil).WithSlush(core.NewSlush("worker").Set("pass", 1))},
		stubOut{env: core.Success(nil).WithSlush(core.NewSlush("worker").Set("pass", 2))},
		stubOut{env: core.Success(nil).WithSlush(core.NewSlush("worker").Set("pass", 3))},
	)
	r := NewRunner(resolverFor(u))

	result, err := r.Run(context.Background(), Spec{Name: "looped", Steps: []StepSpec{
		{ID: "refine", Type: StepLoop, Unit: "worker", MaxIterations: 3},
	}})

	require.NoError(t, err)
	require.Len(t, result.Steps, 3)
	for _, record := range result.Steps {
		assert.Equal(t, "refine", record.ID)
	}

	// Each iteration threads the previous one's slush.
	require.NotNil(t, u.inputs[1].UpstreamSlush())
	assert.Equal(t, 1, u.inputs[1].UpstreamSlush().Signals["pass"])
	assert.Equal(t, 2, u.inputs[2].UpstreamSlush().Signals["pass"])

	assert.Equal(t, 3, result.LastSlush.Signals["pass"])
}

func TestRunLoopDefaultsToOneIteration(t *testing.T) {
	u := newStub("worker")
	r := NewRunner(resolverFor(u))

	result, err := r.Run(context.Background(), Spec{Name: "looped", Steps: []StepSpec{
		{ID: "once", Type: StepLoop, Unit: "worker"},
	}})

	require.NoError(t, err)
	assert.Len(t, result.Steps, 1)
}

func TestRunLoopStopsOnFailure(t *testing.T) {
	u := newStub("worker",
		stubOut{env: core.Success(nil)},
		stubOut{env: core.Errorf("iteration broke")},
	)
	r := NewRunner(resolverFor(u))

	result, err := r.Run(context.Background(), Spec{Name: "looped", Steps: []StepSpec{
		{ID: "refine", Type: StepLoop, Unit: "worker", MaxIterations: 5},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, result.Status)
	assert.Len(t, result.Steps, 2)
}

func TestRunParallelAllMembersSettle(t *testing.T) {
	a := newStub("a", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("a"))})
	b := newStub("b", stubOut{env: core.Errorf("member broke")})
	c := newStub("c", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("c"))})
	r := NewRunner(resolverFor(a, b, c))

	result, err := r.Run(context.Background(), Spec{Name: "fanout", Steps: []StepSpec{
		{ID: "branch", Type: StepParallel, Units: []string{"a", "b", "c"}, OnError: PolicyContinue},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunPartial, result.Status)
	require.Len(t, result.Steps, 3)

	// Every member shares the step id; records land in declaration order.
	for _, record := range result.Steps {
		assert.Equal(t, "branch", record.ID)
	}
	assert.Equal(t, "a", result.Steps[0].Unit)
	assert.Equal(t, "b", result.Steps[1].Unit)
	assert.Equal(t, "c", result.Steps[2].Unit)

	// One member's failure never cancels its siblings.
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int32(1), c.calls.Load())

	// Deterministic threading: the last-declared successful member wins.
	assert.Equal(t, "c", result.LastSlush.Source)
}

// scratchUnit writes a working key into its own input bag, the way a real
// unit may stash scratch state, and taints any upstream slush it received.
type scratchUnit struct {
	name string
	seen core.Input
}

func (s *scratchUnit) Name() string        { return s.name }
func (s *scratchUnit) Description() string { return "scratch " + s.name }

func (s *scratchUnit) Invoke(_ context.Context, input core.Input) (core.Envelope, error) {
	input["scratch_"+s.name] = true
	if up := input.UpstreamSlush(); up != nil {
		up.Set("tainted_by", s.name)
	}
	s.seen = input
	return core.Success(nil), nil
}

func TestRunParallelMembersGetIsolatedInputs(t *testing.T) {
	first := newStub("first", stubOut{env: core.Success(nil).WithSlush(core.NewSlush("first").Set("verdict", "go"))})
	a := &scratchUnit{name: "a"}
	b := &scratchUnit{name: "b"}
	r := NewRunner(resolverFor(first, a, b))

	result, err := r.Run(context.Background(), Spec{Name: "isolated", Steps: []StepSpec{
		{ID: "probe", Type: StepAgent, Unit: "first"},
		{ID: "branch", Type: StepParallel, Units: []string{"a", "b"}},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, result.Status)

	// Each member saw only its own scratch writes.
	require.NotNil(t, a.seen)
	require.NotNil(t, b.seen)
	assert.NotContains(t, a.seen, "scratch_b")
	assert.NotContains(t, b.seen, "scratch_a")

	// Each member received its own slush clone, so tainting it reaches
	// neither the sibling nor the recorded original.
	assert.Equal(t, "a", a.seen.UpstreamSlush().Signals["tainted_by"])
	assert.Equal(t, "b", b.seen.UpstreamSlush().Signals["tainted_by"])
	assert.NotContains(t, result.Steps[0].Slush.Signals, "tainted_by")
}

func TestRunParallelStopPolicyWaitsForAll(t *testing.T) {
	a := newStub("a", stubOut{err: errors.New("fast failure")})
	b := newStub("b")
	after := newStub("after")
	r := NewRunner(resolverFor(a, b, after))

	result, err := r.Run(context.Background(), Spec{Name: "fanout", Steps: []StepSpec{
		{ID: "branch", Type: StepParallel, Units: []string{"a", "b"}},
		{ID: "next", Type: StepAgent, Unit: "after"},
	}})

	require.NoError(t, err)
	assert.Equal(t, core.RunFailed, result.Status)
	// Both members settled before the halt took effect.
	assert.Len(t, result.Steps, 2)
	assert.Equal(t, int32(1), b.calls.Load())
	assert.Zero(t, after.calls.Load())
}

func TestStatusBeforeAndAfterRun(t *testing.T) {
	u := newStub("a")
	r := NewRunner(resolverFor(u))

	env := r.Status()
	assert.Equal(t, core.StatusInfo, env.Status)
	assert.Equal(t, "no run yet", env.Message())

	result, err := r.Run(context.Background(), Spec{Name: "once", Steps: []StepSpec{
		{ID: "only", Type: StepAgent, Unit: "a"},
	}})
	require.NoError(t, err)

	env = r.Status()
	assert.Equal(t, core.StatusSuccess, env.Status)
	assert.Equal(t, "once", env.Fields["pipeline"])
	assert.Equal(t, result.RunID, env.Fields["run_id"])
	assert.Equal(t, string(core.RunCompleted), env.Fields["status"])
	assert.Equal(t, 1, env.Fields["steps"])
	require.NotNil(t, env.Slush)
	assert.Equal(t, "pipeline:once", env.Slush.Source)
}

func TestRunEmptySpec(t *testing.T) {
	r := NewRunner(resolverFor())

	result, err := r.Run(context.Background(), Spec{Name: "empty"})

	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, result.Status)
	assert.Empty(t, result.Steps)
	assert.Nil(t, result.Final)
}
