package unit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/situation"
)

// passthrough returns a success envelope echoing the raw input; used where
// the test only cares about the lifecycle around the function.
func passthrough(_ context.Context, _ *situation.Context, input core.Input) (core.Envelope, error) {
	return core.Success(map[string]any{"echo": input.RawText()}), nil
}

func TestFuncInvokeReceivesGovernedContext(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("capture", func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
		seen = sctx
		return core.Success(nil), nil
	})

	env, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "what changed in TICKET-9?"})

	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, env.Status)
	require.NotNil(t, seen)
	assert.True(t, seen.Query.IDPattern)
	assert.NotZero(t, seen.Temporal.TimeOfDay)
}

func TestProcessCheckpointOrder(t *testing.T) {
	var order []situation.Checkpoint
	u := NewFunc("observed", passthrough, func(o *BaseOptions) {
		o.DebugHandlers = []situation.Handler{func(ev situation.CheckpointEvent) {
			order = append(order, ev.Checkpoint)
		}}
	})

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "hello"})

	require.NoError(t, err)
	assert.Equal(t, []situation.Checkpoint{
		situation.CheckpointContextBuilt,
		situation.CheckpointGoverned,
		situation.CheckpointPrivacyApplied,
		situation.CheckpointPostInvocation,
	}, order)
}

func TestProcessPostInvocationCarriesResultSize(t *testing.T) {
	var sizes []int
	u := NewFunc("sized", passthrough, func(o *BaseOptions) {
		o.DebugHandlers = []situation.Handler{func(ev situation.CheckpointEvent) {
			if ev.Checkpoint == situation.CheckpointPostInvocation {
				sizes = append(sizes, ev.ResultBytes)
			}
		}}
	})

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "hello"})

	require.NoError(t, err)
	require.Len(t, sizes, 1)
	assert.Greater(t, sizes[0], 0)
}

func TestProcessFoldsUpstreamSlush(t *testing.T) {
	upstream := core.NewSlush("unit-a").Set("verdict", "approved")

	var seen *situation.Context
	u := NewFunc("downstream", func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
		seen = sctx
		return core.Success(nil), nil
	})

	_, err := u.Invoke(context.Background(), core.Input{
		core.RawInputKey:      "continue",
		core.UpstreamSlushKey: upstream,
	})

	require.NoError(t, err)
	require.NotNil(t, seen.UpstreamSlush)
	assert.Equal(t, "unit-a", seen.UpstreamSlush.Source)

	// The folded slush is a clone; the unit cannot mutate the producer's copy.
	seen.UpstreamSlush.Signals["verdict"] = "mutated"
	assert.Equal(t, "approved", upstream.Signals["verdict"])
}

func TestProcessRecordsFeedback(t *testing.T) {
	u := NewFunc("grateful", func(_ context.Context, _ *situation.Context, _ core.Input) (core.Envelope, error) {
		return core.Success(nil).WithFeedback(&core.Feedback{
			UsefulSignals:  []string{"temporal.time_of_day"},
			UselessSignals: []string{"memory"},
		}), nil
	})

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "hi"})

	require.NoError(t, err)
	assert.Equal(t, 1.0, u.Ledger().Score("temporal.time_of_day"))
	assert.Equal(t, -1.0, u.Ledger().Score("memory"))
}

func TestProcessSkipsFeedbackOnError(t *testing.T) {
	boom := errors.New("boom")
	u := NewFunc("failing", func(_ context.Context, _ *situation.Context, _ core.Input) (core.Envelope, error) {
		return core.Errorf("boom").WithFeedback(&core.Feedback{UsefulSignals: []string{"temporal"}}), boom
	})

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "hi"})

	assert.ErrorIs(t, err, boom)
	assert.Zero(t, u.Ledger().Len())
	// The breadcrumb is still pushed; failures count as history too.
	assert.Equal(t, 1, u.Trail().Len())
}

func TestProcessPushesBreadcrumbs(t *testing.T) {
	u := NewFunc("remembers", passthrough)

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "first question?"})
	require.NoError(t, err)
	_, err = u.Invoke(context.Background(), core.Input{core.RawInputKey: "second question?"})
	require.NoError(t, err)

	crumbs := u.Trail().Crumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, "second question?", crumbs[0].Query)
	assert.Equal(t, "first question?", crumbs[1].Query)
}

func TestProcessBreadcrumbsReachNextBuild(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("recalls", func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
		seen = sctx
		return core.Success(nil), nil
	})

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "the earlier question?"})
	require.NoError(t, err)
	_, err = u.Invoke(context.Background(), core.Input{core.RawInputKey: "and now?"})
	require.NoError(t, err)

	require.Len(t, seen.Breadcrumbs, 1)
	assert.Equal(t, "the earlier question?", seen.Breadcrumbs[0].Query)
}

func TestProcessPrivacyDisabledShortCircuits(t *testing.T) {
	var order []situation.Checkpoint
	var seen *situation.Context
	u := NewFunc("private",
		func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
			seen = sctx
			return core.Success(nil), nil
		},
		func(o *BaseOptions) {
			o.Policy = situation.Policy{Privacy: situation.Privacy{Disabled: true}}
			o.Echoes = func(string) []situation.Echo {
				return []situation.Echo{{Content: "secret", Relevance: 1, Source: "vault"}}
			}
			o.DebugHandlers = []situation.Handler{func(ev situation.CheckpointEvent) {
				order = append(order, ev.Checkpoint)
			}}
		},
	)

	_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "what do you know about me?"})
	require.NoError(t, err)

	// All four checkpoints still fire, on the minimal context.
	assert.Len(t, order, 4)
	assert.Empty(t, seen.MemoryEchoes)
	assert.Equal(t, situation.QuerySignals{Hints: []string{}}, seen.Query)
	assert.Equal(t, situation.NeutralBehavioral(), seen.Behavioral)
}

func TestPrivacyDisabledLeavesNoBreadcrumb(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("discreet", func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
		seen = sctx
		return core.Success(nil), nil
	})

	_, err := u.Invoke(context.Background(), core.Input{
		core.RawInputKey:          "the query nobody may remember",
		core.SituationOverrideKey: &situation.Policy{Privacy: situation.Privacy{Disabled: true}},
	})
	require.NoError(t, err)
	assert.Zero(t, u.Trail().Len())

	// A later ordinary call must not see the private query resurface.
	_, err = u.Invoke(context.Background(), core.Input{core.RawInputKey: "an ordinary question"})
	require.NoError(t, err)
	assert.Empty(t, seen.Breadcrumbs)
}

func TestProcessPerCallPrivacyOverride(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("overridable", func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
		seen = sctx
		return core.Success(nil), nil
	})

	_, err := u.Invoke(context.Background(), core.Input{
		core.RawInputKey:          "describe TICKET-1 for me",
		core.SituationOverrideKey: &situation.Policy{Privacy: situation.Privacy{Disabled: true}},
	})
	require.NoError(t, err)

	assert.Equal(t, situation.Temporal{}, seen.Temporal)
	assert.False(t, seen.Query.IDPattern)
}

// Repeated useless-signal feedback must drive a category below the
// suppression threshold, and sustained decay must lift it back out. The
// feedback is conditional on the echoes being visible: a suppressed category
// cannot be reported useless, so the score decays and recovers.
func TestAdaptiveSuppressionAndRecovery(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("adaptive",
		func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
			seen = sctx
			env := core.Success(nil)
			if len(sctx.MemoryEchoes) > 0 {
				env = env.WithFeedback(&core.Feedback{UselessSignals: []string{"memory.echoes"}})
			}
			return env, nil
		},
		func(o *BaseOptions) {
			o.Echoes = func(string) []situation.Echo {
				return []situation.Echo{{Content: "noise", Relevance: 0.2, Source: "junk"}}
			}
		},
	)

	input := core.Input{core.RawInputKey: "another question please"}

	// Drive the aggregate below -3. With decay 0.9 the post-decay sum seen
	// by each call is 0, -0.9, -1.71, -2.44, -3.09: the memory category is
	// visible for the first four calls and suppressed on the fifth.
	for i := 0; i < 4; i++ {
		_, err := u.Invoke(context.Background(), input)
		require.NoError(t, err)
		assert.NotEmpty(t, seen.MemoryEchoes, "call %d should still see echoes", i)
	}

	_, err := u.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, seen.MemoryEchoes, "category should be auto-suppressed")

	// The suppressed call produced no feedback, so the next call's decay
	// lifts the aggregate back above the threshold.
	_, err = u.Invoke(context.Background(), input)
	require.NoError(t, err)
	assert.NotEmpty(t, seen.MemoryEchoes, "decay alone should lift the category back above the threshold")
}

func TestIncludeListProtectsAcrossCalls(t *testing.T) {
	var seen *situation.Context
	u := NewFunc("protected",
		func(_ context.Context, sctx *situation.Context, _ core.Input) (core.Envelope, error) {
			seen = sctx
			return core.Success(nil).WithFeedback(&core.Feedback{UselessSignals: []string{"memory"}}), nil
		},
		func(o *BaseOptions) {
			o.Policy = situation.Policy{Include: []situation.Category{situation.CategoryMemory}}
			o.Echoes = func(string) []situation.Echo {
				return []situation.Echo{{Content: "kept", Relevance: 0.9, Source: "notes"}}
			}
		},
	)

	for i := 0; i < 10; i++ {
		_, err := u.Invoke(context.Background(), core.Input{core.RawInputKey: "again and again"})
		require.NoError(t, err)
		assert.NotEmpty(t, seen.MemoryEchoes, "include-listed category must never be auto-suppressed")
	}
}

func TestNewBaseDefaults(t *testing.T) {
	u := NewFunc("plain", passthrough)

	assert.Equal(t, "plain", u.Name())
	assert.Equal(t, "Unit plain", u.Description())
	assert.Equal(t, situation.DefaultTrailSize, u.Trail().Cap())

	u.SetDescription("does something else")
	assert.Equal(t, "does something else", u.Description())
}
