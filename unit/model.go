package unit

import (
	"context"
	"fmt"
	"strings"

	"github.com/composekit/unitflow/core"
	"github.com/composekit/unitflow/model"
	"github.com/composekit/unitflow/situation"
)

// ModelUnit wraps a completion provider as a unit. The governed situational
// context steers the completion: orientation hints and response style are
// folded into the instructions, so governance (and privacy) directly shape
// what the model sees.
type ModelUnit struct {
	Base
	provider     model.Model
	instructions string
}

// ModelUnitOptions extends BaseOptions with model-specific settings.
type ModelUnitOptions struct {
	BaseOptions

	// Instructions is the static system-level steer prepended to the
	// situational guidance.
	Instructions string
}

// NewModelUnit constructs a model-backed unit.
func NewModelUnit(name string, provider model.Model, optFns ...func(o *ModelUnitOptions)) *ModelUnit {
	opts := ModelUnitOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelUnit{
		Base: NewBase(name, func(o *BaseOptions) {
			base := opts.BaseOptions
			if base.Description != "" {
				o.Description = base.Description
			}
			if base.Logger != nil {
				o.Logger = base.Logger
			}
			o.Policy = base.Policy
			o.DebugHandlers = base.DebugHandlers
			if base.TrailSize > 0 {
				o.TrailSize = base.TrailSize
			}
			if base.Decay > 0 {
				o.Decay = base.Decay
			}
			if base.Echoes != nil {
				o.Echoes = base.Echoes
			}
			if base.Behavior != nil {
				o.Behavior = base.Behavior
			}
			if base.Priors != nil {
				o.Priors = base.Priors
			}
		}),
		provider:     provider,
		instructions: opts.Instructions,
	}
}

// Invoke implements core.Unit: one completion per invocation, emitting a
// slush with the reply confidence and orientation snapshot.
func (m *ModelUnit) Invoke(ctx context.Context, input core.Input) (core.Envelope, error) {
	return m.Process(ctx, input, func(ctx context.Context, sctx *situation.Context, input core.Input) (core.Envelope, error) {
		raw := input.RawText()
		if raw == "" {
			return core.Errorf("model unit %s requires a textual %q input", m.Name(), core.RawInputKey), nil
		}

		resp, err := m.provider.Complete(ctx, model.Request{
			Instructions: m.buildInstructions(sctx),
			Input:        raw,
		})
		if err != nil {
			return core.Errorf("completion failed: %v", err), nil
		}

		slush := core.NewSlush(m.Name())
		slush.Confidence = sctx.Orientation.Confidence
		slush.Orientation = &core.OrientationSnapshot{
			Confidence:    sctx.Orientation.Confidence,
			Approach:      sctx.Orientation.Approach,
			Hints:         append([]string(nil), sctx.Orientation.Hints...),
			ResponseStyle: sctx.Orientation.ResponseStyle,
		}
		slush.Set("reply_length", len(resp.Text))

		return core.Success(map[string]any{
			"reply":         resp.Text,
			"finish_reason": resp.FinishReason,
			"model":         m.provider.Info().Name,
		}).WithSlush(slush), nil
	})
}

// buildInstructions folds the situational orientation into the static
// instructions. Only the governed context reaches the provider.
func (m *ModelUnit) buildInstructions(sctx *situation.Context) string {
	var b strings.Builder
	if m.instructions != "" {
		b.WriteString(m.instructions)
	}

	if style := sctx.Orientation.ResponseStyle; style != "" && style != "standard" {
		fmt.Fprintf(&b, "\nRespond in a %s style.", style)
	}
	if sctx.Orientation.Approach == situation.ApproachClarify {
		b.WriteString("\nThe request is ambiguous; ask a clarifying question before answering.")
	}
	if len(sctx.Orientation.Hints) > 0 {
		fmt.Fprintf(&b, "\nSituational hints: %s.", strings.Join(sctx.Orientation.Hints, "; "))
	}

	return strings.TrimSpace(b.String())
}
