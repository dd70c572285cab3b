package unit

import (
	"context"

	"github.com/composekit/unitflow/core"
)

// Func adapts a plain Go function into a unit. The function runs inside the
// full enriched lifecycle, so it receives the governed situational context
// alongside the raw named inputs.
type Func struct {
	Base
	fn InvokeFunc
}

// NewFunc wraps fn as a named unit.
func NewFunc(name string, fn InvokeFunc, optFns ...func(o *BaseOptions)) *Func {
	return &Func{
		Base: NewBase(name, optFns...),
		fn:   fn,
	}
}

// Invoke implements core.Unit.
func (f *Func) Invoke(ctx context.Context, input core.Input) (core.Envelope, error) {
	return f.Process(ctx, input, f.fn)
}
