package logging

import "go.uber.org/zap"

// ZapAdapter wraps a *zap.SugaredLogger to implement the Logger interface.
// The sugared form matches the key/value convention used throughout unitflow.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapAdapter creates a Logger from an existing *zap.Logger.
func NewZapAdapter(logger *zap.Logger) Logger {
	return &ZapAdapter{sugar: logger.Sugar()}
}

// NewZapProductionLogger creates a Logger backed by zap's production
// configuration (JSON output, sampling enabled).
func NewZapProductionLogger() (Logger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapAdapter(l), nil
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
