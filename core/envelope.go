package core

import (
	"encoding/json"
	"fmt"
)

// Status is the required discriminator of a result envelope.
type Status string

const (
	// StatusSuccess marks a completed invocation.
	StatusSuccess Status = "success"
	// StatusError marks a failed invocation reported through a
	// success-shaped envelope rather than the error channel.
	StatusError Status = "error"
	// StatusInfo marks an informational result (e.g. "no run yet").
	StatusInfo Status = "info"
)

// Envelope is the uniform result shape every unit produces. Runners
// interpret only Status, Slush and Feedback; Fields belong to the unit and
// its callers.
type Envelope struct {
	Status   Status         `json:"status"`
	Fields   map[string]any `json:"fields,omitempty"`
	Slush    *Slush         `json:"slush,omitempty"`
	Feedback *Feedback      `json:"feedback,omitempty"`
}

// Success builds a success envelope carrying the given business fields.
func Success(fields map[string]any) Envelope {
	return Envelope{Status: StatusSuccess, Fields: fields}
}

// Errorf builds an error-status envelope with a formatted message field.
func Errorf(format string, args ...any) Envelope {
	return Envelope{
		Status: StatusError,
		Fields: map[string]any{"message": fmt.Sprintf(format, args...)},
	}
}

// Infof builds an info-status envelope with a formatted message field.
func Infof(format string, args ...any) Envelope {
	return Envelope{
		Status: StatusInfo,
		Fields: map[string]any{"message": fmt.Sprintf(format, args...)},
	}
}

// Failed reports whether the envelope signals step failure.
func (e Envelope) Failed() bool { return e.Status == StatusError }

// Message returns the conventional "message" field, or "" when absent.
func (e Envelope) Message() string {
	if s, ok := e.Fields["message"].(string); ok {
		return s
	}
	return ""
}

// WithSlush returns a copy of the envelope carrying the given slush.
func (e Envelope) WithSlush(s *Slush) Envelope {
	e.Slush = s
	return e
}

// WithFeedback returns a copy of the envelope carrying the given feedback.
func (e Envelope) WithFeedback(f *Feedback) Envelope {
	e.Feedback = f
	return e
}

// Size returns the serialized byte size of the envelope. Used only as a
// metric on debug checkpoints; serialization otherwise stays at the
// transport boundary.
func (e Envelope) Size() int {
	b, err := json.Marshal(e)
	if err != nil {
		return 0
	}
	return len(b)
}

// Feedback is the optional post-call signal-utility payload a unit may
// attach to its envelope. Paths are dotted signal paths or bare category
// names (e.g. "temporal.time_of_day", "priors").
type Feedback struct {
	UsefulSignals  []string `json:"useful_signals,omitempty"`
	UselessSignals []string `json:"useless_signals,omitempty"`
}
