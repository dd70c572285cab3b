// Package pipeline implements the declarative runner: a named list of typed
// steps (agent, parallel, conditional, loop) resolved dynamically by name
// through a host-supplied resolver, with per-step failure policy. Specs are
// plain Go values or YAML documents.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StepType discriminates the step union.
type StepType string

const (
	// StepAgent is a single named invocation.
	StepAgent StepType = "agent"
	// StepParallel runs a set of named invocations concurrently; members
	// share the step id.
	StepParallel StepType = "parallel"
	// StepConditional gates a single invocation on a predicate over the
	// most recent slush.
	StepConditional StepType = "conditional"
	// StepLoop repeats a single invocation up to a bound; iterations
	// share the step id.
	StepLoop StepType = "loop"
)

// ErrorPolicy controls continuation after a step failure.
type ErrorPolicy string

const (
	// PolicyStop halts the whole run on the step's failure. Default.
	PolicyStop ErrorPolicy = "stop"
	// PolicyContinue records the failure and proceeds.
	PolicyContinue ErrorPolicy = "continue"
	// PolicySkip is engine-equivalent to continue; the distinct spelling
	// is preserved for operator signaling layered outside this core.
	PolicySkip ErrorPolicy = "skip"
)

// continues reports whether the policy tolerates the failure.
func (p ErrorPolicy) continues() bool {
	return p == PolicyContinue || p == PolicySkip
}

// Condition is the predicate of a conditional step, evaluated against the
// most recent slush only (never the full context). Exactly one mode is
// active: when Equals is set the field's value must strictly match; when
// Exists is set the field must merely be present.
type Condition struct {
	Field  string `yaml:"field" json:"field"`
	Equals any    `yaml:"equals,omitempty" json:"equals,omitempty"`
	Exists bool   `yaml:"exists,omitempty" json:"exists,omitempty"`
}

// StepSpec is one declarative step. Unit carries the single unit name for
// agent/conditional/loop steps; Units lists the members of a parallel step.
type StepSpec struct {
	ID            string         `yaml:"id" json:"id"`
	Type          StepType       `yaml:"type" json:"type"`
	Unit          string         `yaml:"unit,omitempty" json:"unit,omitempty"`
	Units         []string       `yaml:"units,omitempty" json:"units,omitempty"`
	Input         map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
	When          *Condition     `yaml:"when,omitempty" json:"when,omitempty"`
	MaxIterations int            `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	OnError       ErrorPolicy    `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

// policy returns the step's effective failure policy.
func (s StepSpec) policy() ErrorPolicy {
	if s.OnError == "" {
		return PolicyStop
	}
	return s.OnError
}

// Spec is a whole declarative pipeline.
type Spec struct {
	Name  string     `yaml:"name" json:"name"`
	Steps []StepSpec `yaml:"steps" json:"steps"`
}

// ParseSpec decodes a YAML pipeline document.
func ParseSpec(data []byte) (Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return Spec{}, fmt.Errorf("failed to parse pipeline spec: %w", err)
	}
	return spec, nil
}

// LoadSpec reads and decodes a YAML pipeline document from disk.
func LoadSpec(path string) (Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Spec{}, fmt.Errorf("failed to read pipeline spec: %w", err)
	}
	return ParseSpec(data)
}
