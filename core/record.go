package core

import "time"

// StepStatus classifies the outcome of a single step record.
type StepStatus string

const (
	// StepSuccess marks a step whose invocation completed successfully.
	StepSuccess StepStatus = "success"
	// StepError marks a step whose invocation failed, either through the
	// error channel or an error-status envelope.
	StepError StepStatus = "error"
	// StepSkipped marks a conditional step whose predicate was unmet; the
	// unit was never invoked.
	StepSkipped StepStatus = "skipped"
)

// RunStatus classifies a whole run. Chains use Success/Partial/Error;
// pipelines use Completed/Partial/Failed. Both vocabularies derive purely
// from recorded step statuses plus the configured failure policy.
type RunStatus string

const (
	// RunSuccess: every chain step succeeded (or the chain was empty).
	RunSuccess RunStatus = "success"
	// RunPartial: at least one tolerated failure alongside a success.
	RunPartial RunStatus = "partial"
	// RunError: a chain halted on failure, or nothing succeeded.
	RunError RunStatus = "error"

	// RunCompleted: every pipeline step settled without failure.
	RunCompleted RunStatus = "completed"
	// RunFailed: a stop-policy step failure halted the pipeline.
	RunFailed RunStatus = "failed"
)

// StepRecord captures one invocation (or skip) inside a run. Parallel
// members and loop iterations share an ID but each gets its own record;
// match by Unit name, not position.
type StepRecord struct {
	ID       string        `json:"id"`
	Unit     string        `json:"unit"`
	Status   StepStatus    `json:"status"`
	Result   Envelope      `json:"result"`
	Slush    *Slush        `json:"slush,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the structured outcome of a chain or pipeline run: ordered
// step records, the derived run status, the last successful slush, and the
// final step's envelope (nil for an empty run).
type RunResult struct {
	RunID     string        `json:"run_id"`
	Name      string        `json:"name"`
	Status    RunStatus     `json:"status"`
	Steps     []StepRecord  `json:"steps"`
	LastSlush *Slush        `json:"last_slush,omitempty"`
	Final     *Envelope     `json:"final,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// FailedSteps returns the records that ended in error.
func (r *RunResult) FailedSteps() []StepRecord {
	var failed []StepRecord
	for _, s := range r.Steps {
		if s.Status == StepError {
			failed = append(failed, s)
		}
	}
	return failed
}
