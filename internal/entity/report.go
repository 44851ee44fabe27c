package entity

import "time"

type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records one step of a flow. ErrorClass is the coarse taxonomy
// bucket (api, selector, timeout, assertion, error) used for triage.
type StepResult struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	Critical   bool       `json:"critical"`
	ErrorClass string     `json:"error_class,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// Report is the machine-readable outcome of one flow run. It is written to
// the artifact directory alongside whatever the steps captured.
type Report struct {
	Scenario   string       `json:"scenario"`
	RunID      string       `json:"run_id"`
	BaseURL    string       `json:"base_url"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
	Artifacts  []Artifact   `json:"artifacts,omitempty"`
	Verdict    any          `json:"verdict,omitempty"`
	Passed     bool         `json:"passed"`
}

// Failed returns the steps that failed, in order.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			out = append(out, s)
		}
	}
	return out
}

// Evaluate sets Passed from the recorded steps: a run passes when no
// critical step and no assertion failed. Non-critical mechanical failures
// are reported but do not sink the run.
func (r *Report) Evaluate() {
	r.Passed = true
	for _, s := range r.Steps {
		if s.Status != StepFailed {
			continue
		}
		if s.Critical || s.ErrorClass == "assertion" {
			r.Passed = false
			return
		}
	}
}
