// Package flow is the harness core: a Flow is a named sequence of steps run
// against one or more sessions, producing a structured report. Non-critical
// failures are recorded and the run continues best-effort; critical failures
// abort the remainder.
package flow

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"flowcheck/internal/artifact"
	"flowcheck/internal/config"
	"flowcheck/internal/entity"
)

type StepFunc func(ctx context.Context, s *Session) error

type Step struct {
	Name string
	Run  StepFunc
	// Critical steps abort the flow on failure; the rest of the steps are
	// reported as skipped.
	Critical bool
	// Timeout overrides the configured step timeout when non-zero.
	Timeout time.Duration
}

type Flow struct {
	Name        string
	Description string
	Steps       []Step
}

// SessionFactory builds the session a run executes against. Swapped out in
// tests for a session without a live browser.
type SessionFactory func(ctx context.Context, cfg config.Config, log *zap.Logger, store *artifact.Store) (*Session, error)

type Runner struct {
	cfg     config.Config
	log     *zap.Logger
	Factory SessionFactory
}

func NewRunner(cfg config.Config, log *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		log:     log,
		Factory: NewSession,
	}
}

// Run executes the flow and returns its report. The returned error covers
// harness setup only; step failures live in the report.
func (r *Runner) Run(ctx context.Context, f Flow) (*entity.Report, error) {
	store, err := artifact.NewStore(r.cfg.ArtifactDir, f.Name)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	rep := &entity.Report{
		Scenario:  f.Name,
		RunID:     uuid.NewString()[:8],
		BaseURL:   r.cfg.BaseURL,
		StartedAt: time.Now(),
	}
	log := r.log.With(zap.String("scenario", f.Name), zap.String("run_id", rep.RunID))
	log.Info("flow started", zap.Int("steps", len(f.Steps)), zap.String("artifacts", store.Dir()))

	s, err := r.Factory(ctx, r.cfg, log, store)
	if err != nil {
		return nil, fmt.Errorf("session setup: %w", err)
	}
	defer s.Close()

	aborted := false
	for _, step := range f.Steps {
		if !aborted && ctx.Err() != nil {
			log.Warn("run cancelled, skipping remaining steps", zap.Error(ctx.Err()))
			aborted = true
		}
		if aborted {
			rep.Steps = append(rep.Steps, entity.StepResult{
				Name:     step.Name,
				Status:   entity.StepSkipped,
				Critical: step.Critical,
			})
			continue
		}
		rep.Steps = append(rep.Steps, r.runStep(ctx, s, step, log))
		if last := rep.Steps[len(rep.Steps)-1]; last.Status == entity.StepFailed && step.Critical {
			log.Error("critical step failed, aborting flow", zap.String("step", step.Name))
			aborted = true
		}
	}

	s.DumpDiagnostics()

	rep.FinishedAt = time.Now()
	if s.Verdict != nil {
		rep.Verdict = s.Verdict
	}
	rep.Artifacts = store.Artifacts()
	rep.Evaluate()

	if err := store.WriteReport(rep); err != nil {
		log.Warn("failed to write report", zap.Error(err))
	}
	log.Info("flow finished",
		zap.Bool("passed", rep.Passed),
		zap.Int("failed_steps", len(rep.Failed())),
		zap.Duration("elapsed", rep.FinishedAt.Sub(rep.StartedAt)))
	return rep, nil
}

func (r *Runner) runStep(ctx context.Context, s *Session, step Step, log *zap.Logger) entity.StepResult {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = r.cfg.StepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := step.Run(stepCtx, s)
	elapsed := time.Since(start)

	result := entity.StepResult{
		Name:       step.Name,
		Critical:   step.Critical,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		result.Status = entity.StepFailed
		result.ErrorClass = Classify(err)
		result.Error = err.Error()
		log.Warn("step failed",
			zap.String("step", step.Name),
			zap.String("class", result.ErrorClass),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return result
	}

	result.Status = entity.StepPassed
	log.Info("step passed", zap.String("step", step.Name), zap.Duration("elapsed", elapsed))
	return result
}

// PrintSummary writes the human-readable outcome of a run.
func PrintSummary(w io.Writer, rep *entity.Report) {
	fmt.Fprintf(w, "\n%s (run %s) against %s\n", rep.Scenario, rep.RunID, rep.BaseURL)
	for _, step := range rep.Steps {
		mark := "ok  "
		switch step.Status {
		case entity.StepFailed:
			mark = "FAIL"
		case entity.StepSkipped:
			mark = "skip"
		}
		fmt.Fprintf(w, "  [%s] %-40s %6dms", mark, step.Name, step.DurationMs)
		if step.Error != "" {
			fmt.Fprintf(w, "  (%s) %s", step.ErrorClass, step.Error)
		}
		fmt.Fprintln(w)
	}
	verdict := "PASSED"
	if !rep.Passed {
		verdict = "FAILED"
	}
	fmt.Fprintf(w, "Result: %s in %s, %d artifact(s)\n",
		verdict, rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond), len(rep.Artifacts))
}
