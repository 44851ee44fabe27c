package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowcheck/internal/artifact"
	"flowcheck/internal/browser"
	"flowcheck/internal/client"
	"flowcheck/internal/config"
	"flowcheck/internal/entity"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	cfg := config.Config{
		BaseURL:      "http://localhost:0",
		StepTimeout:  5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		ArtifactDir:  t.TempDir(),
	}
	r := NewRunner(cfg, zap.NewNop())
	// No browser in unit tests.
	r.Factory = func(ctx context.Context, cfg config.Config, log *zap.Logger, store *artifact.Store) (*Session, error) {
		return &Session{Config: cfg, Log: log, Artifacts: store}, nil
	}
	return r
}

func TestRunAllStepsPass(t *testing.T) {
	r := testRunner(t)
	var order []string
	f := Flow{
		Name: "happy",
		Steps: []Step{
			{Name: "one", Run: func(ctx context.Context, s *Session) error { order = append(order, "one"); return nil }},
			{Name: "two", Run: func(ctx context.Context, s *Session) error { order = append(order, "two"); return nil }},
		},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, rep.Passed)
	assert.Equal(t, []string{"one", "two"}, order)
	for _, step := range rep.Steps {
		assert.Equal(t, entity.StepPassed, step.Status)
	}
}

func TestRunNonCriticalFailureContinues(t *testing.T) {
	r := testRunner(t)
	reached := false
	f := Flow{
		Name: "soft-fail",
		Steps: []Step{
			{Name: "flaky screenshot", Run: func(ctx context.Context, s *Session) error {
				return fmt.Errorf("disk full")
			}},
			{Name: "after", Run: func(ctx context.Context, s *Session) error { reached = true; return nil }},
		},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.True(t, reached, "run should continue past a non-critical failure")
	assert.True(t, rep.Passed, "non-critical mechanical failure should not sink the run")
	assert.Equal(t, entity.StepFailed, rep.Steps[0].Status)
	assert.Equal(t, "error", rep.Steps[0].ErrorClass)
}

func TestRunAssertionFailureSinksRun(t *testing.T) {
	r := testRunner(t)
	f := Flow{
		Name: "assert-fail",
		Steps: []Step{
			{Name: "check text", Run: func(ctx context.Context, s *Session) error {
				return fmt.Errorf("%w: missing text", ErrAssertion)
			}},
		},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	assert.Equal(t, "assertion", rep.Steps[0].ErrorClass)
}

func TestRunCriticalFailureSkipsRemainder(t *testing.T) {
	r := testRunner(t)
	reached := false
	f := Flow{
		Name: "critical",
		Steps: []Step{
			{Name: "register", Critical: true, Run: func(ctx context.Context, s *Session) error {
				return &client.APIError{Status: 500, Endpoint: "/api/auth/register", Body: "boom"}
			}},
			{Name: "spawn", Run: func(ctx context.Context, s *Session) error { reached = true; return nil }},
		},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.False(t, reached)
	assert.False(t, rep.Passed)
	assert.Equal(t, entity.StepFailed, rep.Steps[0].Status)
	assert.Equal(t, "api", rep.Steps[0].ErrorClass)
	assert.Equal(t, entity.StepSkipped, rep.Steps[1].Status)
}

func TestRunStepTimeout(t *testing.T) {
	r := testRunner(t)
	f := Flow{
		Name: "slow",
		Steps: []Step{
			{Name: "hang", Timeout: 50 * time.Millisecond, Run: func(ctx context.Context, s *Session) error {
				<-ctx.Done()
				return ctx.Err()
			}},
		},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "timeout", rep.Steps[0].ErrorClass)
}

func TestRunCancelSkipsRemainder(t *testing.T) {
	r := testRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reached := false
	f := Flow{
		Name: "interrupted",
		Steps: []Step{
			{Name: "first", Run: func(ctx context.Context, s *Session) error {
				cancel() // operator hits interrupt mid-step
				return nil
			}},
			{Name: "second", Run: func(ctx context.Context, s *Session) error { reached = true; return nil }},
		},
	}

	rep, err := r.Run(ctx, f)
	require.NoError(t, err)
	assert.False(t, reached, "cancelled run must not start further steps")
	assert.Equal(t, entity.StepPassed, rep.Steps[0].Status)
	assert.Equal(t, entity.StepSkipped, rep.Steps[1].Status)
}

func TestRunWritesReportArtifact(t *testing.T) {
	r := testRunner(t)
	f := Flow{
		Name:  "report",
		Steps: []Step{{Name: "noop", Run: func(ctx context.Context, s *Session) error { return nil }}},
	}

	rep, err := r.Run(context.Background(), f)
	require.NoError(t, err)

	var reportPath string
	for _, a := range rep.Artifacts {
		if a.Kind == entity.ArtifactReport {
			reportPath = a.Path
		}
	}
	require.NotEmpty(t, reportPath, "report.json should be in the manifest")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var onDisk entity.Report
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, rep.RunID, onDisk.RunID)

	_, err = os.Stat(filepath.Join(filepath.Dir(reportPath), "manifest.json"))
	assert.NoError(t, err)
}

type fakeRecorder struct{ stops int }

func (f *fakeRecorder) Stop() int { f.stops++; return 0 }

func TestCloseStopsTrackedRecorders(t *testing.T) {
	r := testRunner(t)
	rec := &fakeRecorder{}
	r.Factory = func(ctx context.Context, cfg config.Config, log *zap.Logger, store *artifact.Store) (*Session, error) {
		s := &Session{Config: cfg, Log: log, Artifacts: store}
		s.recorders = append(s.recorders, rec)
		return s, nil
	}
	f := Flow{
		Name: "aborted-capture",
		Steps: []Step{
			{Name: "spawn", Critical: true, Run: func(ctx context.Context, s *Session) error {
				return fmt.Errorf("spawn refused")
			}},
			{Name: "stop recording", Run: func(ctx context.Context, s *Session) error {
				t.Fatal("skipped step must not run")
				return nil
			}},
		},
	}

	_, err := r.Run(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.stops, "abort must still stop the recorder on Close")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"api", &client.APIError{Status: 404, Endpoint: "/x"}, "api"},
		{"wrapped api", fmt.Errorf("call: %w", &client.APIError{Status: 500}), "api"},
		{"assertion", fmt.Errorf("%w: nope", ErrAssertion), "assertion"},
		{"selector", fmt.Errorf("%w: .card", browser.ErrSelectorNotFound), "selector"},
		{"timeout", fmt.Errorf("%w: slow", ErrTimeout), "timeout"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"plain", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestPrintSummary(t *testing.T) {
	rep := &entity.Report{
		Scenario:   "demo",
		RunID:      "abc12345",
		BaseURL:    "http://localhost:3000",
		StartedAt:  time.Now(),
		FinishedAt: time.Now().Add(2 * time.Second),
		Steps: []entity.StepResult{
			{Name: "register", Status: entity.StepPassed, DurationMs: 120},
			{Name: "assert", Status: entity.StepFailed, ErrorClass: "assertion", Error: "page text missing"},
			{Name: "screenshot", Status: entity.StepSkipped},
		},
	}
	rep.Evaluate()

	var b strings.Builder
	PrintSummary(&b, rep)
	out := b.String()

	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "skip")
	assert.Contains(t, out, "Result: FAILED")
}
