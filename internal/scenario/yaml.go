package scenario

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flowcheck/internal/entity"
	"flowcheck/internal/flow"
)

// File is a scenario declared in YAML. Example:
//
//	name: smoke
//	steps:
//	  - action: register
//	  - action: authenticate
//	  - action: click
//	    selectors: ["[data-testid=spawn-agent]", "text=Spawn Agent"]
//	  - action: expect-text
//	    contains: "Agent Dashboard"
type File struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Steps       []StepSpec `yaml:"steps"`
}

type StepSpec struct {
	Name      string        `yaml:"name"`
	Action    string        `yaml:"action"`
	URL       string        `yaml:"url"`
	Selector  string        `yaml:"selector"`
	Selectors []string      `yaml:"selectors"`
	Text      string        `yaml:"text"`
	Contains  string        `yaml:"contains"`
	Event     string        `yaml:"event"`
	Task      string        `yaml:"task"`
	Duration  time.Duration `yaml:"duration"`
	Timeout   time.Duration `yaml:"timeout"`
	Critical  bool          `yaml:"critical"`
}

// Load reads a YAML scenario file and compiles it into a Flow.
func Load(path string) (flow.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flow.Flow{}, fmt.Errorf("read scenario: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return flow.Flow{}, fmt.Errorf("parse scenario: %w", err)
	}
	return Compile(f)
}

// Compile validates the file and turns each step spec into a runnable step.
func Compile(f File) (flow.Flow, error) {
	if f.Name == "" {
		return flow.Flow{}, fmt.Errorf("scenario has no name")
	}
	if len(f.Steps) == 0 {
		return flow.Flow{}, fmt.Errorf("scenario %q has no steps", f.Name)
	}

	out := flow.Flow{Name: f.Name, Description: f.Description}
	for i, spec := range f.Steps {
		step, err := compileStep(spec)
		if err != nil {
			return flow.Flow{}, fmt.Errorf("scenario %q step %d: %w", f.Name, i+1, err)
		}
		out.Steps = append(out.Steps, step)
	}
	return out, nil
}

func compileStep(spec StepSpec) (flow.Step, error) {
	selectors := spec.Selectors
	if spec.Selector != "" {
		selectors = append([]string{spec.Selector}, selectors...)
	}

	var run flow.StepFunc
	switch spec.Action {
	case "register":
		return registerStep(), nil
	case "authenticate":
		return authenticateStep(), nil
	case "connect-events":
		return connectEventsStep(), nil
	case "navigate":
		if spec.URL == "" {
			return flow.Step{}, fmt.Errorf("navigate needs url")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			return s.Browser.Navigate(ctx, spec.URL)
		}
	case "click":
		if len(selectors) == 0 {
			return flow.Step{}, fmt.Errorf("click needs selector(s)")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			_, err := s.Browser.ClickAny(ctx, selectors...)
			return err
		}
	case "fill":
		if len(selectors) == 0 || spec.Text == "" {
			return flow.Step{}, fmt.Errorf("fill needs selector(s) and text")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			_, err := s.Browser.FillAny(ctx, spec.Text, selectors...)
			return err
		}
	case "wait":
		if len(selectors) == 0 {
			return flow.Step{}, fmt.Errorf("wait needs selector(s)")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			_, err := s.Browser.WaitAnyVisible(ctx, selectors...)
			return err
		}
	case "spawn-agent":
		if spec.Task == "" {
			return flow.Step{}, fmt.Errorf("spawn-agent needs task")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			_, err := s.Client.SpawnAgent(ctx, spec.Task, "simulated")
			return err
		}
	case "expect-text":
		if spec.Contains == "" {
			return flow.Step{}, fmt.Errorf("expect-text needs contains")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			if len(selectors) > 0 {
				return flow.ExpectSelectorText(ctx, s, selectors[0], spec.Contains)
			}
			return flow.ExpectBodyContains(ctx, s, spec.Contains)
		}
	case "expect-event":
		if spec.Event == "" {
			return flow.Step{}, fmt.Errorf("expect-event needs event")
		}
		timeout := spec.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		run = func(ctx context.Context, s *flow.Session) error {
			if spec.Contains != "" {
				_, err := flow.ExpectEventText(ctx, s, entity.EventType(spec.Event), spec.Contains, timeout)
				return err
			}
			_, err := flow.ExpectEvent(ctx, s, entity.EventType(spec.Event), timeout)
			return err
		}
	case "screenshot":
		name := spec.Name
		if name == "" {
			name = "screenshot"
		}
		run = func(ctx context.Context, s *flow.Session) error {
			return s.CaptureScreenshot(ctx, name)
		}
	case "sleep":
		if spec.Duration <= 0 {
			return flow.Step{}, fmt.Errorf("sleep needs duration")
		}
		run = func(ctx context.Context, s *flow.Session) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(spec.Duration):
				return nil
			}
		}
	default:
		return flow.Step{}, fmt.Errorf("unknown action %q", spec.Action)
	}

	name := spec.Name
	if name == "" {
		name = spec.Action
	}
	return flow.Step{
		Name:     name,
		Run:      run,
		Critical: spec.Critical,
		Timeout:  spec.Timeout,
	}, nil
}
