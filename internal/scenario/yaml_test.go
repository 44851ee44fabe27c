package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: smoke
description: minimal custom flow
steps:
  - action: register
  - action: authenticate
  - name: open spawn form
    action: click
    critical: true
    selectors:
      - '[data-testid="spawn-agent"]'
      - 'text=Spawn Agent'
  - action: fill
    text: ship the feature
    selector: '[data-testid="task-input"]'
  - action: expect-text
    contains: Agent Dashboard
  - action: expect-event
    event: terminal_connected
  - name: final state
    action: screenshot
`

func TestLoadCompilesSteps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "smoke", f.Name)
	require.Len(t, f.Steps, 7)
	assert.Equal(t, "register account", f.Steps[0].Name)
	assert.Equal(t, "open spawn form", f.Steps[2].Name)
	assert.True(t, f.Steps[2].Critical)
	assert.Equal(t, "fill", f.Steps[3].Name, "unnamed steps fall back to the action")
	assert.Equal(t, "final state", f.Steps[6].Name)
}

func TestCompileRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name string
		file File
	}{
		{"no name", File{Steps: []StepSpec{{Action: "register"}}}},
		{"no steps", File{Name: "x"}},
		{"unknown action", File{Name: "x", Steps: []StepSpec{{Action: "teleport"}}}},
		{"click without selector", File{Name: "x", Steps: []StepSpec{{Action: "click"}}}},
		{"fill without text", File{Name: "x", Steps: []StepSpec{{Action: "fill", Selector: "input"}}}},
		{"navigate without url", File{Name: "x", Steps: []StepSpec{{Action: "navigate"}}}},
		{"expect-event without event", File{Name: "x", Steps: []StepSpec{{Action: "expect-event"}}}},
		{"sleep without duration", File{Name: "x", Steps: []StepSpec{{Action: "sleep"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.file)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestBuiltinsAreWellFormed(t *testing.T) {
	builtins := Builtins()
	require.NotEmpty(t, builtins)

	seen := map[string]bool{}
	for _, f := range builtins {
		assert.NotEmpty(t, f.Name)
		assert.NotEmpty(t, f.Description)
		assert.NotEmpty(t, f.Steps)
		assert.False(t, seen[f.Name], "duplicate scenario name %q", f.Name)
		seen[f.Name] = true
		for _, step := range f.Steps {
			assert.NotEmpty(t, step.Name)
			assert.NotNil(t, step.Run)
		}
	}

	_, ok := Find("register-spawn")
	assert.True(t, ok)
	_, ok = Find("nope")
	assert.False(t, ok)
}
