//go:build e2e

// End-to-end runs: real headless Chrome driving the embedded stub. These
// need a Chrome/Chromium binary; go-rod downloads one on first use.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowcheck/internal/config"
	"flowcheck/internal/entity"
	"flowcheck/internal/flow"
	"flowcheck/internal/scenario"
	"flowcheck/internal/stub"
)

func e2eConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	return config.Config{
		BaseURL:      baseURL,
		Headless:     true,
		StepTimeout:  60 * time.Second,
		PollInterval: 100 * time.Millisecond,
		ArtifactDir:  t.TempDir(),
	}
}

func startStub(t *testing.T) *httptest.Server {
	t.Helper()
	s := stub.New(zap.NewNop())
	s.AgentDelay = 500 * time.Millisecond
	s.PreviewDelay = 200 * time.Millisecond
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func runScenario(t *testing.T, name string) *entity.Report {
	t.Helper()
	server := startStub(t)
	f, ok := scenario.Find(name)
	require.True(t, ok)

	log, err := zap.NewDevelopment()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rep, err := flow.NewRunner(e2eConfig(t, server.URL), log).Run(ctx, f)
	require.NoError(t, err)
	return rep
}

func TestRegisterSpawnFlow(t *testing.T) {
	rep := runScenario(t, "register-spawn")
	assert.True(t, rep.Passed, "failed steps: %+v", rep.Failed())

	var shots int
	for _, a := range rep.Artifacts {
		if a.Kind == entity.ArtifactScreenshot {
			shots++
		}
	}
	assert.GreaterOrEqual(t, shots, 1, "expected at least one screenshot artifact")
}

func TestTerminalFlow(t *testing.T) {
	rep := runScenario(t, "terminal")
	assert.True(t, rep.Passed, "failed steps: %+v", rep.Failed())
}

func TestPreviewFlow(t *testing.T) {
	rep := runScenario(t, "preview")
	assert.True(t, rep.Passed, "failed steps: %+v", rep.Failed())
}

func TestMultiUserFlow(t *testing.T) {
	rep := runScenario(t, "multi-user")
	assert.True(t, rep.Passed, "failed steps: %+v", rep.Failed())
}
