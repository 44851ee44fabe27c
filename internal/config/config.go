package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config carries everything a flow run needs about the target deployment
// and the local environment.
type Config struct {
	// BaseURL is the root of the product under test, e.g. http://localhost:3000.
	BaseURL string
	// WSURL is the socket endpoint. Empty means derive from BaseURL.
	WSURL string

	Headless     bool
	SlowMotion   time.Duration
	StepTimeout  time.Duration
	PollInterval time.Duration

	ArtifactDir string

	// Judge settings. An empty APIKey disables the LLM page review.
	JudgeAPIKey  string
	JudgeModel   string
	JudgeBaseURL string
}

// FromEnv builds a Config from the environment with sane defaults.
func FromEnv(env *EnvService) Config {
	return Config{
		BaseURL:      env.GetDefault("FLOWCHECK_BASE_URL", "http://localhost:3000"),
		WSURL:        env.Get("FLOWCHECK_WS_URL"),
		Headless:     env.GetBool("FLOWCHECK_HEADLESS", true),
		SlowMotion:   env.GetDuration("FLOWCHECK_SLOW_MOTION", 0),
		StepTimeout:  env.GetDuration("FLOWCHECK_STEP_TIMEOUT", 30*time.Second),
		PollInterval: env.GetDuration("FLOWCHECK_POLL_INTERVAL", 500*time.Millisecond),
		ArtifactDir:  env.GetDefault("FLOWCHECK_ARTIFACT_DIR", "artifacts"),
		JudgeAPIKey:  env.Get("FLOWCHECK_JUDGE_API_KEY"),
		JudgeModel:   env.GetDefault("FLOWCHECK_JUDGE_MODEL", "openai/gpt-4o-mini"),
		JudgeBaseURL: env.GetDefault("FLOWCHECK_JUDGE_BASE_URL", "https://openrouter.ai/api/v1"),
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q", ErrInvalidConfig, c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: base URL scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if c.StepTimeout <= 0 {
		return fmt.Errorf("%w: step timeout must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// SocketURL returns the WS endpoint, deriving ws(s)://host/ws from the base
// URL when none is configured.
func (c Config) SocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	ws := c.BaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimRight(ws, "/") + "/ws"
}
