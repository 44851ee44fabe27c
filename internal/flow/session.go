package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"flowcheck/internal/artifact"
	"flowcheck/internal/browser"
	"flowcheck/internal/client"
	"flowcheck/internal/config"
	"flowcheck/internal/entity"
	"flowcheck/internal/events"
	"flowcheck/internal/judge"
)

// Session bundles everything one simulated user has: an authenticated API
// client, a browser, an event stream, and the shared artifact store.
type Session struct {
	Config    config.Config
	Log       *zap.Logger
	Client    *client.Client
	Browser   *browser.Session
	Events    *events.Listener
	Artifacts *artifact.Store
	Account   *entity.Account
	Judge     *judge.Judge

	// Verdict is set by judge steps and copied into the report.
	Verdict *judge.Verdict

	mu        sync.Mutex
	forks     []*Session
	recorders []interface{ Stop() int }
	label     string
}

// NewSession builds a production session: a real browser, a client against
// the configured base URL, and a judge when an API key is present.
func NewSession(ctx context.Context, cfg config.Config, log *zap.Logger, store *artifact.Store) (*Session, error) {
	bcfg := browser.DefaultConfig()
	bcfg.Headless = cfg.Headless
	bcfg.SlowMotion = cfg.SlowMotion

	b, err := browser.NewSession(ctx, bcfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser: %w", err)
	}

	s := &Session{
		Config:    cfg,
		Log:       log,
		Client:    client.New(cfg.BaseURL, log),
		Browser:   b,
		Artifacts: store,
	}
	if cfg.JudgeAPIKey != "" {
		s.Judge = judge.New(judge.Config{
			APIKey:  cfg.JudgeAPIKey,
			Model:   cfg.JudgeModel,
			BaseURL: cfg.JudgeBaseURL,
		}, log)
	}
	return s, nil
}

// ConnectEvents dials the socket with the client's current token.
func (s *Session) ConnectEvents(ctx context.Context) error {
	if s.Events != nil {
		return nil
	}
	l, err := events.Dial(ctx, s.Config.SocketURL(), s.Client.Token(), s.Log)
	if err != nil {
		return err
	}
	s.Events = l
	return nil
}

// Fork creates an independent session for a second simulated user, sharing
// the run's log and artifact store. Forks are closed with the parent.
func (s *Session) Fork(ctx context.Context, label string) (*Session, error) {
	child, err := NewSession(ctx, s.Config, s.Log.With(zap.String("user", label)), s.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("fork session %q: %w", label, err)
	}
	child.label = label
	s.mu.Lock()
	s.forks = append(s.forks, child)
	s.mu.Unlock()
	return child, nil
}

// StartRecording begins frame capture and tracks the recorder, so the
// goroutine is stopped on Close even when the flow aborts before its stop
// step runs.
func (s *Session) StartRecording(dir string, interval time.Duration) *browser.Recorder {
	rec := s.Browser.StartRecording(dir, interval)
	s.mu.Lock()
	s.recorders = append(s.recorders, rec)
	s.mu.Unlock()
	return rec
}

// CaptureScreenshot grabs the current page and stores it under name.
func (s *Session) CaptureScreenshot(ctx context.Context, name string) error {
	shot, err := s.Browser.Screenshot(ctx)
	if err != nil {
		return err
	}
	_, err = s.Artifacts.SaveScreenshot(name, shot)
	return err
}

// DumpDiagnostics writes the collected console and network logs. Called once
// at the end of a run; failures here are logged, not surfaced.
func (s *Session) DumpDiagnostics() {
	if s.Browser == nil || s.Artifacts == nil {
		return
	}
	prefix := ""
	if s.label != "" {
		prefix = s.label + "_"
	}
	if lines := s.Browser.ConsoleLines(); len(lines) > 0 {
		if _, err := s.Artifacts.WriteFile(entity.ArtifactConsoleLog, prefix+"console.log",
			[]byte(strings.Join(lines, "\n")+"\n")); err != nil {
			s.Log.Warn("failed to write console log", zap.Error(err))
		}
	}
	if lines := s.Browser.NetworkLines(); len(lines) > 0 {
		if _, err := s.Artifacts.WriteFile(entity.ArtifactNetworkLog, prefix+"network.log",
			[]byte(strings.Join(lines, "\n")+"\n")); err != nil {
			s.Log.Warn("failed to write network log", zap.Error(err))
		}
	}

	s.mu.Lock()
	forks := s.forks
	s.mu.Unlock()
	for _, f := range forks {
		f.DumpDiagnostics()
	}
}

func (s *Session) Close() {
	s.mu.Lock()
	forks := s.forks
	s.forks = nil
	recorders := s.recorders
	s.recorders = nil
	s.mu.Unlock()
	for _, r := range recorders {
		r.Stop()
	}
	for _, f := range forks {
		f.Close()
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Browser != nil {
		s.Browser.Close()
	}
}
