// Package browser drives a real Chrome through go-rod. A Session owns one
// page and collects console and network output as it goes, so flows can dump
// diagnostics even when an assertion fails.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"flowcheck/internal/entity"
)

var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrSelectorNotFound = errors.New("selector not found")
)

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
}

func DefaultConfig() Config {
	return Config{
		Headless:  true,
		Timeout:   10 * time.Second,
		NoSandbox: true,
	}
}

type Session struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	console []string
	network []string
}

// NewSession launches a browser and opens a blank page. Close must be called
// to kill the Chrome process.
func NewSession(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-setuid-sandbox")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().
		ControlURL(controlURL).
		SlowMotion(cfg.SlowMotion)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	s := &Session{
		browser:  b,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
		log:      log,
	}
	s.collectLogs()
	return s, nil
}

// collectLogs subscribes to console and network events for the lifetime of
// the page.
func (s *Session) collectLogs() {
	go s.page.EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			parts := make([]string, 0, len(e.Args))
			for _, arg := range e.Args {
				if arg.Value.Val() != nil {
					parts = append(parts, arg.Value.String())
				} else if arg.Description != "" {
					parts = append(parts, arg.Description)
				}
			}
			line := fmt.Sprintf("[%s] %s", e.Type, strings.Join(parts, " "))
			s.mu.Lock()
			s.console = append(s.console, line)
			s.mu.Unlock()
		},
		func(e *proto.NetworkResponseReceived) {
			line := fmt.Sprintf("%d %s", e.Response.Status, e.Response.URL)
			s.mu.Lock()
			s.network = append(s.network, line)
			s.mu.Unlock()
		},
	)()
}

// ConsoleLines returns the console output captured so far.
func (s *Session) ConsoleLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.console))
	copy(out, s.console)
	return out
}

// NetworkLines returns the response log captured so far.
func (s *Session) NetworkLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.network))
	copy(out, s.network)
	return out
}

func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	if err := s.page.Context(ctx).Navigate(rawURL); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := s.page.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	s.page.WaitIdle(5 * time.Second)
	return nil
}

// Authenticate injects the bearer token into localStorage under the keys the
// product's frontend reads, then reloads so the app boots authenticated.
func (s *Session) Authenticate(ctx context.Context, token string) error {
	_, err := s.page.Context(ctx).Eval(`(token) => {
		localStorage.setItem('token', token);
		localStorage.setItem('auth_token', token);
	}`, token)
	if err != nil {
		return fmt.Errorf("token injection failed: %w", err)
	}
	if err := s.page.Reload(); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	if err := s.page.WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	s.page.WaitIdle(5 * time.Second)
	return nil
}

// resolve finds one element for a selector. Supported forms: CSS, XPath
// (leading / or ./), and text content via a "text=" prefix, which matches
// clickable elements by their visible text.
func (s *Session) resolve(selector string, timeout time.Duration) (*rod.Element, error) {
	p := s.page.Timeout(timeout)
	switch {
	case strings.HasPrefix(selector, "text="):
		needle := regexp.QuoteMeta(strings.TrimPrefix(selector, "text="))
		return p.ElementR(`button, a, [role="button"], [type="submit"], label, h1, h2, h3`, needle)
	case strings.HasPrefix(selector, "/") || strings.HasPrefix(selector, "./"):
		return p.ElementX(selector)
	default:
		return p.Element(selector)
	}
}

func (s *Session) Click(ctx context.Context, selector string) error {
	el, err := s.resolve(selector, s.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSelectorNotFound, selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %s: %w", selector, err)
	}
	s.page.WaitIdle(2 * time.Second)
	return nil
}

// ClickAny tries each selector in order and clicks the first that resolves.
// The markup under test is not a stable surface, so flows pass alternates.
func (s *Session) ClickAny(ctx context.Context, selectors ...string) (string, error) {
	perTry := s.perTryTimeout(len(selectors))
	for _, sel := range selectors {
		el, err := s.resolve(sel, perTry)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.log.Debug("click failed, trying next selector", zap.String("selector", sel), zap.Error(err))
			continue
		}
		s.page.WaitIdle(2 * time.Second)
		return sel, nil
	}
	return "", fmt.Errorf("%w: none of %v", ErrSelectorNotFound, selectors)
}

func (s *Session) Fill(ctx context.Context, selector, text string) error {
	el, err := s.resolve(selector, s.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSelectorNotFound, selector, err)
	}
	return fillElement(el, text)
}

// FillAny fills the first input that resolves from the selector chain.
func (s *Session) FillAny(ctx context.Context, text string, selectors ...string) (string, error) {
	perTry := s.perTryTimeout(len(selectors))
	for _, sel := range selectors {
		el, err := s.resolve(sel, perTry)
		if err != nil {
			continue
		}
		if err := fillElement(el, text); err != nil {
			s.log.Debug("fill failed, trying next selector", zap.String("selector", sel), zap.Error(err))
			continue
		}
		return sel, nil
	}
	return "", fmt.Errorf("%w: none of %v", ErrSelectorNotFound, selectors)
}

func fillElement(el *rod.Element, text string) error {
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}
	return nil
}

func (s *Session) PressEnter(ctx context.Context) error {
	el, err := s.page.Timeout(s.timeout).Element("body")
	if err != nil {
		return fmt.Errorf("%w: body: %v", ErrSelectorNotFound, err)
	}
	if err := el.Input("\r"); err != nil {
		return fmt.Errorf("failed to press Enter: %w", err)
	}
	s.page.WaitIdle(1 * time.Second)
	return nil
}

// WaitVisible blocks until an element matching the selector is visible.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.resolve(selector, s.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSelectorNotFound, selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("element never became visible: %s: %w", selector, err)
	}
	return nil
}

// WaitAnyVisible waits for the first selector from the chain to show up.
func (s *Session) WaitAnyVisible(ctx context.Context, selectors ...string) (string, error) {
	perTry := s.perTryTimeout(len(selectors))
	for _, sel := range selectors {
		el, err := s.resolve(sel, perTry)
		if err != nil {
			continue
		}
		if err := el.WaitVisible(); err != nil {
			continue
		}
		return sel, nil
	}
	return "", fmt.Errorf("%w: none of %v", ErrSelectorNotFound, selectors)
}

// Text returns the visible text of the first element matching the selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	el, err := s.resolve(selector, s.timeout)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSelectorNotFound, selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read text: %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

// Snapshot captures URL, title, body HTML and cleaned visible text.
func (s *Session) Snapshot(ctx context.Context) (*entity.PageContent, error) {
	info, err := s.page.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to get page info: %w", err)
	}

	body, err := s.page.Timeout(s.timeout).Element("body")
	if err != nil {
		return nil, fmt.Errorf("body not found: %w", err)
	}
	html, err := body.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to get HTML: %w", err)
	}

	return &entity.PageContent{
		URL:   info.URL,
		Title: info.Title,
		HTML:  html,
		Text:  VisibleText(html),
	}, nil
}

// Screenshot captures the viewport as JPEG, downscaled to keep artifacts
// small enough for decks and reports.
func (s *Session) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := s.page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > 1280 {
		img = imaging.Resize(img, 1280, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (s *Session) CurrentURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (s *Session) Close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
}

// perTryTimeout splits the session timeout across a fallback chain, with a
// floor so a long chain still gives each selector a real chance.
func (s *Session) perTryTimeout(n int) time.Duration {
	if n <= 1 {
		return s.timeout
	}
	per := s.timeout / time.Duration(n)
	if per < 2*time.Second {
		per = 2 * time.Second
	}
	return per
}
