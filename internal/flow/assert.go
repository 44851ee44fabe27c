package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowcheck/internal/entity"
)

// ExpectBodyContains asserts the page's visible text contains want.
func ExpectBodyContains(ctx context.Context, s *Session, want string) error {
	page, err := s.Browser.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(page.Text, want) {
		return fmt.Errorf("%w: page text does not contain %q (url %s)", ErrAssertion, want, page.URL)
	}
	return nil
}

// ExpectSelectorText asserts the element's text contains want.
func ExpectSelectorText(ctx context.Context, s *Session, selector, want string) error {
	text, err := s.Browser.Text(ctx, selector)
	if err != nil {
		return err
	}
	if !strings.Contains(text, want) {
		return fmt.Errorf("%w: %s text is %q, want substring %q", ErrAssertion, selector, text, want)
	}
	return nil
}

// ExpectURLContains asserts the current URL contains want.
func ExpectURLContains(ctx context.Context, s *Session, want string) error {
	current := s.Browser.CurrentURL()
	if !strings.Contains(current, want) {
		return fmt.Errorf("%w: url is %q, want substring %q", ErrAssertion, current, want)
	}
	return nil
}

// ExpectEvent waits up to timeout for an event of the given type and returns
// it. A miss is classified as a timeout, not an assertion: the event may be
// late rather than wrong.
func ExpectEvent(ctx context.Context, s *Session, typ entity.EventType, timeout time.Duration) (entity.Event, error) {
	if s.Events == nil {
		return entity.Event{}, fmt.Errorf("%w: event stream not connected", ErrAssertion)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ev, err := s.Events.WaitType(waitCtx, typ)
	if err != nil {
		return entity.Event{}, fmt.Errorf("%w: no %s event within %s", ErrTimeout, typ, timeout)
	}
	return ev, nil
}

// ExpectEventText waits for an event of the given type whose text contains
// want.
func ExpectEventText(ctx context.Context, s *Session, typ entity.EventType, want string, timeout time.Duration) (entity.Event, error) {
	if s.Events == nil {
		return entity.Event{}, fmt.Errorf("%w: event stream not connected", ErrAssertion)
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ev, err := s.Events.WaitFor(waitCtx, func(ev entity.Event) bool {
		return ev.Type == typ && strings.Contains(ev.Text(), want)
	})
	if err != nil {
		return entity.Event{}, fmt.Errorf("%w: no %s event containing %q within %s", ErrTimeout, typ, want, timeout)
	}
	return ev, nil
}
