package flow

import (
	"context"
	"errors"

	"flowcheck/internal/browser"
	"flowcheck/internal/client"
	"flowcheck/internal/events"
)

var (
	// ErrAssertion marks a check on observed state that did not hold.
	ErrAssertion = errors.New("assertion failed")
	// ErrTimeout marks a wait that ran out before the condition held.
	ErrTimeout = errors.New("timed out")
)

// Classify buckets an error into the coarse taxonomy used in reports:
// api, assertion, selector, timeout, stream, error.
func Classify(err error) string {
	var apiErr *client.APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return "api"
	case errors.Is(err, ErrAssertion):
		return "assertion"
	case errors.Is(err, browser.ErrSelectorNotFound):
		return "selector"
	case errors.Is(err, events.ErrClosed):
		return "stream"
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
