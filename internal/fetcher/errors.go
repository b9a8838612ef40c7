package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FetchError is returned for any failed listing page request: a non-2xx
// status (Status set), a transport failure (Cause set) or an undecodable
// body (both set).
type FetchError struct {
	Page   int
	Status int
	Cause  error
}

func (e *FetchError) Error() string {
	switch {
	case e.Cause != nil && e.Status != 0:
		return fmt.Sprintf("fetch page %d: status %d: %v", e.Page, e.Status, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("fetch page %d: %v", e.Page, e.Cause)
	default:
		return fmt.Sprintf("fetch page %d: unexpected status %d", e.Page, e.Status)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Kind labels the failure for logs and metrics.
func (e *FetchError) Kind() string {
	if e == nil {
		return "unknown"
	}
	if e.Cause == nil {
		return "status"
	}
	if errors.Is(e.Cause, context.Canceled) {
		return "canceled"
	}
	if errors.Is(e.Cause, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(e.Cause, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if e.Status != 0 {
		return "decode"
	}
	return "connection"
}
