package token

import "fmt"

const (
	ReasonNoAuthObserved = "no-auth-observed"
	ReasonNavigation     = "navigation-error"
)

// AcquisitionError means no credential could be captured; the run must not
// start fetching.
type AcquisitionError struct {
	Reason string
	Cause  error
}

func (e *AcquisitionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("token acquisition failed: %s", e.Reason)
	}
	return fmt.Sprintf("token acquisition failed: %s: %v", e.Reason, e.Cause)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Cause
}
