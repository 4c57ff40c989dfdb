package services

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors handlers branch on with errors.Is.
var (
	// ErrNotFound means no matching row. Callers that treat absence as a
	// valid outcome (completeTracking, getProfile on the stats path) must
	// not escalate it.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the requested code belongs to another user. Never
	// retried automatically; the user has to pick a different code.
	ErrConflict = errors.New("referral code already taken")

	// ErrCodeGenerationExhausted means every random candidate collided.
	// Fatal for the request; logged as anomalous since it implies the code
	// space is near saturation or the availability check is broken.
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")

	// ErrStoreTimeout and ErrStoreUnavailable are transient store failures.
	// Safe to retry verbatim: every write path is idempotent.
	ErrStoreTimeout     = errors.New("store timeout")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError reports the first rule a custom code failed, with a
// user-facing message and a sanitized suggestion they could use instead.
type ValidationError struct {
	Rule       string `json:"rule"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid referral code (%s): %s", e.Rule, e.Message)
}

// SetupFailedError wraps whatever stopped auto-provisioning. The workflow is
// retry-safe, so the handler surfaces this with a retry action rather than an
// edit form.
type SetupFailedError struct {
	Cause error
}

func (e *SetupFailedError) Error() string {
	return fmt.Sprintf("referral setup failed: %v", e.Cause)
}

func (e *SetupFailedError) Unwrap() error { return e.Cause }

// classifyStoreErr maps raw store errors onto the transient sentinels so the
// presentation layer can distinguish "retry" from "fix your input". Caller
// cancellation and anything unrecognized pass through untouched.
func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		// the caller went away; not a store outage
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if errors.Is(err, driver.ErrBadConn) ||
		strings.Contains(err.Error(), "database is closed") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return err
}
