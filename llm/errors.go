package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrUnavailable marks every failure of the generation service. Callers can
// offer a retry; the Reason on UnavailableError tells them why.
var ErrUnavailable = errors.New("generation unavailable")

type Reason string

const (
	ReasonQuota    Reason = "quota"
	ReasonTimeout  Reason = "timeout"
	ReasonNetwork  Reason = "network"
	ReasonProvider Reason = "provider"
)

type UnavailableError struct {
	Provider string
	Reason   Reason
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrUnavailable, e.Provider, e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// ReasonOf returns the failure reason of a generation error, or "" when err
// is not a generation failure.
func ReasonOf(err error) Reason {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Reason
	}
	return ""
}

// Unavailable wraps err, choosing a reason from the context state, the HTTP
// status reported by the provider (0 when unknown) and the error itself.
func Unavailable(provider string, status int, err error) error {
	return &UnavailableError{Provider: provider, Reason: classify(status, err), Err: err}
}

func classify(status int, err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if status == http.StatusTooManyRequests || looksLikeQuota(err) {
		return ReasonQuota
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}
	return ReasonProvider
}

func looksLikeQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit")
}
