package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication    = errors.New("provider_authentication_failed")
	ErrRateLimited       = errors.New("provider_rate_limited")
	ErrTransport         = errors.New("provider_unavailable")
	ErrInvalidRequest    = errors.New("provider_invalid_request")
	ErrMissingCredential = errors.New("provider_credential_missing")
)

// ProviderError carries the provider's own message alongside a stable kind
// that callers match with errors.Is.
type ProviderError struct {
	Kind       error
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *ProviderError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
