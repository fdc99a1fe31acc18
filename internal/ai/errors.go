package ai

import (
	"errors"
	"fmt"
)

// ProviderError is a failed call to a model provider. StatusCode is 0 for
// transport failures that never produced an HTTP response.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 500))
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError means the model replied but not with a usable JSON object
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed model response: %s", e.Reason)
}

// IsProviderError reports whether err came from the provider transport,
// including the breaker refusing to call it.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) || errors.Is(err, ErrCircuitOpen)
}

// IsParseError reports whether err is a malformed model response
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
