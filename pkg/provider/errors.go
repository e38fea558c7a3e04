package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPayloadMalformed is returned when no structured payload can be found
// in the generated text.
var ErrPayloadMalformed = errors.New("payload malformed")

// ProviderError describes a failed remote call. Status is 0 for transport
// failures and timeouts.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the call may succeed if repeated.
func (e *ProviderError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func retryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
