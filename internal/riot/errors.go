// Package riot provides the rate-limited Riot API client.
package riot

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey indicates the configured Riot API key is absent or still
// the placeholder value. Returned before any network attempt so a bad
// deployment never burns quota.
var ErrMissingAPIKey = errors.New("riot api key missing or placeholder")

// ErrRetryBudgetExhausted indicates the shared retry budget was spent on
// 429s, 5xxs, and network failures without a successful response.
var ErrRetryBudgetExhausted = errors.New("riot api retry budget exhausted")

// RequestError is a structured failure from a Riot API call. Status and
// Body carry the last known response when one was received; Err carries
// the underlying cause (network error, ErrRetryBudgetExhausted, ...).
type RequestError struct {
	Message string
	Status  int
	Body    string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Message, e.Status, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a Riot 404 response.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}
