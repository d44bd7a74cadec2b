package source

import (
	"fmt"
	"net/http"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// APIError is a classified failure from the order API. It matches
// retry.ErrRateLimited for throttling responses and retry.ErrTransient for
// server-side failures, so the extractor's retry policy can test it with
// errors.Is.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("source api %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("source api %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case retry.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests || e.Code == "THROTTLED" || e.Code == "RATE_LIMIT"
	case retry.ErrTransient:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	}
	return false
}
