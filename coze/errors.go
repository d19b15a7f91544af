package coze

import (
	"errors"
	"fmt"
)

// ErrAllRetriesFailed is returned when every attempt of a request failed
// without a more specific error being captured.
var ErrAllRetriesFailed = errors.New("coze: all retries failed")

// AuthError reports an unauthorized response. It is terminal: the client
// never retries past it.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("coze: authentication failed: %d", e.Status)
}

// RequestError reports a retryable request failure, carrying the last
// observed status and response body.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("coze: request failed: %d, %s", e.Status, e.Body)
}

// APIError reports a response whose HTTP layer succeeded but whose envelope
// carried a non-zero application code.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coze: api error: %d, %s", e.Code, e.Msg)
}
