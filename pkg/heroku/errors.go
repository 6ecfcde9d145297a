package heroku

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnknownCollection is returned when a generic call names a collection the client
// has no path mapping for.
var ErrUnknownCollection = errors.New("unknown collection")

// APIError is a non-2xx response from the platform API.
// ID carries the API's machine-readable error id (e.g. "not_found", "rate_limit").
type APIError struct {
	StatusCode int    `json:"-"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("heroku: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
	}
	return fmt.Sprintf("heroku: %d %s: %s", e.StatusCode, e.ID, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func notFound(what, id string) error {
	return &APIError{StatusCode: http.StatusNotFound, ID: "not_found", Message: fmt.Sprintf("Couldn't find that %s: %s.", what, id)}
}
