package mal

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// APIError is a non-2xx answer from MyAnimeList
type APIError struct {
	StatusCode int
	Label      string // the "error" field, e.g. invalid_token
	Message    string
	Hint       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("MyAnimeList API request failed with status %d: %s: %s", e.StatusCode, e.Label, e.Message)
	}
	return fmt.Sprintf("MyAnimeList API request failed with status %d: %s", e.StatusCode, e.Label)
}

// Fields returns the structured log fields describing the error
func (e *APIError) Fields() logrus.Fields {
	return logrus.Fields{
		"status_code": e.StatusCode,
		"label":       e.Label,
		"message":     e.Message,
		"hint":        e.Hint,
	}
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Label = payload.Error
		apiErr.Message = payload.Message
		apiErr.Hint = payload.Hint
	} else if len(body) > 0 {
		apiErr.Message = string(body)
	}
	if apiErr.Label == "" {
		apiErr.Label = http.StatusText(status)
	}

	return apiErr
}

// IsNotFound reports whether err is a MyAnimeList 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// LogFields returns structured log fields for any client error
func LogFields(err error) logrus.Fields {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields()
	}
	return logrus.Fields{"error": err.Error()}
}
