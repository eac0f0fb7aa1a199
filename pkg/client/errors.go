package client

import (
	"errors"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// APIError is a non-2xx response from the library service. Validation
// failures carry the server's field messages in Errors.
type APIError struct {
	Status  int
	Message string
	Errors  []string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("api error %d", e.Status)
}

// apiErrorBody is the error envelope the service uses.
type apiErrorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// parseAPIError builds an APIError from a response body, falling back
// to the HTTP status text when the body is not the usual envelope.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var envelope apiErrorBody
	if err := jsoniter.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Error != "":
			apiErr.Message = envelope.Error
		case envelope.Message != "":
			apiErr.Message = envelope.Message
		}

		apiErr.Errors = envelope.Errors
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	return apiErr
}

// IsUnauthorized reports whether err is an authentication failure.
// Callers rarely need this: 401s are recovered globally by the
// gateway's unauthorized hook before the error propagates.
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsForbidden reports whether err is a role/authorization failure.
func IsForbidden(err error) bool {
	return hasStatus(err, http.StatusForbidden)
}

// IsNotFound reports whether err is a missing-resource failure.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsValidation reports whether err is a request-validation failure
// that should be shown inline next to the offending fields.
func IsValidation(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Status == http.StatusBadRequest ||
		apiErr.Status == http.StatusUnprocessableEntity
}

// IsServerError reports whether err is a 5xx failure.
func IsServerError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Status >= http.StatusInternalServerError
}

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return apiErr.Status == status
}
