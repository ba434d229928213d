package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// APIError is a gateway error response. It implements the error interface
// and is used both by the server (to write HTTP responses) and by the SDK
// client (to represent errors).
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gatekeeper: %d %s", e.StatusCode, e.Message)
}

// WriteError writes e using the standard error envelope.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Message)
}

// NewAPIError creates an APIError with the given status and message.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{StatusCode: statusCode, Message: message}
}

var (
	ErrInvalidRequest = &APIError{StatusCode: http.StatusBadRequest, Message: "the request is malformed or missing required fields"}
	ErrInvalidToken   = &APIError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"}
	ErrServerError    = &APIError{StatusCode: http.StatusInternalServerError, Message: "Internal server error"}
)

// ErrOTPRequired is returned by Authenticate when the account needs a
// one-time code and none was supplied.
var ErrOTPRequired = errors.New("authsdk: one-time code required")

// NewValidationError flattens field errors into a single 400 message,
// ordered by field name.
func NewValidationError(fields map[string]string) *APIError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+fields[name])
	}
	return NewAPIError(http.StatusBadRequest, strings.Join(parts, "; "))
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an
// APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Message}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
