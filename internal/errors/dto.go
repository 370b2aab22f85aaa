package errors

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrorResponse represents the standard error response structure
type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Display       string         `json:"message"`
	InternalError string         `json:"internal_error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
}

// NewErrorResponse converts an error into the API error envelope,
// surfacing hints and reportable details when present.
func NewErrorResponse(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	resp := &ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Display:       err.Error(),
			InternalError: err.Error(),
		},
	}

	if hints := errors.GetAllHints(err); len(hints) > 0 {
		resp.Error.Display = hints[len(hints)-1]
	}

	for _, detail := range errors.GetAllSafeDetails(err) {
		for _, s := range detail.SafeDetails {
			raw, ok := strings.CutPrefix(s, "__json__:")
			if !ok {
				continue
			}
			var parsed map[string]any
			if json.Unmarshal([]byte(raw), &parsed) == nil {
				resp.Error.Details = parsed
			}
		}
	}

	return resp
}
