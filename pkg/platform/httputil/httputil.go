// Package httputil centralizes JSON response and error envelope writing for
// the admin API.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "mailroom/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a coded domain error into a JSON error envelope.
// Internal errors omit the description so store and model details never
// leak to API clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if description := publicMessage(err, code); description != "" {
		body["error_description"] = description
	}
	WriteJSON(w, statusOf(code), body)
}

func publicMessage(err error, code dErrors.Code) string {
	if code == dErrors.CodeInternal || code == dErrors.CodeInvariantViolation || code == dErrors.CodeTransient {
		return ""
	}
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return ""
}

func statusOf(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeMalformedInput:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized, dErrors.CodeUnauthorizedTenant:
		return http.StatusUnauthorized
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeConcurrencyExhausted:
		return http.StatusConflict
	case dErrors.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
