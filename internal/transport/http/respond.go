package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"

	"adr-workers/internal/common/errors"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps a domain error code to its HTTP status.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized, errors.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case errors.ErrCodeInvalidStatusTransition:
		return http.StatusConflict
	case errors.ErrCodeBusinessRule:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeTokenExpired, errors.ErrCodeTokenUsed:
		return http.StatusGone
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	if strings.HasSuffix(string(code), "NOT_FOUND") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

// writeError renders err as the JSON error envelope. Internal details are
// only exposed for client errors.
func writeError(w http.ResponseWriter, err error) {
	stdErr := errors.Normalize(err)
	status := statusFor(stdErr.Code)
	body := errorBody{Error: stdErr.Message, Code: string(stdErr.Code), Field: stdErr.Field()}
	if status < http.StatusInternalServerError {
		body.Details = stdErr.Details
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
