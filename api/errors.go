package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/govhr/leave-engine/generic"
	"github.com/govhr/leave-engine/leave"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// statusFor maps engine errors onto HTTP statuses:
//
//	validation  400
//	forbidden   403
//	not found   404
//	conflict    409
//	policy      422
//	retryable   503
func statusFor(err error) (int, string) {
	switch {
	case leave.IsValidationError(err):
		return http.StatusBadRequest, "validation_failed"
	case leave.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case leave.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case leave.IsConflict(err):
		return http.StatusConflict, "conflict"
	case leave.IsPolicyError(err):
		return http.StatusUnprocessableEntity, "policy_violation"
	case generic.IsRetryable(err):
		return http.StatusServiceUnavailable, "retry"
	case leave.IsClientError(err):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal"
}

// writeDomainError writes err with its mapped status. Server errors are
// logged and their text withheld from the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: code})
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		resp.Details = ve.Fields
	}
	writeJSON(w, status, resp)
}

// writeValidation reports struct-tag failures field by field.
func writeValidation(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	fields := make([]generic.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, generic.FieldError{Field: fe.Field(), Message: "failed " + fe.Tag()})
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Code: "validation_failed", Details: fields})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
