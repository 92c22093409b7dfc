package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"lms-billing/internal/domain"
	"lms-billing/internal/infra/logging"
)

type errorBody struct {
	Error       string `json:"error"`
	Description string `json:"description,omitempty"`
	TraceID     string `json:"traceId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrAlreadyEnrolled),
		errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPaidCourse), errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrEnrollmentInProgress),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrPaymentGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError is the single place domain errors become HTTP responses.
// Internal failures are reported generically; the detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{TraceID: logging.TraceID(r.Context())}

	var ge *domain.GatewayError
	switch {
	case status == http.StatusBadGateway && errors.As(err, &ge):
		body.Error = domain.ErrPaymentGateway.Error()
		body.Description = ge.Description
	case errors.Is(err, domain.ErrPersistence):
		body.Error = domain.ErrPersistence.Error()
	case errors.Is(err, domain.ErrMalformedPayload):
		body.Error = domain.ErrMalformedPayload.Error()
	case status == http.StatusInternalServerError:
		body.Error = "internal error"
	default:
		body.Error = err.Error()
	}
	writeJSON(w, status, body)
}
