package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/storefront/internal/common"
)

type errorResponse struct {
	Error             string `json:"error"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	Detail            string `json:"detail,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// statusFor maps a service error to an HTTP status and a caller-safe
// message. Unknown errors become 500 with a generic message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrInsufficientStock),
		errors.Is(err, common.ErrAlreadyVerified),
		errors.Is(err, common.ErrNoPendingCode),
		errors.Is(err, common.ErrCodeExpired),
		errors.Is(err, common.ErrAttemptsExhausted),
		errors.Is(err, common.ErrInvalidCode):
		return http.StatusBadRequest, err.Error()

	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrEmailNotVerified),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, err.Error()

	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, err.Error()

	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, err.Error()

	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict, err.Error()

	case errors.Is(err, common.ErrEmailDispatch):
		return http.StatusBadGateway, common.ErrEmailDispatch.Error()
	}
	return http.StatusInternalServerError, common.ErrorInternal.Error()
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageResponse{Message: msg})
}

// writeError renders err. Internal detail is only exposed in development.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := statusFor(err)
	resp := errorResponse{Error: msg}

	var oe *common.OtpError
	if errors.As(err, &oe) {
		remaining := oe.Remaining
		resp.RemainingAttempts = &remaining
	}

	if code == http.StatusInternalServerError {
		a.logger.Error(r.Context(), "request failed", "error", err)
		if a.development {
			resp.Detail = err.Error()
		}
	}

	writeJSON(w, code, resp)
}
