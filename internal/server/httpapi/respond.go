package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

const maxBodyBytes = 64 << 10

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	// AttemptsRemaining is set on rejected logins against a known account.
	AttemptsRemaining *int `json:"attempts_remaining,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps the service error taxonomy onto status codes.
// Internal details never reach the body.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *services.ValidationError
		le *services.LoginError
	)

	switch {
	case errors.As(err, &le):
		body := ErrorResponse{Error: "invalid credentials"}
		status := http.StatusUnauthorized
		if errors.Is(le, services.ErrAccountLocked) {
			body.Error = "account locked"
			status = http.StatusLocked
		}
		if n := le.AttemptsRemaining(); n >= 0 {
			body.AttemptsRemaining = &n
		}
		writeJSON(w, status, body)

	case errors.Is(err, services.ErrDuplicateUsername), errors.Is(err, services.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid request")

	case errors.Is(err, services.ErrInvalidCurrentPassword):
		writeError(w, http.StatusForbidden, "current password is incorrect")
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "unauthorized")

	case errors.Is(err, services.ErrResetTokenNotFound):
		writeError(w, http.StatusNotFound, "reset token not found")
	case errors.Is(err, services.ErrResetTokenAlreadyUsed):
		writeError(w, http.StatusGone, "reset token already used")
	case errors.Is(err, services.ErrResetTokenExpired):
		writeError(w, http.StatusGone, "reset token expired")
	case errors.Is(err, services.ErrVerificationTokenNotFound):
		writeError(w, http.StatusNotFound, "verification token not found")
	case errors.Is(err, services.ErrUnknownRole):
		writeError(w, http.StatusNotFound, "unknown role")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not found")

	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
