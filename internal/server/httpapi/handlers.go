package httpapi

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	account, err := h.accounts.RegisterAccount(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, AccountResponse{
		ID:        account.ID,
		Username:  account.UserName,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	desc, err := h.accounts.Login(r.Context(), services.LoginRequest{
		Identifier: req.Identifier,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		ClientIP:   clientIP(r),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(desc))
}

// RequestPasswordReset answers 202 whether or not the email is registered.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if _, err := h.accounts.RequestPasswordReset(r.Context(), req.Email); err != nil && !errors.Is(err, services.ErrUnknownEmail) {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the address is registered, a reset link has been sent",
	})
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.accounts.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, newProfileResponse(p.Profile))
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var req UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	d := models.ProfileDetails{Bio: req.Bio, PhoneNumber: req.PhoneNumber}
	if req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid date_of_birth: expected YYYY-MM-DD", Field: "date_of_birth"})
			return
		}
		d.DateOfBirth = &dob
	}

	profile, err := h.accounts.UpdateProfile(r.Context(), p.Account.ID, d)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(profile))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), p.Account.ID, req.OldPassword, req.NewPassword); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if p.Profile.IsEmailVerified {
		writeError(w, http.StatusConflict, "email already verified")
		return
	}
	if _, err := h.accounts.IssueEmailVerification(r.Context(), p.Account.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) RequestAvatarUpload(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	up, err := h.avatars.RequestUpload(r.Context(), p.Account.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvatarUploadResponse{Key: up.Key, UploadURL: up.URL, ExpiresAt: up.ExpiresAt})
}

func (h *Handler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	url, err := h.avatars.AvatarURL(r.Context(), p.Account.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AvatarResponse{URL: url})
}

func (h *Handler) ListLocked(w http.ResponseWriter, r *http.Request) {
	ids, err := h.accounts.ListLocked(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, LockedAccountsResponse{AccountIDs: ids})
}

// accountIDParam returns the {id} path segment, or false when it cannot be
// an account ID.
func accountIDParam(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err := h.accounts.Unlock(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(r)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req AssignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Role == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.accounts.AssignRole(r.Context(), id, models.RoleName(req.Role)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.DeleteRole(r.Context(), models.RoleName(chi.URLParam(r, "name"))); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
