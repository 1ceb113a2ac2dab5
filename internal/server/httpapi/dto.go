package httpapi

import (
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const dateLayout = "2006-01-02"

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AccountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type SessionResponse struct {
	SessionID       string     `json:"session_id"`
	AccountID       string     `json:"account_id"`
	Username        string     `json:"username"`
	Token           string     `json:"token"`
	IssuedAt        time.Time  `json:"issued_at"`
	RememberMe      bool       `json:"remember_me"`
	LifetimeSeconds int64      `json:"lifetime_seconds,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func newSessionResponse(d *models.SessionDescriptor) SessionResponse {
	return SessionResponse{
		SessionID:       d.ID,
		AccountID:       d.AccountID,
		Username:        d.UserName,
		Token:           d.Token,
		IssuedAt:        d.IssuedAt,
		RememberMe:      d.RememberMe,
		LifetimeSeconds: int64(d.Lifetime / time.Second),
		ExpiresAt:       d.ExpiresAt,
	}
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type ProfileResponse struct {
	AccountID       string     `json:"account_id"`
	Role            string     `json:"role,omitempty"`
	Capabilities    []string   `json:"capabilities"`
	Bio             string     `json:"bio"`
	PhoneNumber     string     `json:"phone_number"`
	DateOfBirth     string     `json:"date_of_birth,omitempty"`
	HasAvatar       bool       `json:"has_avatar"`
	IsEmailVerified bool       `json:"is_email_verified"`
	IsLocked        bool       `json:"is_locked"`
	LastLogin       *time.Time `json:"last_login,omitempty"`
}

func newProfileResponse(p *models.Profile) ProfileResponse {
	out := ProfileResponse{
		AccountID:       p.AccountID,
		Capabilities:    []string{},
		Bio:             p.Bio,
		PhoneNumber:     p.PhoneNumber,
		HasAvatar:       p.AvatarKey != "",
		IsEmailVerified: p.IsEmailVerified,
		IsLocked:        p.IsLocked,
		LastLogin:       p.LastLogin,
	}
	if p.Role != nil {
		out.Role = string(p.Role.Name)
		for _, c := range models.AllCapabilities {
			if p.Role.Capabilities.Has(c) {
				out.Capabilities = append(out.Capabilities, string(c))
			}
		}
	}
	if p.DateOfBirth != nil {
		out.DateOfBirth = p.DateOfBirth.Format(dateLayout)
	}
	return out
}

// UpdateProfileRequest replaces all editable fields. An empty DateOfBirth
// clears it.
type UpdateProfileRequest struct {
	Bio         string `json:"bio"`
	PhoneNumber string `json:"phone_number"`
	DateOfBirth string `json:"date_of_birth"`
}

type AvatarUploadResponse struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AvatarResponse struct {
	URL string `json:"url"`
}

type AssignRoleRequest struct {
	Role string `json:"role"`
}

type LockedAccountsResponse struct {
	AccountIDs []string `json:"account_ids"`
}
