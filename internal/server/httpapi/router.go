// Package httpapi exposes the account service over HTTP/JSON.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const requestTimeout = 30 * time.Second

// AccountService is the slice of services.AccountService the API calls.
type AccountService interface {
	RegisterAccount(ctx context.Context, userName, email, raw string) (*models.Account, error)
	Login(ctx context.Context, req services.LoginRequest) (*models.SessionDescriptor, error)
	RequestPasswordReset(ctx context.Context, email string) (*services.IssuedResetToken, error)
	ConfirmPasswordReset(ctx context.Context, token, newRaw string) error
	ChangePassword(ctx context.Context, accountID, oldRaw, newRaw string) error
	Authorize(profile *models.Profile, capability string) bool
	ResolveSession(ctx context.Context, token string) (*services.Principal, error)
	GetProfile(ctx context.Context, accountID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, accountID string, d models.ProfileDetails) (*models.Profile, error)
	IssueEmailVerification(ctx context.Context, accountID string) (string, error)
	VerifyEmail(ctx context.Context, token string) error
	Unlock(ctx context.Context, accountID string) error
	AssignRole(ctx context.Context, accountID string, name models.RoleName) error
	DeleteRole(ctx context.Context, name models.RoleName) error
	ListLocked(ctx context.Context) ([]string, error)
}

// AvatarService presigns avatar uploads and downloads.
type AvatarService interface {
	RequestUpload(ctx context.Context, accountID string) (*services.AvatarUpload, error)
	AvatarURL(ctx context.Context, accountID string) (string, error)
}

// Handler serves the API.
type Handler struct {
	accounts AccountService
	avatars  AvatarService
	log      logging.Logger
}

func NewHandler(accounts AccountService, avatars AvatarService, log logging.Logger) *Handler {
	return &Handler{accounts: accounts, avatars: avatars, log: log.With("module", "httpapi")}
}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		h.logRequests,
		middleware.Timeout(requestTimeout),
	)

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		r.Post("/email/verify", h.VerifyEmail)

		r.Route("/me", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/profile", h.GetProfile)
			r.Patch("/profile", h.UpdateProfile)
			r.Post("/password", h.ChangePassword)
			r.Post("/email/resend", h.ResendVerification)
			r.With(h.RequireEmailVerified).Post("/avatar", h.RequestAvatarUpload)
			r.Get("/avatar", h.GetAvatar)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.With(h.RequireCapability(models.CapEditUsers)).Get("/accounts/locked", h.ListLocked)
			r.With(h.RequireCapability(models.CapEditUsers)).Post("/accounts/{id}/unlock", h.Unlock)
			r.With(h.RequireCapability(models.CapEditUsers)).Put("/accounts/{id}/role", h.AssignRole)
			r.With(h.RequireCapability(models.CapDeleteUsers)).Delete("/roles/{name}", h.DeleteRole)
		})
	})

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
