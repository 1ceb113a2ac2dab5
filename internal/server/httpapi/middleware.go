package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

type contextKey string

const contextPrincipalKey contextKey = "principal"

func principalFrom(ctx context.Context) (*services.Principal, bool) {
	p, ok := ctx.Value(contextPrincipalKey).(*services.Principal)
	return p, ok && p != nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// RequireAuth resolves the bearer session token and stores the principal in
// the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		p, err := h.accounts.ResolveSession(r.Context(), token)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), contextPrincipalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability lets the request through only when the caller's role
// grants c. Must run after RequireAuth.
func (h *Handler) RequireCapability(c models.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !h.accounts.Authorize(p.Profile, string(c)) {
				h.log.Info(r.Context(), "access denied", "account_id", p.Account.ID, "capability", string(c))
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireEmailVerified rejects callers that have not confirmed their email.
func (h *Handler) RequireEmailVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !p.Profile.IsEmailVerified {
			writeError(w, http.StatusForbidden, "email not verified")
			return
		}
		next.ServeHTTP(w, r)
	})
}
