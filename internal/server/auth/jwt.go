// Package auth signs and parses the bearer tokens handed out on login.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "gophauth"

// Claims are the registered claims plus the session flags. Subject holds the
// account ID and ID the session ID.
type Claims struct {
	jwt.RegisteredClaims
	RememberMe bool `json:"remember,omitempty"`
}

// SessionClaims is what a verified token says about its bearer.
type SessionClaims struct {
	AccountID  string
	SessionID  string
	RememberMe bool
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// IssueSessionToken signs an HS256 token for the session valid from issuedAt for ttl.
func IssueSessionToken(c SessionClaims, secretKey []byte, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.AccountID,
			ID:        c.SessionID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.IssuedAt.Add(ttl)),
		},
		RememberMe: c.RememberMe,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseSessionToken verifies the signature and expiry of tokenString.
// It returns common.ErrTokenExpired or an error wrapping common.ErrInvalidToken.
func ParseSessionToken(tokenString string, secretKey []byte) (*SessionClaims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secretKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	out := &SessionClaims{
		AccountID:  claims.Subject,
		SessionID:  claims.ID,
		RememberMe: claims.RememberMe,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
