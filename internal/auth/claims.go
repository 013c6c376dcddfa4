package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attendclient/internal/model"
)

// Claims is the payload of a bearer token issued by the attendance API.
// The client never holds the signing key, so tokens are inspected, not
// verified; the server remains the authority.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Inspect decodes tokenStr without checking its signature.
func Inspect(tokenStr string) (Claims, error) {
	var claims Claims
	if tokenStr == "" {
		return claims, errors.New("empty token")
	}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, &claims); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// Expired reports whether the token carries an expiry at or before now.
func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

// SubjectID returns the user id, falling back to the registered subject.
func (c Claims) SubjectID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// ModelRole returns the role claim as a model.Role.
func (c Claims) ModelRole() model.Role {
	return model.Role(c.Role)
}
