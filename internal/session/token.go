package session

import (
	"strings"
	"time"

	"feedsync/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields the client reads from the session credential.
// The signature is verified by the platform, never here.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// ParseToken decodes the credential and rejects it when it has expired at now.
func ParseToken(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, models.NewUnauthorizedError("Token required")
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, &models.AppError{Code: models.CodeUnauthorized, Message: "Invalid token", Err: err}
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return nil, models.NewUnauthorizedError("Token expired")
	}
	return &claims, nil
}

// User returns the signed-in user described by the claims.
func (c *Claims) User() models.User {
	return models.User{ID: c.UserID, Username: c.Username}
}
