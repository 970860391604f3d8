package api

import (
	"context"
	"net/http"

	"feedsync/internal/models"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult is the body returned by the login endpoint.
type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}
	var out LoginResult
	if err := c.Do(ctx, ServiceAuth, http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, models.NewUnauthorizedError("Login response did not include a token")
	}
	return &out, nil
}
