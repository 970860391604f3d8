package api

import (
	"context"
	"net/http"

	"feedsync/internal/models"
)

type followStatus struct {
	IsFollowing bool `json:"isFollowing"`
}

// FollowStatus reports whether the caller follows userID.
func (c *Client) FollowStatus(ctx context.Context, userID string) (bool, error) {
	var out followStatus
	if err := c.Do(ctx, ServiceUser, http.MethodGet, "/followers/"+pathEscape(userID)+"/status", nil, nil, &out); err != nil {
		return false, err
	}
	return out.IsFollowing, nil
}

// Follow follows userID.
func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.Do(ctx, ServiceUser, http.MethodPost, "/followers/"+pathEscape(userID)+"/follow", nil, nil, nil)
}

// Unfollow unfollows userID.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.Do(ctx, ServiceUser, http.MethodPost, "/followers/"+pathEscape(userID)+"/unfollow", nil, nil, nil)
}

// BlockUser blocks userID.
func (c *Client) BlockUser(ctx context.Context, userID string) error {
	return c.Do(ctx, ServiceUser, http.MethodPost, "/users/block/"+pathEscape(userID), nil, nil, nil)
}

// GetProfile fetches a profile by username.
func (c *Client) GetProfile(ctx context.Context, username string) (*models.User, error) {
	var out models.User
	if err := c.Do(ctx, ServiceUser, http.MethodGet, "/profiles/"+pathEscape(username), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile updates the caller's profile and returns the result.
func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	var out models.User
	if err := c.Do(ctx, ServiceUser, http.MethodPut, "/profiles", nil, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
