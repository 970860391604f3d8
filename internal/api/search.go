package api

import (
	"context"
	"net/http"

	"feedsync/internal/models"
)

type recentSearches struct {
	Searches []models.RecentSearch `json:"searches"`
}

// RecentSearches returns the caller's recent searches, most recent first.
func (c *Client) RecentSearches(ctx context.Context) ([]models.RecentSearch, error) {
	var out recentSearches
	if err := c.Do(ctx, ServiceSearch, http.MethodGet, "/search/recent", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Searches, nil
}

// SaveRecentSearch records a search on the server.
func (c *Client) SaveRecentSearch(ctx context.Context, s models.RecentSearch) error {
	return c.Do(ctx, ServiceSearch, http.MethodPost, "/search/recent", nil, s, nil)
}
