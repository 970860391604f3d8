package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"feedsync/internal/models"
)

// NotificationPage is one page of the notification feed. Total is nil when the
// server does not report an authoritative count.
type NotificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Total         *int                  `json:"total,omitempty"`
}

// ListNotifications fetches one page of notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context, page, limit int) (*NotificationPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out NotificationPage
	if err := c.Do(ctx, ServiceSocial, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkNotificationRead confirms that a notification has been read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.Do(ctx, ServiceSocial, http.MethodPatch, "/notifications/"+pathEscape(id)+"/read", nil, nil, nil)
}
