package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"feedsync/internal/models"
)

type messageList struct {
	Messages []models.Message `json:"messages"`
}

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

type sendMessageResponse struct {
	Message models.Message `json:"message"`
}

// ListMessages fetches one page of the conversation with peerID. Page 1 holds
// the newest messages; each page is ordered oldest first.
func (c *Client) ListMessages(ctx context.Context, peerID string, page, limit int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out messageList
	if err := c.Do(ctx, ServiceMessaging, http.MethodGet, "/messages/"+pathEscape(peerID), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SendMessage posts a direct message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, peerID, content string) (*models.Message, error) {
	var out sendMessageResponse
	body := sendMessageRequest{RecipientID: peerID, Content: content}
	if err := c.Do(ctx, ServiceMessaging, http.MethodPost, "/messages", nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// UnreadMessageCounts returns the server's unread summary.
func (c *Client) UnreadMessageCounts(ctx context.Context) (*models.UnreadSummary, error) {
	var out models.UnreadSummary
	if err := c.Do(ctx, ServiceMessaging, http.MethodGet, "/messages/unread/count", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkConversationRead marks every message from peerID as read.
func (c *Client) MarkConversationRead(ctx context.Context, peerID string) error {
	return c.Do(ctx, ServiceMessaging, http.MethodPatch, "/messages/"+pathEscape(peerID)+"/read", nil, nil, nil)
}
