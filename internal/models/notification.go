// Package models defines the entities synchronized with the platform API.
package models

import "time"

// NotificationType enumerates what triggered a notification.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationPost    NotificationType = "post"
	NotificationAmplify NotificationType = "amplify"
	NotificationQuote   NotificationType = "quote"
	NotificationMention NotificationType = "mention"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationPost,
		NotificationAmplify, NotificationQuote, NotificationMention:
		return true
	}
	return false
}

// UserRef is the compact user reference embedded in other entities.
type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Notification is a single entry of the notification feed.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Sender    UserRef          `json:"sender"`
	PostID    string           `json:"postId,omitempty"`
	Message   string           `json:"message,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt,omitempty"`
}

// Freshness is the timestamp used to decide which copy of a notification is newer.
func (n Notification) Freshness() time.Time {
	if !n.UpdatedAt.IsZero() {
		return n.UpdatedAt
	}
	return n.CreatedAt
}
