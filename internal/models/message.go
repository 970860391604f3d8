package models

import (
	"strings"
	"time"
)

// PendingIDPrefix marks client-generated ids of messages not yet confirmed.
const PendingIDPrefix = "pending-"

// Message is a direct message between two users.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt"`
	Pending     bool      `json:"-"`
}

// IsTemporary reports whether the id was generated locally.
func (m Message) IsTemporary() bool {
	return strings.HasPrefix(m.ID, PendingIDPrefix)
}

// Peer returns the other participant from self's point of view.
func (m Message) Peer(self string) string {
	if m.SenderID == self {
		return m.RecipientID
	}
	return m.SenderID
}

// ConversationUnread is the server-reported unread count for one conversation.
type ConversationUnread struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

// UnreadSummary is the body of the unread count endpoint.
type UnreadSummary struct {
	Total         int                  `json:"total"`
	Conversations []ConversationUnread `json:"conversations"`
}
