package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"
	"feedsync/internal/realtime"
)

const seenCapacity = 2048

// UnreadSource is the REST surface of the message unread counter.
type UnreadSource interface {
	UnreadMessageCounts(ctx context.Context) (*models.UnreadSummary, error)
	MarkConversationRead(ctx context.Context, peerID string) error
}

// BadgeSink receives the message unread total after every change.
type BadgeSink interface {
	SetMessageUnread(count int)
}

// UnreadCounter derives the aggregate unread message count from the server
// summary plus live new_message events, counting each message id once.
type UnreadCounter struct {
	src    UnreadSource
	self   string
	badge  BadgeSink
	logger *observability.SyncLogger

	mu     sync.Mutex
	base   map[string]int
	live   map[string][]uint64
	seq    uint64
	seen   *seenSet
	active string
}

// NewUnreadCounter creates a counter for the user self.
func NewUnreadCounter(src UnreadSource, self string, badge BadgeSink) *UnreadCounter {
	return &UnreadCounter{
		src:    src,
		self:   self,
		badge:  badge,
		logger: observability.NewSyncLogger("message_unread"),
		base:   make(map[string]int),
		live:   make(map[string][]uint64),
		seen:   newSeenSet(seenCapacity),
	}
}

// Refresh replaces the server baseline. Live counts observed before the
// request started are dropped because the summary already includes them;
// ones observed while it was in flight are kept.
func (u *UnreadCounter) Refresh(ctx context.Context) error {
	u.mu.Lock()
	started := u.seq
	u.mu.Unlock()

	summary, err := u.src.UnreadMessageCounts(ctx)
	if err != nil {
		u.logger.LogError(ctx, "refresh_unread", err)
		return err
	}

	u.mu.Lock()
	u.base = make(map[string]int, len(summary.Conversations))
	for _, c := range summary.Conversations {
		if c.Count > 0 && c.UserID != u.active {
			u.base[c.UserID] = c.Count
		}
	}
	// Older servers only report the total.
	if len(summary.Conversations) == 0 && summary.Total > 0 {
		u.base[""] = summary.Total
	}
	for sender, hits := range u.live {
		kept := slices.DeleteFunc(hits, func(seq uint64) bool { return seq <= started })
		if len(kept) == 0 {
			delete(u.live, sender)
			continue
		}
		u.live[sender] = kept
	}
	u.mu.Unlock()

	u.publish()
	return nil
}

// Observe counts msg unless it was sent by the user, belongs to the open
// conversation or was counted before. It reports whether the count changed.
func (u *UnreadCounter) Observe(msg models.Message) bool {
	if msg.ID == "" || msg.SenderID == "" || msg.SenderID == u.self {
		return false
	}

	u.mu.Lock()
	if msg.SenderID == u.active || !u.seen.add(msg.ID) {
		u.mu.Unlock()
		return false
	}
	u.seq++
	u.live[msg.SenderID] = append(u.live[msg.SenderID], u.seq)
	u.mu.Unlock()

	u.publish()
	return true
}

// SetActiveConversation marks peerID as on screen; its messages stop counting.
// An empty peerID clears it.
func (u *UnreadCounter) SetActiveConversation(peerID string) {
	u.mu.Lock()
	u.active = peerID
	u.mu.Unlock()
}

type conversationCounts struct {
	base int
	live []uint64
}

// MarkConversationRead zeroes peerID's contribution and confirms it with the
// server, restoring the previous counts if the server rejects it.
func (u *UnreadCounter) MarkConversationRead(ctx context.Context, peerID string) error {
	if peerID == "" {
		return models.NewValidationError("conversation id is required")
	}
	err := optimistic.Run(ctx, optimistic.Op[conversationCounts]{
		Name: "conversation_mark_read",
		Snapshot: func() conversationCounts {
			u.mu.Lock()
			defer u.mu.Unlock()
			return conversationCounts{base: u.base[peerID], live: slices.Clone(u.live[peerID])}
		},
		Mutate: func() {
			u.mu.Lock()
			delete(u.base, peerID)
			delete(u.live, peerID)
			u.mu.Unlock()
			u.publish()
		},
		Confirm: func(ctx context.Context) error { return u.src.MarkConversationRead(ctx, peerID) },
		Restore: func(prev conversationCounts) {
			u.mu.Lock()
			if prev.base > 0 {
				u.base[peerID] += prev.base
			}
			if len(prev.live) > 0 {
				u.live[peerID] = append(u.live[peerID], prev.live...)
			}
			u.mu.Unlock()
			u.publish()
		},
	})
	if err != nil {
		u.logger.LogRollback(ctx, "mark_conversation_read", err)
	}
	return err
}

// Total is the aggregate unread count.
func (u *UnreadCounter) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.totalLocked()
}

// ForConversation is the unread count of one conversation.
func (u *UnreadCounter) ForConversation(peerID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.base[peerID] + len(u.live[peerID])
}

func (u *UnreadCounter) totalLocked() int {
	total := 0
	for _, n := range u.base {
		total += n
	}
	for _, hits := range u.live {
		total += len(hits)
	}
	return total
}

// Attach subscribes the counter to live messages and returns a func that
// removes the subscription.
func (u *UnreadCounter) Attach(sub realtime.Subscriber) func() {
	return sub.On(realtime.EventNewMessage, func(raw json.RawMessage) {
		msg, err := DecodeLiveMessage(raw)
		if err != nil {
			u.logger.LogError(context.Background(), "decode_live", err)
			return
		}
		u.Observe(msg)
	})
}

// DecodeLiveMessage accepts either the bare message or {"message": {...}}.
func DecodeLiveMessage(raw json.RawMessage) (models.Message, error) {
	var wrapped struct {
		Message *models.Message `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Message != nil && wrapped.Message.ID != "" {
		return *wrapped.Message, nil
	}
	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.ID == "" {
		return models.Message{}, errors.New("message without id")
	}
	return msg, nil
}

func (u *UnreadCounter) publish() {
	total := u.Total()
	observability.UnreadMessages.Set(float64(total))
	if u.badge != nil {
		u.badge.SetMessageUnread(total)
	}
}

// seenSet remembers the most recent ids up to a fixed capacity.
type seenSet struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{ids: make(map[string]struct{}, capacity), ring: make([]string, capacity)}
}

// add records id and reports whether it was new.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.ids, old)
	}
	s.ring[s.next] = id
	s.ids[id] = struct{}{}
	s.next = (s.next + 1) % len(s.ring)
	return true
}
