// Package messaging keeps one conversation in sync: optimistic sends, older
// page loading, periodic refresh and the aggregate unread counter.
package messaging

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Defaults applied when MessengerOptions leave a field unset.
const (
	DefaultPageSize   = 20
	DefaultMaxLength  = 1000
	DefaultLeaveDelay = 2 * time.Second
)

// MutualFollowNotice is shown when the server refuses a message because the
// two users do not follow each other.
const MutualFollowNotice = "You can only message users who follow you back"

// Source is the REST surface of one conversation.
type Source interface {
	ListMessages(ctx context.Context, peerID string, page, limit int) ([]models.Message, error)
	SendMessage(ctx context.Context, peerID, content string) (*models.Message, error)
}

// Hooks connect the messenger to the screen that shows the conversation.
// Every hook is optional.
type Hooks struct {
	SetDraft          func(text string)
	ScrollToNewest    func()
	Notify            func(models.Notice)
	LeaveConversation func()
	OnChange          func(messages []models.Message)
}

// MessengerOptions configure a Messenger.
type MessengerOptions struct {
	Self       string
	Peer       string
	PageSize   int
	MaxLength  int
	LeaveDelay time.Duration
	Clock      clockwork.Clock
	Hooks      Hooks
}

// Messenger owns the message list of the conversation between Self and Peer.
type Messenger struct {
	src        Source
	self       string
	peer       string
	pageSize   int
	maxLength  int
	leaveDelay time.Duration
	clock      clockwork.Clock
	hooks      Hooks
	supersede  *api.Superseder
	logger     *observability.SyncLogger

	mu           sync.Mutex
	messages     []models.Message
	page         int
	generation   uint64
	hasOlder     bool
	loadingOlder bool
}

// NewMessenger creates an empty Messenger.
func NewMessenger(src Source, opts MessengerOptions) *Messenger {
	m := &Messenger{
		src:        src,
		self:       opts.Self,
		peer:       opts.Peer,
		pageSize:   opts.PageSize,
		maxLength:  opts.MaxLength,
		leaveDelay: opts.LeaveDelay,
		clock:      opts.Clock,
		hooks:      opts.Hooks,
		supersede:  api.NewSuperseder(),
		logger:     observability.NewSyncLogger("messenger"),
	}
	if m.pageSize <= 0 {
		m.pageSize = DefaultPageSize
	}
	if m.maxLength <= 0 {
		m.maxLength = DefaultMaxLength
	}
	if m.leaveDelay <= 0 {
		m.leaveDelay = DefaultLeaveDelay
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	return m
}

// Peer returns the other participant.
func (m *Messenger) Peer() string { return m.peer }

// Messages returns a copy of the held list, oldest first.
func (m *Messenger) Messages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

// HasOlder reports whether an older page may exist.
func (m *Messenger) HasOlder() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasOlder
}

// Load fetches the newest page and replaces the held list.
func (m *Messenger) Load(ctx context.Context) error {
	if _, err := m.Refresh(ctx); err != nil {
		return err
	}
	m.scrollToNewest()
	return nil
}

// Refresh refetches the newest page. It reports whether the list changed.
// A refresh still in flight is cancelled by a newer one.
func (m *Messenger) Refresh(ctx context.Context) (bool, error) {
	ctx, done := m.supersede.Begin(ctx, "newest")
	defer done()

	list, err := m.src.ListMessages(ctx, m.peer, 1, m.pageSize)
	if err != nil {
		return false, err
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return m.ApplyPoll(list), nil
}

// ApplyPoll replaces the held list with the newest page when its newest
// message differs from the one held. Messages still pending stay at the tail.
func (m *Messenger) ApplyPoll(list []models.Message) bool {
	m.mu.Lock()
	if len(list) > 0 && newestConfirmedID(m.messages) == list[len(list)-1].ID {
		m.mu.Unlock()
		return false
	}
	if len(list) == 0 && newestConfirmedID(m.messages) == "" && m.page > 0 {
		m.mu.Unlock()
		return false
	}

	next := make([]models.Message, 0, len(list)+1)
	for _, msg := range list {
		msg.Pending = false
		next = append(next, msg)
	}
	for _, msg := range m.messages {
		if msg.Pending {
			next = append(next, msg)
		}
	}
	m.messages = next
	m.page = 1
	m.generation++
	m.hasOlder = len(list) >= m.pageSize
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()

	m.logger.LogEvent(context.Background(), "poll_applied", map[string]interface{}{
		"peer":  m.peer,
		"count": len(list),
	})
	m.changed(snapshot)
	m.scrollToNewest()
	return true
}

// SendMessage appends a pending copy of content, sends it and then either
// swaps in the confirmed message at the same position or removes the pending
// copy and puts the text back into the compose field.
func (m *Messenger) SendMessage(ctx context.Context, content string) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.NewValidationError("Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > m.maxLength {
		return models.NewValidationError("Message is too long")
	}

	temp := models.Message{
		ID:          models.PendingIDPrefix + uuid.NewString(),
		SenderID:    m.self,
		RecipientID: m.peer,
		Content:     text,
		CreatedAt:   m.clock.Now(),
		Pending:     true,
	}

	var confirmed *models.Message
	err := optimistic.Run(ctx, optimistic.Op[string]{
		Name:     "message_send",
		Snapshot: func() string { return content },
		Mutate: func() {
			m.appendPending(temp)
			m.setDraft("")
			m.scrollToNewest()
		},
		Confirm: func(ctx context.Context) error {
			msg, err := m.src.SendMessage(ctx, m.peer, text)
			confirmed = msg
			return err
		},
		Restore: func(draft string) {
			m.remove(temp.ID)
			m.setDraft(draft)
		},
	})
	if err != nil {
		m.logger.LogRollback(ctx, "send_message", err)
		m.sendFailed(err)
		return err
	}

	m.confirm(temp.ID, *confirmed)
	return nil
}

func (m *Messenger) sendFailed(err error) {
	if models.HasCode(err, models.CodeMutualFollowRequired) {
		m.notify(models.Notice{Kind: models.NoticeError, Text: MutualFollowNotice})
		if m.hooks.LeaveConversation != nil {
			m.clock.AfterFunc(m.leaveDelay, m.hooks.LeaveConversation)
		}
		return
	}
	m.notify(models.NoticeFor(err, "Failed to send message"))
}

// LoadOlder prepends the next older page and returns the id of the message
// that was at the top before, so the view can keep its scroll position.
// It returns "" when there is nothing more to load or a load is running. A
// page that arrives after a poll replaced the list is dropped.
func (m *Messenger) LoadOlder(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.loadingOlder || !m.hasOlder {
		m.mu.Unlock()
		return "", nil
	}
	m.loadingOlder = true
	next := m.page + 1
	gen := m.generation
	anchor := ""
	if len(m.messages) > 0 {
		anchor = m.messages[0].ID
	}
	m.mu.Unlock()

	older, err := m.src.ListMessages(ctx, m.peer, next, m.pageSize)

	m.mu.Lock()
	m.loadingOlder = false
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.LogEvent(ctx, "older_page_dropped", map[string]interface{}{
			"peer": m.peer,
			"page": next,
		})
		return "", nil
	}
	held := make(map[string]struct{}, len(m.messages))
	for _, msg := range m.messages {
		held[msg.ID] = struct{}{}
	}
	prefix := make([]models.Message, 0, len(older))
	for _, msg := range older {
		if _, dup := held[msg.ID]; !dup {
			prefix = append(prefix, msg)
		}
	}
	m.messages = append(prefix, m.messages...)
	m.page = next
	m.hasOlder = len(older) >= m.pageSize
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()

	m.changed(snapshot)
	return anchor, nil
}

func (m *Messenger) appendPending(msg models.Message) {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()
	m.changed(snapshot)
}

func (m *Messenger) remove(id string) {
	m.mu.Lock()
	m.messages = slices.DeleteFunc(m.messages, func(msg models.Message) bool { return msg.ID == id })
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()
	m.changed(snapshot)
}

// confirm swaps the pending message tempID for msg in place. When a refresh
// already delivered msg, the pending copy is dropped instead.
func (m *Messenger) confirm(tempID string, msg models.Message) {
	msg.Pending = false
	m.mu.Lock()
	idx := slices.IndexFunc(m.messages, func(x models.Message) bool { return x.ID == tempID })
	delivered := msg.ID != "" && slices.ContainsFunc(m.messages, func(x models.Message) bool { return x.ID == msg.ID })
	switch {
	case idx < 0:
	case delivered:
		m.messages = slices.Delete(m.messages, idx, idx+1)
	default:
		m.messages[idx] = msg
	}
	snapshot := slices.Clone(m.messages)
	m.mu.Unlock()
	m.changed(snapshot)
}

func (m *Messenger) changed(snapshot []models.Message) {
	if m.hooks.OnChange != nil {
		m.hooks.OnChange(snapshot)
	}
}

func (m *Messenger) setDraft(text string) {
	if m.hooks.SetDraft != nil {
		m.hooks.SetDraft(text)
	}
}

func (m *Messenger) scrollToNewest() {
	if m.hooks.ScrollToNewest != nil {
		m.hooks.ScrollToNewest()
	}
}

func (m *Messenger) notify(n models.Notice) {
	if m.hooks.Notify != nil {
		m.hooks.Notify(n)
	}
}

func newestConfirmedID(list []models.Message) string {
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].Pending {
			return list[i].ID
		}
	}
	return ""
}
