package messaging

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/testutil"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	listFn func(ctx context.Context, peerID string, page, limit int) ([]models.Message, error)
	sendFn func(ctx context.Context, peerID, content string) (*models.Message, error)
	sends  atomic.Int32
}

func (s *stubSource) ListMessages(ctx context.Context, peerID string, page, limit int) ([]models.Message, error) {
	if s.listFn != nil {
		return s.listFn(ctx, peerID, page, limit)
	}
	return nil, nil
}

func (s *stubSource) SendMessage(ctx context.Context, peerID, content string) (*models.Message, error) {
	s.sends.Add(1)
	if s.sendFn != nil {
		return s.sendFn(ctx, peerID, content)
	}
	return &models.Message{ID: "srv-" + content, SenderID: "me", RecipientID: peerID, Content: content}, nil
}

type composeField struct {
	mu      sync.Mutex
	draft   string
	notices []models.Notice
}

func (c *composeField) hooks() Hooks {
	return Hooks{
		SetDraft: func(text string) {
			c.mu.Lock()
			c.draft = text
			c.mu.Unlock()
		},
		Notify: func(n models.Notice) {
			c.mu.Lock()
			c.notices = append(c.notices, n)
			c.mu.Unlock()
		},
	}
}

func (c *composeField) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *composeField) Notices() []models.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Notice(nil), c.notices...)
}

func loadedMessenger(t *testing.T, src *stubSource, opts MessengerOptions, history []models.Message) *Messenger {
	t.Helper()
	if src.listFn == nil {
		src.listFn = func(context.Context, string, int, int) ([]models.Message, error) { return history, nil }
	}
	opts.Self, opts.Peer = "me", "peer"
	m := NewMessenger(src, opts)
	require.NoError(t, m.Load(context.Background()))
	return m
}

func TestMessenger_SendReplacesPendingInPlace(t *testing.T) {
	history := testutil.NewFactory(31).Conversation("me", "peer", 3)
	field := &composeField{}
	src := &stubSource{}
	m := loadedMessenger(t, src, MessengerOptions{Hooks: field.hooks()}, history)

	src.sendFn = func(_ context.Context, peerID, content string) (*models.Message, error) {
		held := m.Messages()
		require.Len(t, held, 4)
		last := held[3]
		assert.True(t, last.Pending)
		assert.True(t, strings.HasPrefix(last.ID, models.PendingIDPrefix))
		assert.Equal(t, "", field.Draft(), "compose field is cleared while sending")
		return &models.Message{ID: "srv-1", SenderID: "me", RecipientID: peerID, Content: content}, nil
	}

	require.NoError(t, m.SendMessage(context.Background(), "  hello there  "))

	held := m.Messages()
	require.Len(t, held, 4)
	assert.Equal(t, "srv-1", held[3].ID)
	assert.False(t, held[3].Pending)
	assert.Equal(t, "hello there", held[3].Content)
}

func TestMessenger_SendFailureRollsBack(t *testing.T) {
	history := testutil.NewFactory(32).Conversation("me", "peer", 3)
	field := &composeField{}
	src := &stubSource{sendFn: func(context.Context, string, string) (*models.Message, error) {
		return nil, models.NewNetworkError(errors.New("connection reset"))
	}}
	m := loadedMessenger(t, src, MessengerOptions{Hooks: field.hooks()}, history)

	err := m.SendMessage(context.Background(), "draft text")

	require.Error(t, err)
	assert.Equal(t, history, m.Messages())
	assert.Equal(t, "draft text", field.Draft())
	require.Len(t, field.Notices(), 1)
	assert.Equal(t, models.NoticeError, field.Notices()[0].Kind)
}

func TestMessenger_SendValidation(t *testing.T) {
	src := &stubSource{}
	m := loadedMessenger(t, src, MessengerOptions{MaxLength: 5}, nil)

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"Empty", "", true},
		{"Whitespace", "   \n\t", true},
		{"Too long", "hello!", true},
		{"Multibyte at limit", "ééééé", false},
		{"Trimmed to limit", "  hello  ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := src.sends.Load()
			err := m.SendMessage(context.Background(), tt.content)
			if tt.wantErr {
				assert.True(t, models.IsValidation(err))
				assert.Equal(t, before, src.sends.Load(), "validation happens before any network call")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMessenger_MutualFollowLeavesAfterDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	field := &composeField{}
	var left atomic.Bool
	hooks := field.hooks()
	hooks.LeaveConversation = func() { left.Store(true) }

	src := &stubSource{sendFn: func(context.Context, string, string) (*models.Message, error) {
		return nil, &models.AppError{Code: models.CodeMutualFollowRequired, Message: "follow each other", Status: http.StatusForbidden}
	}}
	m := loadedMessenger(t, src, MessengerOptions{Clock: clock, LeaveDelay: 2 * time.Second, Hooks: hooks}, nil)

	err := m.SendMessage(context.Background(), "hi")

	assert.True(t, models.HasCode(err, models.CodeMutualFollowRequired))
	require.Len(t, field.Notices(), 1)
	assert.Equal(t, MutualFollowNotice, field.Notices()[0].Text)
	assert.Equal(t, "hi", field.Draft())
	assert.False(t, left.Load())

	clock.Advance(2 * time.Second)
	assert.Eventually(t, left.Load, time.Second, 5*time.Millisecond)
}

func TestMessenger_LoadOlderPrependsAndAnchors(t *testing.T) {
	all := testutil.NewFactory(33).Conversation("me", "peer", 6)
	src := &stubSource{listFn: func(_ context.Context, _ string, page, _ int) ([]models.Message, error) {
		switch page {
		case 1:
			return all[3:], nil
		case 2:
			return all[:3], nil
		default:
			return all[:1], nil
		}
	}}
	m := loadedMessenger(t, src, MessengerOptions{PageSize: 3}, nil)
	require.True(t, m.HasOlder())

	anchor, err := m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, all[3].ID, anchor)
	assert.Equal(t, all, m.Messages())

	// A short page with only duplicates ends paging without changing the list.
	anchor, err = m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, anchor)
	assert.Equal(t, all, m.Messages())
	assert.False(t, m.HasOlder())

	anchor, err = m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anchor)
}

func TestMessenger_LoadOlderDroppedAfterPollReplacesList(t *testing.T) {
	factory := testutil.NewFactory(35)
	all := factory.Conversation("me", "peer", 9)
	fresh := factory.Message("peer", "me")

	olderRequested := make(chan struct{})
	polled := make(chan struct{})
	var firstOlder sync.Once
	src := &stubSource{listFn: func(_ context.Context, _ string, page, _ int) ([]models.Message, error) {
		switch page {
		case 1:
			return all[6:], nil
		case 2:
			firstOlder.Do(func() { close(olderRequested) })
			<-polled
			return all[3:6], nil
		default:
			return all[:3], nil
		}
	}}
	m := loadedMessenger(t, src, MessengerOptions{PageSize: 3}, nil)

	type result struct {
		anchor string
		err    error
	}
	loaded := make(chan result, 1)
	go func() {
		anchor, err := m.LoadOlder(context.Background())
		loaded <- result{anchor, err}
	}()

	<-olderRequested
	newest := append(append([]models.Message{}, all[7:]...), fresh)
	require.True(t, m.ApplyPoll(newest))
	close(polled)

	res := <-loaded
	require.NoError(t, res.err)
	assert.Empty(t, res.anchor)
	assert.Equal(t, newest, m.Messages(), "older page must not be joined onto the replaced list")

	// Paging restarts from page 2 of the new list.
	anchor, err := m.LoadOlder(context.Background())
	require.NoError(t, err)
	assert.Equal(t, all[7].ID, anchor)
	held := m.Messages()
	require.Len(t, held, 6)
	assert.Equal(t, all[3].ID, held[0].ID)
}

func TestMessenger_ApplyPollKeepsPendingAtTail(t *testing.T) {
	factory := testutil.NewFactory(34)
	history := factory.Conversation("me", "peer", 2)
	incoming := factory.Message("peer", "me")

	release := make(chan struct{})
	src := &stubSource{sendFn: func(_ context.Context, peerID, content string) (*models.Message, error) {
		<-release
		return &models.Message{ID: "srv-sent", SenderID: "me", RecipientID: peerID, Content: content}, nil
	}}
	m := loadedMessenger(t, src, MessengerOptions{}, history)

	sent := make(chan error, 1)
	go func() { sent <- m.SendMessage(context.Background(), "outgoing") }()
	require.Eventually(t, func() bool { return len(m.Messages()) == 3 }, time.Second, 5*time.Millisecond)

	assert.False(t, m.ApplyPoll(history), "same newest message is not a change")
	assert.True(t, m.ApplyPoll(append(append([]models.Message{}, history...), incoming)))

	held := m.Messages()
	require.Len(t, held, 4)
	assert.Equal(t, incoming.ID, held[2].ID)
	assert.True(t, held[3].Pending)

	close(release)
	require.NoError(t, <-sent)
	held = m.Messages()
	require.Len(t, held, 4)
	assert.Equal(t, "srv-sent", held[3].ID)
	assert.False(t, held[3].Pending)
}

func TestMessenger_ConfirmAfterPollDeliveredDoesNotDuplicate(t *testing.T) {
	history := testutil.NewFactory(35).Conversation("me", "peer", 2)
	release := make(chan struct{})
	confirmed := models.Message{ID: "srv-x", SenderID: "me", RecipientID: "peer", Content: "outgoing"}
	src := &stubSource{sendFn: func(context.Context, string, string) (*models.Message, error) {
		<-release
		return &confirmed, nil
	}}
	m := loadedMessenger(t, src, MessengerOptions{}, history)

	sent := make(chan error, 1)
	go func() { sent <- m.SendMessage(context.Background(), "outgoing") }()
	require.Eventually(t, func() bool { return len(m.Messages()) == 3 }, time.Second, 5*time.Millisecond)

	m.ApplyPoll(append(append([]models.Message{}, history...), confirmed))
	close(release)
	require.NoError(t, <-sent)

	held := m.Messages()
	require.Len(t, held, 3)
	assert.Equal(t, "srv-x", held[2].ID)
}
