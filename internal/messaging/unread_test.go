package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"feedsync/internal/models"
	"feedsync/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUnreadSource struct {
	countsFn func() (*models.UnreadSummary, error)
	summary  *models.UnreadSummary
	markErr  error
	markedBy []string
}

func (s *stubUnreadSource) UnreadMessageCounts(context.Context) (*models.UnreadSummary, error) {
	if s.countsFn != nil {
		return s.countsFn()
	}
	if s.summary == nil {
		return &models.UnreadSummary{}, nil
	}
	return s.summary, nil
}

func (s *stubUnreadSource) MarkConversationRead(_ context.Context, peerID string) error {
	s.markedBy = append(s.markedBy, peerID)
	return s.markErr
}

type badgeRecorder struct{ last int }

func (b *badgeRecorder) SetMessageUnread(n int) { b.last = n }

func incoming(id, from string) models.Message {
	return models.Message{ID: id, SenderID: from, RecipientID: "me"}
}

func TestUnreadCounter_DedupesAcrossSources(t *testing.T) {
	src := &stubUnreadSource{summary: &models.UnreadSummary{
		Total: 3,
		Conversations: []models.ConversationUnread{
			{UserID: "u1", Count: 2},
			{UserID: "u2", Count: 1},
		},
	}}
	badge := &badgeRecorder{}
	u := NewUnreadCounter(src, "me", badge)

	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, 3, u.Total())

	assert.True(t, u.Observe(incoming("m1", "u3")))
	assert.False(t, u.Observe(incoming("m1", "u3")), "same message id counts once")
	assert.False(t, u.Observe(models.Message{ID: "m2", SenderID: "me", RecipientID: "u3"}), "own messages never count")
	assert.Equal(t, 4, u.Total())
	assert.Equal(t, 4, badge.last)

	u.SetActiveConversation("u2")
	assert.False(t, u.Observe(incoming("m3", "u2")), "open conversation does not count")
	u.SetActiveConversation("")

	// The next summary already includes m1; replaying m1 must not add it again.
	src.summary = &models.UnreadSummary{Conversations: []models.ConversationUnread{
		{UserID: "u1", Count: 2},
		{UserID: "u2", Count: 1},
		{UserID: "u3", Count: 1},
	}}
	require.NoError(t, u.Refresh(context.Background()))
	assert.False(t, u.Observe(incoming("m1", "u3")))
	assert.Equal(t, 4, u.Total())
	assert.Equal(t, 1, u.ForConversation("u3"))
}

func TestUnreadCounter_RefreshKeepsCountsObservedInFlight(t *testing.T) {
	requested := make(chan struct{})
	answer := make(chan struct{})
	src := &stubUnreadSource{}
	u := NewUnreadCounter(src, "me", nil)

	require.True(t, u.Observe(incoming("m1", "u1")))

	src.countsFn = func() (*models.UnreadSummary, error) {
		close(requested)
		<-answer
		// Computed before m2 arrived; m1 is already included.
		return &models.UnreadSummary{Total: 1, Conversations: []models.ConversationUnread{{UserID: "u1", Count: 1}}}, nil
	}
	refreshed := make(chan error, 1)
	go func() { refreshed <- u.Refresh(context.Background()) }()

	<-requested
	require.True(t, u.Observe(incoming("m2", "u1")))
	close(answer)
	require.NoError(t, <-refreshed)

	assert.Equal(t, 2, u.Total())
	assert.Equal(t, 2, u.ForConversation("u1"))
	assert.False(t, u.Observe(incoming("m2", "u1")), "replayed message is not counted again")
}

func TestUnreadCounter_MarkConversationRead(t *testing.T) {
	src := &stubUnreadSource{summary: &models.UnreadSummary{Conversations: []models.ConversationUnread{
		{UserID: "u1", Count: 2},
	}}}
	u := NewUnreadCounter(src, "me", nil)
	require.NoError(t, u.Refresh(context.Background()))
	u.Observe(incoming("m9", "u1"))
	u.Observe(incoming("m10", "u2"))

	require.NoError(t, u.MarkConversationRead(context.Background(), "u1"))
	assert.Equal(t, 0, u.ForConversation("u1"))
	assert.Equal(t, 1, u.Total())
	assert.Equal(t, []string{"u1"}, src.markedBy)

	src.markErr = models.NewNetworkError(errors.New("offline"))
	err := u.MarkConversationRead(context.Background(), "u2")
	assert.True(t, models.IsRetryable(err))
	assert.Equal(t, 1, u.ForConversation("u2"), "failed mark-read restores the count")

	assert.True(t, models.IsValidation(u.MarkConversationRead(context.Background(), "")))
}

func TestUnreadCounter_TotalOnlySummary(t *testing.T) {
	u := NewUnreadCounter(&stubUnreadSource{summary: &models.UnreadSummary{Total: 5}}, "me", nil)
	require.NoError(t, u.Refresh(context.Background()))
	assert.Equal(t, 5, u.Total())
}

func TestUnreadCounter_Attach(t *testing.T) {
	handlers := map[string]realtime.Handler{}
	sub := subscriberFunc(func(event string, h realtime.Handler) func() {
		handlers[event] = h
		return func() { delete(handlers, event) }
	})
	u := NewUnreadCounter(&stubUnreadSource{}, "me", nil)
	detach := u.Attach(sub)

	bare, err := json.Marshal(incoming("m1", "u1"))
	require.NoError(t, err)
	wrapped, err := json.Marshal(map[string]any{"message": incoming("m2", "u1")})
	require.NoError(t, err)

	handlers[realtime.EventNewMessage](bare)
	handlers[realtime.EventNewMessage](wrapped)
	handlers[realtime.EventNewMessage](json.RawMessage(`"garbage"`))

	assert.Equal(t, 2, u.Total())
	detach()
	assert.Empty(t, handlers)
}

type subscriberFunc func(event string, h realtime.Handler) func()

func (f subscriberFunc) On(event string, h realtime.Handler) func() { return f(event, h) }

func TestSeenSet_EvictsOldest(t *testing.T) {
	s := newSeenSet(3)
	for i := 0; i < 4; i++ {
		assert.True(t, s.add(fmt.Sprintf("id-%d", i)))
	}
	assert.True(t, s.add("id-0"), "evicted id is new again")
	assert.False(t, s.add("id-3"))
}
