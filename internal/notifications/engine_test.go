package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/realtime"
	"feedsync/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	listFn     func(ctx context.Context, page, limit int) (*api.NotificationPage, error)
	markReadFn func(ctx context.Context, id string) error
}

func (s *stubSource) ListNotifications(ctx context.Context, page, limit int) (*api.NotificationPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, page, limit)
	}
	return &api.NotificationPage{}, nil
}

func (s *stubSource) MarkNotificationRead(ctx context.Context, id string) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, id)
	}
	return nil
}

type recordingBadge struct {
	mu     sync.Mutex
	counts []int
}

func (b *recordingBadge) SetNotificationUnread(count int) {
	b.mu.Lock()
	b.counts = append(b.counts, count)
	b.mu.Unlock()
}

func (b *recordingBadge) last() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.counts) == 0 {
		return -1
	}
	return b.counts[len(b.counts)-1]
}

func pageOf(items []models.Notification, total *int) func(context.Context, int, int) (*api.NotificationPage, error) {
	return func(context.Context, int, int) (*api.NotificationPage, error) {
		return &api.NotificationPage{Notifications: items, Total: total}, nil
	}
}

func intPtr(v int) *int { return &v }

func TestEngine_LiveVersionWins(t *testing.T) {
	factory := testutil.NewFactory(7)
	restCopy := factory.Notification(func(n *models.Notification) { n.Message = "from rest" })
	liveCopy := restCopy
	liveCopy.Message = "from live"

	src := &stubSource{listFn: pageOf([]models.Notification{restCopy}, nil)}
	engine := NewEngine(src, Options{PageSize: 10})

	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, engine.Merge(liveCopy))

	list := engine.List()
	require.Len(t, list, 1)
	assert.Equal(t, "from live", list[0].Message)

	// A later refresh with an equally fresh REST copy does not overwrite the live one.
	_, err = engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	list = engine.List()
	require.Len(t, list, 1)
	assert.Equal(t, "from live", list[0].Message)
}

func TestEngine_FresherCopyWins(t *testing.T) {
	factory := testutil.NewFactory(8)
	held := factory.Notification(func(n *models.Notification) {
		n.UpdatedAt = n.CreatedAt.Add(time.Hour)
		n.Message = "edited"
	})
	stale := held
	stale.UpdatedAt = time.Time{}
	stale.Message = "stale"

	engine := NewEngine(&stubSource{listFn: pageOf([]models.Notification{held}, nil)}, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.False(t, engine.Merge(stale), "stale live event must not replace a fresher entry")
	got, ok := engine.Get(held.ID)
	require.True(t, ok)
	assert.Equal(t, "edited", got.Message)

	// A strictly fresher REST copy replaces a live entry.
	live := factory.Notification(func(n *models.Notification) { n.Message = "live" })
	engine.Merge(live)
	fresher := live
	fresher.UpdatedAt = live.CreatedAt.Add(time.Minute)
	fresher.Message = "rest newer"
	engine.src = &stubSource{listFn: pageOf([]models.Notification{held, fresher}, nil)}

	_, err = engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	got, _ = engine.Get(live.ID)
	assert.Equal(t, "rest newer", got.Message)
}

func TestEngine_FresherLiveCopyCarriesReadFlag(t *testing.T) {
	factory := testutil.NewFactory(14)
	held := factory.Notification(func(n *models.Notification) { n.Read = true })

	engine := NewEngine(&stubSource{listFn: pageOf([]models.Notification{held}, nil)}, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Equal(t, 0, engine.UnreadCount())

	live := held
	live.Read = false
	live.UpdatedAt = held.CreatedAt.Add(time.Minute)
	assert.True(t, engine.Merge(live))

	got, ok := engine.Get(held.ID)
	require.True(t, ok)
	assert.False(t, got.Read)
	assert.Equal(t, 1, engine.UnreadCount())
}

func TestEngine_PendingMarkReadSurvivesLiveCopy(t *testing.T) {
	factory := testutil.NewFactory(15)
	n := factory.Notification()

	confirming := make(chan struct{})
	release := make(chan struct{})
	src := &stubSource{
		listFn: pageOf([]models.Notification{n}, nil),
		markReadFn: func(context.Context, string) error {
			close(confirming)
			<-release
			return nil
		},
	}
	engine := NewEngine(src, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- engine.MarkRead(context.Background(), n.ID) }()
	<-confirming

	live := n
	live.UpdatedAt = n.CreatedAt.Add(time.Minute)
	engine.Merge(live)
	got, _ := engine.Get(n.ID)
	assert.True(t, got.Read, "mark read awaiting confirmation keeps the entry read")

	close(release)
	require.NoError(t, <-done)

	// Once confirmed, a later live copy is taken as is.
	later := n
	later.UpdatedAt = n.CreatedAt.Add(2 * time.Minute)
	engine.Merge(later)
	assert.Equal(t, 1, engine.UnreadCount())
}

func TestEngine_PageOneReplacesFetchedKeepsLive(t *testing.T) {
	factory := testutil.NewFactory(9)
	first := factory.Notifications(3)
	live := factory.Notification()
	second := first[:1]

	src := &stubSource{listFn: pageOf(first, nil)}
	engine := NewEngine(src, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	engine.Merge(live)

	src.listFn = pageOf(second, nil)
	_, err = engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	ids := []string{}
	for _, n := range engine.List() {
		ids = append(ids, n.ID)
	}
	assert.ElementsMatch(t, []string{first[0].ID, live.ID}, ids)
}

func TestEngine_ListIsNewestFirst(t *testing.T) {
	factory := testutil.NewFactory(10)
	items := factory.Notifications(5)
	reversed := []models.Notification{items[4], items[2], items[0], items[3], items[1]}

	engine := NewEngine(&stubSource{listFn: pageOf(reversed, nil)}, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	list := engine.List()
	require.Len(t, list, 5)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	assert.Equal(t, items[0].ID, list[0].ID)
}

func TestEngine_UnreadCountMatchesReadFlags(t *testing.T) {
	factory := testutil.NewFactory(11)
	items := factory.Notifications(4)
	items[1].Read = true
	badge := &recordingBadge{}

	engine := NewEngine(&stubSource{listFn: pageOf(items, nil)}, Options{Badge: badge})
	countUnread := func() int {
		n := 0
		for _, item := range engine.List() {
			if !item.Read {
				n++
			}
		}
		return n
	}

	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, engine.UnreadCount())
	assert.Equal(t, countUnread(), engine.UnreadCount())
	assert.Equal(t, 3, badge.last())

	engine.Merge(factory.Notification())
	engine.Merge(items[0]) // duplicate identity does not double count
	assert.Equal(t, 4, engine.UnreadCount())
	assert.Equal(t, countUnread(), engine.UnreadCount())

	require.NoError(t, engine.MarkRead(context.Background(), items[0].ID))
	assert.Equal(t, 3, engine.UnreadCount())
	assert.Equal(t, countUnread(), engine.UnreadCount())

	require.NoError(t, engine.MarkAllRead(context.Background()))
	assert.Equal(t, 0, engine.UnreadCount())
	assert.Equal(t, countUnread(), engine.UnreadCount())
	assert.Equal(t, 0, badge.last())
}

func TestEngine_MarkReadRevertsOnFailure(t *testing.T) {
	factory := testutil.NewFactory(12)
	n := factory.Notification()
	src := &stubSource{
		listFn:     pageOf([]models.Notification{n}, nil),
		markReadFn: func(context.Context, string) error { return models.NewNetworkError(errors.New("offline")) },
	}
	engine := NewEngine(src, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	err = engine.MarkRead(context.Background(), n.ID)

	assert.True(t, models.IsRetryable(err))
	got, _ := engine.Get(n.ID)
	assert.False(t, got.Read)
	assert.Equal(t, 1, engine.UnreadCount())

	assert.True(t, models.HasCode(engine.MarkRead(context.Background(), "missing"), models.CodeNotFound))
}

func TestEngine_MarkAllReadIsBestEffort(t *testing.T) {
	factory := testutil.NewFactory(13)
	items := factory.Notifications(3)

	fake := testutil.NewFakeAPI()
	fake.App.Get("/notifications", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"notifications": items})
	})
	fake.App.Patch("/notifications/"+items[1].ID+"/read", testutil.Fail(http.StatusInternalServerError, "boom"))
	fake.App.Patch("/notifications/:id/read", testutil.OK)

	client := api.NewClient(api.Options{
		BaseURLs:   map[api.Service]string{api.ServiceSocial: testutil.FakeBaseURL},
		Tokens:     api.StaticToken("t"),
		HTTPClient: fake.HTTPClient(),
	})
	engine := NewEngine(client, Options{})
	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)

	err = engine.MarkAllRead(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), items[1].ID)
	assert.Equal(t, 1, engine.UnreadCount())
	failed, _ := engine.Get(items[1].ID)
	assert.False(t, failed.Read)
	ok, _ := engine.Get(items[0].ID)
	assert.True(t, ok.Read)
	assert.Equal(t, 1, fake.CallCount(http.MethodPatch, "/notifications/"+items[2].ID+"/read"))
}

func TestEngine_AttachMergesLiveEvents(t *testing.T) {
	handlers := map[string]realtime.Handler{}
	sub := subscriberFunc(func(event string, h realtime.Handler) func() {
		handlers[event] = h
		return func() { delete(handlers, event) }
	})

	engine := NewEngine(&stubSource{}, Options{})
	detach := engine.Attach(sub)

	n := testutil.NewFactory(14).Notification()
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	handlers[realtime.EventNewNotification](raw)

	wrapped, err := json.Marshal(map[string]any{"notification": testutil.NewFactory(15).Notification(func(x *models.Notification) { x.ID = "wrapped" })})
	require.NoError(t, err)
	handlers[realtime.EventNewNotification](wrapped)
	handlers[realtime.EventNewNotification](json.RawMessage(`{"bad":true}`))

	assert.Len(t, engine.List(), 2)
	assert.Equal(t, 2, engine.UnreadCount())

	detach()
	assert.Empty(t, handlers)
}

type subscriberFunc func(event string, h realtime.Handler) func()

func (f subscriberFunc) On(event string, h realtime.Handler) func() { return f(event, h) }

func TestEngine_RefreshSupersedesInFlightRequest(t *testing.T) {
	factory := testutil.NewFactory(16)
	fresh := factory.Notifications(1)

	started := make(chan struct{})
	calls := 0
	var mu sync.Mutex
	src := &stubSource{listFn: func(ctx context.Context, _, _ int) (*api.NotificationPage, error) {
		mu.Lock()
		calls++
		call := calls
		mu.Unlock()
		if call == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &api.NotificationPage{Notifications: fresh}, nil
	}}
	engine := NewEngine(src, Options{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := engine.FetchPage(context.Background(), 1, 10)
		firstErr <- err
	}()
	<-started

	_, err := engine.FetchPage(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	list := engine.List()
	require.Len(t, list, 1)
	assert.Equal(t, fresh[0].ID, list[0].ID)
}
