package notifications

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasMore(t *testing.T) {
	tests := []struct {
		name  string
		page  int
		got   int
		total *int
		want  bool
	}{
		{"Short page without total", 1, 7, nil, false},
		{"Full page without total", 1, 10, nil, true},
		{"Empty page", 3, 0, nil, false},
		{"Total says more", 1, 7, intPtr(12), true},
		{"Total reached on full page", 2, 10, intPtr(20), false},
		{"Total beyond short page", 2, 5, intPtr(30), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasMore(tt.page, 10, tt.got, tt.total))
		})
	}
}

func TestPaginator_StopsAfterShortPage(t *testing.T) {
	factory := testutil.NewFactory(21)
	var fetches atomic.Int32
	src := &stubSource{listFn: func(_ context.Context, page, limit int) (*api.NotificationPage, error) {
		fetches.Add(1)
		if page == 1 {
			return &api.NotificationPage{Notifications: factory.Notifications(limit)}, nil
		}
		return &api.NotificationPage{Notifications: factory.Notifications(7)}, nil
	}}
	p := NewPaginator(NewEngine(src, Options{PageSize: 10}))

	loaded, err := p.OnLastItemVisible(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.True(t, p.HasMore(), "10 of 10 without total may have more")

	loaded, err = p.OnLastItemVisible(context.Background())
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.False(t, p.HasMore(), "7 of 10 is the last page")

	loaded, err = p.OnLastItemVisible(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestPaginator_GuardsConcurrentLoads(t *testing.T) {
	release := make(chan struct{})
	var fetches atomic.Int32
	src := &stubSource{listFn: func(context.Context, int, int) (*api.NotificationPage, error) {
		fetches.Add(1)
		<-release
		return &api.NotificationPage{Notifications: []models.Notification{}}, nil
	}}
	p := NewPaginator(NewEngine(src, Options{PageSize: 10}))

	done := make(chan struct{})
	go func() {
		_, _ = p.OnLastItemVisible(context.Background())
		close(done)
	}()
	require.Eventually(t, p.Loading, time.Second, 5*time.Millisecond)

	loaded, err := p.OnLastItemVisible(context.Background())
	assert.NoError(t, err)
	assert.False(t, loaded)

	close(release)
	<-done
	assert.Equal(t, int32(1), fetches.Load())
}

func TestPaginator_RefreshResetsPosition(t *testing.T) {
	factory := testutil.NewFactory(22)
	var pages []int
	src := &stubSource{listFn: func(_ context.Context, page, _ int) (*api.NotificationPage, error) {
		pages = append(pages, page)
		return &api.NotificationPage{Notifications: factory.Notifications(3), Total: intPtr(30)}, nil
	}}
	p := NewPaginator(NewEngine(src, Options{PageSize: 3}))

	_, err := p.OnLastItemVisible(context.Background())
	require.NoError(t, err)
	_, err = p.OnLastItemVisible(context.Background())
	require.NoError(t, err)
	res, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, res.HasMore)
	_, err = p.OnLastItemVisible(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 1, 2}, pages)
}
