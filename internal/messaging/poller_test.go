package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"feedsync/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls atomic.Int32
	err   func(call int32) error
}

func (r *countingRefresher) Refresh(context.Context) (bool, error) {
	n := r.calls.Add(1)
	if r.err != nil {
		if err := r.err(n); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (r *countingRefresher) waitFor(t *testing.T, want int32) {
	t.Helper()
	require.Eventually(t, func() bool { return r.calls.Load() == want }, time.Second, 5*time.Millisecond)
}

func TestPoller_RestartKeepsSingleTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewPoller(clock, nil)
	defer p.Close()
	r := &countingRefresher{}

	require.NoError(t, p.StartPolling("conv-1", 3*time.Second, r))
	require.NoError(t, p.StartPolling("conv-1", 3*time.Second, r))

	clock.Advance(3 * time.Second)
	r.waitFor(t, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load(), "one fetch per tick")

	clock.Advance(3 * time.Second)
	r.waitFor(t, 2)
}

func TestPoller_HiddenTicksAreSkipped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	visibility := NewVisibilityFlag(false)
	p := NewPoller(clock, visibility)
	defer p.Close()
	r := &countingRefresher{}

	require.NoError(t, p.StartPolling("conv-1", time.Second, r))

	clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), r.calls.Load())
	assert.True(t, p.IsPolling("conv-1"), "task stays registered while hidden")

	visibility.Set(true)
	clock.Advance(time.Second)
	r.waitFor(t, 1)
}

func TestPoller_ErrorsDoNotStopPolling(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewPoller(clock, nil)
	defer p.Close()
	r := &countingRefresher{err: func(call int32) error {
		if call == 1 {
			return models.NewNetworkError(errors.New("offline"))
		}
		return nil
	}}

	require.NoError(t, p.StartPolling("conv-1", time.Second, r))
	clock.Advance(time.Second)
	r.waitFor(t, 1)
	clock.Advance(time.Second)
	r.waitFor(t, 2)
}

func TestPoller_StopAndClose(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewPoller(clock, nil)
	a, b := &countingRefresher{}, &countingRefresher{}

	require.NoError(t, p.StartPolling("a", time.Second, a))
	require.NoError(t, p.StartPolling("b", time.Second, b))

	p.StopPolling("a")
	assert.False(t, p.IsPolling("a"))
	assert.True(t, p.IsPolling("b"))

	clock.Advance(time.Second)
	b.waitFor(t, 1)
	assert.Equal(t, int32(0), a.calls.Load())

	p.Close()
	assert.False(t, p.IsPolling("b"))
	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), b.calls.Load())

	p.StopPolling("missing")
}

func TestPoller_Validation(t *testing.T) {
	p := NewPoller(clockwork.NewFakeClock(), nil)
	defer p.Close()

	assert.True(t, models.IsValidation(p.StartPolling("", time.Second, &countingRefresher{})))
	assert.True(t, models.IsValidation(p.StartPolling("c", 0, &countingRefresher{})))
}

func TestPoller_RefreshesMessenger(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := NewPoller(clock, NewVisibilityFlag(true))
	defer p.Close()

	var page atomic.Int32
	src := &stubSource{listFn: func(context.Context, string, int, int) ([]models.Message, error) {
		if page.Add(1) == 1 {
			return []models.Message{{ID: "m1", SenderID: "peer", RecipientID: "me"}}, nil
		}
		return []models.Message{
			{ID: "m1", SenderID: "peer", RecipientID: "me"},
			{ID: "m2", SenderID: "peer", RecipientID: "me"},
		}, nil
	}}
	var scrolled atomic.Int32
	m := NewMessenger(src, MessengerOptions{Self: "me", Peer: "peer", Hooks: Hooks{
		ScrollToNewest: func() { scrolled.Add(1) },
	}})
	require.NoError(t, m.Load(context.Background()))
	scrolledAfterLoad := scrolled.Load()

	require.NoError(t, p.StartPolling("peer", 3*time.Second, m))
	clock.Advance(3 * time.Second)

	require.Eventually(t, func() bool { return len(m.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Greater(t, scrolled.Load(), scrolledAfterLoad)
}
