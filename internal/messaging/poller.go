package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"feedsync/internal/models"
	"feedsync/internal/observability"

	"github.com/jonboulle/clockwork"
)

// Visibility reports whether the conversation is on screen.
type Visibility interface {
	Visible() bool
}

// VisibilityFlag is a Visibility toggled by the host.
type VisibilityFlag struct {
	hidden atomic.Bool
}

// NewVisibilityFlag returns a flag with the given initial visibility.
func NewVisibilityFlag(visible bool) *VisibilityFlag {
	f := &VisibilityFlag{}
	f.Set(visible)
	return f
}

// Set updates the visibility.
func (f *VisibilityFlag) Set(visible bool) { f.hidden.Store(!visible) }

// Visible reports the current visibility.
func (f *VisibilityFlag) Visible() bool { return !f.hidden.Load() }

// Refresher refetches the newest page of a conversation.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// Poller runs at most one refresh task per conversation.
type Poller struct {
	clock      clockwork.Clock
	visibility Visibility
	logger     *observability.SyncLogger

	mu    sync.Mutex
	tasks map[string]*pollTask
}

type pollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a Poller. A nil visibility counts as always visible.
func NewPoller(clock clockwork.Clock, visibility Visibility) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		clock:      clock,
		visibility: visibility,
		logger:     observability.NewSyncLogger("poller"),
		tasks:      make(map[string]*pollTask),
	}
}

// StartPolling refreshes target every interval until stopped. Starting a
// conversation that is already polled replaces its task; when StartPolling
// returns the previous task has exited.
func (p *Poller) StartPolling(conversationID string, interval time.Duration, target Refresher) error {
	if conversationID == "" {
		return models.NewValidationError("conversation id is required")
	}
	if interval <= 0 {
		return models.NewValidationError("poll interval must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{cancel: cancel, done: make(chan struct{})}
	ticker := p.clock.NewTicker(interval)

	p.mu.Lock()
	prev := p.tasks[conversationID]
	p.tasks[conversationID] = task
	observability.ActivePollers.Set(float64(len(p.tasks)))
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	go p.run(ctx, conversationID, ticker, target, task.done)
	return nil
}

// StopPolling stops the task of conversationID, if any, and waits for it to exit.
func (p *Poller) StopPolling(conversationID string) {
	p.mu.Lock()
	task := p.tasks[conversationID]
	delete(p.tasks, conversationID)
	observability.ActivePollers.Set(float64(len(p.tasks)))
	p.mu.Unlock()

	if task != nil {
		task.cancel()
		<-task.done
	}
}

// IsPolling reports whether conversationID has a running task.
func (p *Poller) IsPolling(conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[conversationID]
	return ok
}

// Close stops every task.
func (p *Poller) Close() {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = make(map[string]*pollTask)
	observability.ActivePollers.Set(0)
	p.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
	}
	for _, task := range tasks {
		<-task.done
	}
}

func (p *Poller) run(ctx context.Context, conversationID string, ticker clockwork.Ticker, target Refresher, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if p.visibility != nil && !p.visibility.Visible() {
				observability.PollTicks.WithLabelValues("hidden").Inc()
				continue
			}
			changed, err := target.Refresh(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, context.Canceled) {
					// Superseded by a newer refresh of the same conversation.
					continue
				}
				observability.PollTicks.WithLabelValues("error").Inc()
				p.logger.LogError(ctx, "poll", err)
				continue
			}
			observability.PollTicks.WithLabelValues("fetched").Inc()
			if changed {
				p.logger.LogEvent(ctx, "poll_changed", map[string]interface{}{"conversation": conversationID})
			}
		}
	}
}
