// Package notifications merges the paginated notification feed with live
// push events into one deduplicated, time-ordered list.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"feedsync/internal/api"
	"feedsync/internal/models"
	"feedsync/internal/observability"
	"feedsync/internal/optimistic"
	"feedsync/internal/realtime"
)

// DefaultPageSize is used when Options.PageSize is not set.
const DefaultPageSize = 10

// Source is the REST surface the engine reads from and confirms against.
type Source interface {
	ListNotifications(ctx context.Context, page, limit int) (*api.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// BadgeSink receives the unread count after every change. It only mirrors
// the engine; the engine's map is the source of truth.
type BadgeSink interface {
	SetNotificationUnread(count int)
}

// Options configure an Engine.
type Options struct {
	PageSize int
	Badge    BadgeSink
}

type origin int

const (
	fromFetch origin = iota
	fromLive
)

type entry struct {
	n      models.Notification
	origin origin
}

// PageResult is the outcome of one FetchPage call.
type PageResult struct {
	Items   []models.Notification
	Total   *int
	HasMore bool
}

// Engine owns the merged notification set of a session.
type Engine struct {
	src       Source
	badge     BadgeSink
	pageSize  int
	supersede *api.Superseder
	logger    *observability.SyncLogger

	mu        sync.Mutex
	entries   map[string]*entry
	marking   map[string]int
	nextSub   uint64
	listeners map[uint64]func()
}

// NewEngine creates an empty Engine.
func NewEngine(src Source, opts Options) *Engine {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Engine{
		src:       src,
		badge:     opts.Badge,
		pageSize:  size,
		supersede: api.NewSuperseder(),
		logger:    observability.NewSyncLogger("notifications"),
		entries:   make(map[string]*entry),
		marking:   make(map[string]int),
		listeners: make(map[uint64]func()),
	}
}

// PageSize returns the configured page size.
func (e *Engine) PageSize() int { return e.pageSize }

// FetchPage loads one page from the server. Page 1 replaces every entry that
// came from an earlier fetch and keeps live entries; later pages upsert. A new
// request for the same page cancels one still in flight.
func (e *Engine) FetchPage(ctx context.Context, page, pageSize int) (PageResult, error) {
	if page < 1 {
		return PageResult{}, models.NewValidationError("page must be at least 1")
	}
	if pageSize <= 0 {
		pageSize = e.pageSize
	}

	ctx, done := e.supersede.Begin(ctx, fmt.Sprintf("page:%d", page))
	defer done()

	res, err := e.src.ListNotifications(ctx, page, pageSize)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.LogError(ctx, "fetch_page", err)
		}
		return PageResult{}, err
	}
	// Superseded after the response arrived; the newer request owns the state.
	if ctx.Err() != nil {
		return PageResult{}, ctx.Err()
	}

	e.mu.Lock()
	if page == 1 {
		for id, en := range e.entries {
			if en.origin == fromFetch {
				delete(e.entries, id)
			}
		}
	}
	for _, n := range res.Notifications {
		if n.ID == "" {
			continue
		}
		e.mergeLocked(n, fromFetch)
	}
	e.mu.Unlock()

	e.logger.LogEvent(ctx, "fetch_page", map[string]interface{}{
		"page":  page,
		"count": len(res.Notifications),
	})
	e.publish()

	return PageResult{
		Items:   res.Notifications,
		Total:   res.Total,
		HasMore: hasMore(page, pageSize, len(res.Notifications), res.Total),
	}, nil
}

// Merge upserts a live notification. It reports whether the held list changed.
func (e *Engine) Merge(n models.Notification) bool {
	if n.ID == "" {
		return false
	}
	e.mu.Lock()
	changed := e.mergeLocked(n, fromLive)
	e.mu.Unlock()

	if changed {
		e.publish()
	}
	return changed
}

// mergeLocked applies the identity rules: a live copy replaces whatever is
// held, read flag included, unless the held copy is strictly fresher, and a
// fetched copy only replaces a live one when it is strictly fresher. While a
// mark-read for the id is awaiting confirmation the entry stays read.
func (e *Engine) mergeLocked(n models.Notification, o origin) bool {
	cur, ok := e.entries[n.ID]
	if !ok {
		e.entries[n.ID] = &entry{n: n, origin: o}
		return true
	}

	switch o {
	case fromLive:
		if cur.n.Freshness().After(n.Freshness()) {
			return false
		}
	case fromFetch:
		if cur.origin == fromLive && !n.Freshness().After(cur.n.Freshness()) {
			return false
		}
	}

	if e.marking[n.ID] > 0 {
		n.Read = true
	}
	cur.n = n
	cur.origin = o
	return true
}

// List returns the merged notifications, newest first.
func (e *Engine) List() []models.Notification {
	e.mu.Lock()
	out := make([]models.Notification, 0, len(e.entries))
	for _, en := range e.entries {
		out = append(out, en.n)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns the notification held under id.
func (e *Engine) Get(id string) (models.Notification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	en, ok := e.entries[id]
	if !ok {
		return models.Notification{}, false
	}
	return en.n, true
}

// UnreadCount is the number of held notifications not yet read.
func (e *Engine) UnreadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unreadLocked()
}

func (e *Engine) unreadLocked() int {
	count := 0
	for _, en := range e.entries {
		if !en.n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks id read locally, confirms with the server and reverts the
// flag if the server rejects it.
func (e *Engine) MarkRead(ctx context.Context, id string) error {
	e.mu.Lock()
	en, ok := e.entries[id]
	if !ok {
		e.mu.Unlock()
		return models.NewNotFoundError("Notification", id)
	}
	alreadyRead := en.n.Read
	e.mu.Unlock()
	if alreadyRead {
		return nil
	}

	e.beginMarking(id)
	defer e.endMarking(id)

	err := e.confirmRead(ctx, "notification_mark_read", id, func() { e.setRead(id, true) })
	if err != nil {
		e.logger.LogRollback(ctx, "mark_read", err)
	}
	return err
}

// confirmRead runs one optimistic mark-read of id. mutate may be nil when the
// flag was already flipped.
func (e *Engine) confirmRead(ctx context.Context, name, id string, mutate func()) error {
	return optimistic.Run(ctx, optimistic.Op[bool]{
		Name:     name,
		Snapshot: func() bool { return false },
		Mutate:   mutate,
		Confirm:  func(ctx context.Context) error { return e.src.MarkNotificationRead(ctx, id) },
		Restore:  func(prev bool) { e.setRead(id, prev) },
	})
}

// MarkAllRead marks every unread notification read, then confirms each one.
// Confirmation is best-effort: ids the server rejects are reverted one by one,
// the rest stay read, and the failures are returned joined.
func (e *Engine) MarkAllRead(ctx context.Context) error {
	e.mu.Lock()
	var ids []string
	for id, en := range e.entries {
		if !en.n.Read {
			ids = append(ids, id)
			en.n.Read = true
			e.marking[id]++
		}
	}
	e.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	e.publish()

	var errs []error
	for _, id := range ids {
		err := e.confirmRead(ctx, "notification_mark_all_read", id, nil)
		e.endMarking(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("mark %s read: %w", id, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		e.logger.LogRollback(ctx, "mark_all_read", err)
	}
	return err
}

func (e *Engine) beginMarking(id string) {
	e.mu.Lock()
	e.marking[id]++
	e.mu.Unlock()
}

func (e *Engine) endMarking(id string) {
	e.mu.Lock()
	if e.marking[id] <= 1 {
		delete(e.marking, id)
	} else {
		e.marking[id]--
	}
	e.mu.Unlock()
}

func (e *Engine) setRead(id string, read bool) {
	e.mu.Lock()
	en, ok := e.entries[id]
	if ok {
		en.n.Read = read
	}
	e.mu.Unlock()
	if ok {
		e.publish()
	}
}

// OnChange registers fn to run after every change and returns a func that removes it.
func (e *Engine) OnChange(fn func()) func() {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.listeners[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Attach subscribes the engine to live notifications and returns a func that
// removes the subscription.
func (e *Engine) Attach(sub realtime.Subscriber) func() {
	return sub.On(realtime.EventNewNotification, func(raw json.RawMessage) {
		n, err := decodeLive(raw)
		if err != nil {
			e.logger.LogError(context.Background(), "decode_live", err)
			return
		}
		e.Merge(n)
	})
}

// decodeLive accepts either the bare notification or {"notification": {...}}.
func decodeLive(raw json.RawMessage) (models.Notification, error) {
	var wrapped struct {
		Notification *models.Notification `json:"notification"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Notification != nil && wrapped.Notification.ID != "" {
		return *wrapped.Notification, nil
	}

	var n models.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return models.Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" {
		return models.Notification{}, errors.New("notification without id")
	}
	return n, nil
}

func (e *Engine) publish() {
	e.mu.Lock()
	count := e.unreadLocked()
	fns := make([]func(), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	observability.UnreadNotifications.Set(float64(count))
	if e.badge != nil {
		e.badge.SetNotificationUnread(count)
	}
	for _, fn := range fns {
		fn()
	}
}

// hasMore decides whether another page exists. A server-reported total is
// authoritative; without one, a full page means there may be more.
func hasMore(page, pageSize, got int, total *int) bool {
	if total != nil {
		loaded := (page-1)*pageSize + got
		return loaded < *total
	}
	return got >= pageSize
}
