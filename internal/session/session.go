// Package session owns everything that lives for one signed-in session: the
// credential, the realtime channel and the engines fed by it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"feedsync/internal/api"
	"feedsync/internal/cache"
	"feedsync/internal/config"
	"feedsync/internal/featureflags"
	"feedsync/internal/interactions"
	"feedsync/internal/messaging"
	"feedsync/internal/models"
	"feedsync/internal/notifications"
	"feedsync/internal/observability"
	"feedsync/internal/realtime"
	"feedsync/internal/search"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// ErrNotInitialized is returned by operations that need a signed-in session.
var ErrNotInitialized = models.NewUnauthorizedError("Please log in to continue")

// Options configure a Session. Only Config is required.
type Options struct {
	Config *config.Config
	Flags  *featureflags.Manager

	// Redis backs the follow-status cache and the recent-search store when set.
	Redis      *redis.Client
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Clock      clockwork.Clock
	Visibility messaging.Visibility

	Notify    func(models.Notice)
	Confirmer interactions.Confirmer
	OnBadge   func(Counts)
}

// Session replaces ambient globals: every engine of a signed-in user hangs
// off it and is torn down with it.
type Session struct {
	cfg        *config.Config
	flags      *featureflags.Manager
	redis      *redis.Client
	dialer     *websocket.Dialer
	clock      clockwork.Clock
	visibility messaging.Visibility
	notify     func(models.Notice)
	confirmer  interactions.Confirmer

	client   *api.Client
	badge    *Badge
	poller   *messaging.Poller
	profiles *api.Superseder

	mu            sync.RWMutex
	token         string
	user          *models.User
	channel       *realtime.Channel
	notifications *notifications.Engine
	paginator     *notifications.Paginator
	unread        *messaging.UnreadCounter
	presence      *realtime.Presence
	interactions  *interactions.Orchestrator
	searches      *search.Recent
	conversations map[string]*messaging.Messenger
	detach        []func()
}

// New creates a signed-out Session.
func New(opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Session{
		cfg:           opts.Config,
		flags:         opts.Flags,
		redis:         opts.Redis,
		dialer:        opts.Dialer,
		clock:         clock,
		visibility:    opts.Visibility,
		notify:        opts.Notify,
		confirmer:     opts.Confirmer,
		badge:         NewBadge(opts.OnBadge),
		poller:        messaging.NewPoller(clock, opts.Visibility),
		profiles:      api.NewSuperseder(),
		conversations: make(map[string]*messaging.Messenger),
	}

	clientOpts := api.OptionsFromConfig(opts.Config, s)
	clientOpts.HTTPClient = opts.HTTPClient
	s.client = api.NewClient(clientOpts)
	return s
}

// Token returns the session credential, or "" when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Login exchanges credentials for a token and initializes the session with it.
func (s *Session) Login(ctx context.Context, email, password string) error {
	res, err := s.client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return s.Init(ctx, res.Token)
}

// Init starts the session for token: it builds the engines, opens the
// realtime channel when enabled and loads the first notification page, the
// message unread summary and the recent searches. Only an invalid credential
// fails Init; load failures are logged and left to later refreshes.
func (s *Session) Init(ctx context.Context, token string) error {
	claims, err := ParseToken(token, s.clock.Now())
	if err != nil {
		return err
	}
	user := claims.User()

	s.mu.Lock()
	if s.user != nil {
		s.mu.Unlock()
		return models.NewValidationError("session already initialized")
	}
	s.token = token
	s.user = &user
	s.buildLocked(user)
	engine, unread, presence, paginator, searches := s.notifications, s.unread, s.presence, s.paginator, s.searches
	s.mu.Unlock()

	log := observability.GlobalLogger.With(slog.String("user_id", user.ID))
	log.InfoContext(ctx, "session started")

	if s.flags.EnabledOr(featureflags.Realtime, user.ID, true) && s.cfg.RealtimeURL != "" {
		channel := realtime.NewChannel(realtime.Options{
			URL:             s.cfg.RealtimeURL,
			InitialInterval: s.cfg.ReconnectInitial,
			MaxElapsed:      s.cfg.ReconnectMaxElapsed,
			Dialer:          s.dialer,
		})
		detach := []func(){
			engine.Attach(channel),
			unread.Attach(channel),
			presence.Attach(channel),
			channel.On(realtime.EventAuthError, func(json.RawMessage) {
				s.emit(models.NoticeFor(models.NewUnauthorizedError("session expired"), ""))
			}),
		}

		s.mu.Lock()
		s.channel = channel
		s.detach = append(s.detach, detach...)
		s.mu.Unlock()

		wait, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
		err := channel.Connect(wait, token)
		cancel()
		switch {
		case errors.Is(err, realtime.ErrUnauthorized):
			s.Teardown()
			return models.NewUnauthorizedError("Realtime channel rejected the session credential")
		case err != nil:
			// The channel keeps retrying in the background.
			log.WarnContext(ctx, "realtime channel not connected yet", slog.String("error", err.Error()))
		}
	} else {
		log.InfoContext(ctx, "realtime channel disabled")
	}

	if _, err := paginator.Refresh(ctx); err != nil {
		log.WarnContext(ctx, "initial notification load failed", slog.String("error", err.Error()))
	}
	if err := unread.Refresh(ctx); err != nil {
		log.WarnContext(ctx, "initial unread summary failed", slog.String("error", err.Error()))
	}
	if _, err := searches.Load(ctx); err != nil {
		log.WarnContext(ctx, "recent searches unavailable", slog.String("error", err.Error()))
	}
	return nil
}

func (s *Session) buildLocked(user models.User) {
	s.notifications = notifications.NewEngine(s.client, notifications.Options{
		PageSize: s.cfg.NotificationPageSize,
		Badge:    s.badge,
	})
	s.paginator = notifications.NewPaginator(s.notifications)
	s.unread = messaging.NewUnreadCounter(s.client, user.ID, s.badge)
	s.presence = realtime.NewPresence()
	s.interactions = interactions.NewOrchestrator(s.client, interactions.Options{
		Viewer:    &user,
		Cache:     cache.NewFollowStatusCache(s.redis, s.cfg.FollowCacheTTL),
		Confirmer: s.confirmer,
		Notify:    s.notify,
	})

	var store search.Store
	if s.redis != nil {
		store = search.NewRedisStore(s.redis, 0)
	} else if s.cfg.RecentSearchesPath != "" {
		store = search.NewFileStore(s.cfg.RecentSearchesPath)
	}
	var remote search.Remote
	if s.flags.EnabledOr(featureflags.RecentSearchRemote, user.ID, true) {
		remote = s.client
	}
	s.searches = search.NewRecent(remote, search.Options{
		UserID: user.ID,
		Max:    s.cfg.MaxRecentSearches,
		Store:  store,
		Clock:  s.clock,
	})
}

// Teardown closes the channel, stops every poll task and signs out. It is
// safe to call more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	channel, detach, user := s.channel, s.detach, s.user
	s.channel, s.detach = nil, nil
	s.token, s.user = "", nil
	s.notifications, s.paginator, s.unread, s.presence = nil, nil, nil, nil
	s.interactions, s.searches = nil, nil
	s.conversations = make(map[string]*messaging.Messenger)
	s.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	if channel != nil {
		channel.Disconnect()
	}
	s.poller.Close()
	s.badge.reset()

	if user != nil {
		observability.GlobalLogger.Info("session ended", slog.String("user_id", user.ID))
	}
}

// OpenConversation loads the conversation with peerID, stops counting its
// messages as unread and polls it while chat polling is enabled.
func (s *Session) OpenConversation(ctx context.Context, peerID string, hooks messaging.Hooks) (*messaging.Messenger, error) {
	if peerID == "" {
		return nil, models.NewValidationError("conversation id is required")
	}

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	self, unread := s.user.ID, s.unread
	if hooks.Notify == nil {
		hooks.Notify = s.notify
	}
	m := messaging.NewMessenger(s.client, messaging.MessengerOptions{
		Self:       self,
		Peer:       peerID,
		PageSize:   s.cfg.MessagePageSize,
		MaxLength:  s.cfg.MessageMaxLength,
		LeaveDelay: s.cfg.MutualFollowLeave,
		Clock:      s.clock,
		Hooks:      hooks,
	})
	s.conversations[peerID] = m
	s.mu.Unlock()

	unread.SetActiveConversation(peerID)
	if err := m.Load(ctx); err != nil {
		return m, err
	}
	if err := unread.MarkConversationRead(ctx, peerID); err != nil {
		observability.GlobalLogger.WarnContext(ctx, "mark conversation read failed",
			slog.String("peer_id", peerID), slog.String("error", err.Error()))
	}

	if s.flags.EnabledOr(featureflags.ChatPolling, self, true) {
		if err := s.poller.StartPolling(peerID, s.cfg.ChatPollInterval, m); err != nil {
			return m, err
		}
	}
	return m, nil
}

// CloseConversation stops polling peerID.
func (s *Session) CloseConversation(peerID string) {
	s.poller.StopPolling(peerID)

	s.mu.Lock()
	delete(s.conversations, peerID)
	unread := s.unread
	s.mu.Unlock()

	if unread != nil {
		unread.SetActiveConversation("")
	}
}

// Conversation returns the open conversation with peerID.
func (s *Session) Conversation(peerID string) (*messaging.Messenger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.conversations[peerID]
	return m, ok
}

// Status is a point-in-time summary of the session.
type Status struct {
	SignedIn    bool            `json:"signedIn"`
	UserID      string          `json:"userId,omitempty"`
	Realtime    string          `json:"realtime"`
	OnlineUsers int             `json:"onlineUsers"`
	Polling     []string        `json:"polling"`
	Unread      Counts          `json:"unread"`
	Flags       map[string]bool `json:"flags"`
}

// RealtimeDisabled is reported as the realtime state when no channel is open.
const RealtimeDisabled = "disabled"

// Status reports the current session state.
func (s *Session) Status() Status {
	s.mu.RLock()
	st := Status{SignedIn: s.user != nil, Realtime: RealtimeDisabled, Polling: []string{}}
	if s.user != nil {
		st.UserID = s.user.ID
	}
	channel, presence := s.channel, s.presence
	for peer := range s.conversations {
		if s.poller.IsPolling(peer) {
			st.Polling = append(st.Polling, peer)
		}
	}
	s.mu.RUnlock()

	if channel != nil {
		st.Realtime = channel.State().String()
	}
	if presence != nil {
		st.OnlineUsers = len(presence.OnlineUsers())
	}
	slices.Sort(st.Polling)
	st.Unread = s.badge.Counts()
	st.Flags = s.flags.Snapshot(st.UserID)
	return st
}

// IsPolling reports whether peerID is being polled.
func (s *Session) IsPolling(peerID string) bool { return s.poller.IsPolling(peerID) }

// User returns the signed-in user.
func (s *Session) User() (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// API returns the REST client authenticated with this session.
func (s *Session) API() *api.Client { return s.client }

// Badge returns the unread badge.
func (s *Session) Badge() *Badge { return s.badge }

// Channel returns the realtime channel, or nil when it is disabled or the
// session is signed out.
func (s *Session) Channel() *realtime.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// Notifications returns the notification engine.
func (s *Session) Notifications() *notifications.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifications
}

// Paginator returns the notification list paginator.
func (s *Session) Paginator() *notifications.Paginator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paginator
}

// Unread returns the message unread counter.
func (s *Session) Unread() *messaging.UnreadCounter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Presence returns the online-user tracker.
func (s *Session) Presence() *realtime.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence
}

// Interactions returns the post interaction orchestrator.
func (s *Session) Interactions() *interactions.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interactions
}

// Searches returns the recent-search list.
func (s *Session) Searches() *search.Recent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searches
}

func (s *Session) emit(n models.Notice) {
	if s.notify != nil {
		s.notify(n)
	}
}
