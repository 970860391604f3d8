// Package realtime maintains the authenticated live event channel of a session.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"feedsync/internal/observability"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	// Time allowed for one websocket handshake.
	handshakeTimeout = 10 * time.Second

	sendBuffer = 256
)

// State is the lifecycle state of the channel.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configure a Channel.
type Options struct {
	URL string

	// Reconnect policy. Zero values use the backoff library defaults;
	// MaxElapsed of zero retries until Disconnect.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration

	Dialer *websocket.Dialer
}

// Channel is one live connection per session. It reconnects with exponential
// backoff after transport failures and gives up on authentication failures.
type Channel struct {
	opts   Options
	dialer *websocket.Dialer
	logger *observability.WSLogger

	mu            sync.Mutex
	state         State
	cancel        context.CancelFunc
	done          chan struct{}
	nextID        uint64
	handlers      map[string]map[uint64]Handler
	stateHandlers map[uint64]func(State)

	send chan []byte
}

// NewChannel creates a disconnected Channel.
func NewChannel(opts Options) *Channel {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}
	return &Channel{
		opts:          opts,
		dialer:        dialer,
		logger:        observability.NewWSLogger("session"),
		handlers:      make(map[string]map[uint64]Handler),
		stateHandlers: make(map[uint64]func(State)),
		send:          make(chan []byte, sendBuffer),
	}
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the channel with token as the session credential and waits
// for the first outcome. ctx bounds only the wait; the connection itself lives
// until Disconnect. Connect is a no-op while connecting or connected.
func (c *Channel) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrUnauthorized
	}

	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		// Left over from a session that ended on its own.
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.setState(Connecting)

	first := make(chan error, 1)
	go c.supervise(runCtx, token, first, done)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the connection, stops reconnecting and releases every
// listener. It is safe to call more than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(Disconnected)

	c.mu.Lock()
	c.handlers = make(map[string]map[uint64]Handler)
	c.stateHandlers = make(map[uint64]func(State))
	c.mu.Unlock()

	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// On registers handler for event and returns a func that removes it.
// Handlers run on the reader goroutine and must not call Disconnect.
func (c *Channel) On(event string, handler Handler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = handler
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.handlers[event], id)
			c.mu.Unlock()
		})
	}
}

// OnStateChange registers fn for state transitions and returns a func that removes it.
func (c *Channel) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.stateHandlers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateHandlers, id)
		c.mu.Unlock()
	}
}

// Emit queues an outbound frame. Frames queued while reconnecting are sent once
// the connection is back; when the buffer is full the frame is dropped.
func (c *Channel) Emit(event string, payload any) error {
	if c.State() == Disconnected {
		return ErrNotConnected
	}

	frame := Frame{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", event, err)
		}
		frame.Payload = raw
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	select {
	case c.send <- data:
		return nil
	default:
		observability.RealtimeSendDrops.Inc()
		return fmt.Errorf("realtime: send buffer full, dropped %s", event)
	}
}

// JoinRoom asks the server to subscribe this session to a room.
func (c *Channel) JoinRoom(roomID string) error {
	return c.Emit(EventJoinRoom, roomPayload{RoomID: roomID})
}

// LeaveRoom asks the server to unsubscribe this session from a room.
func (c *Channel) LeaveRoom(roomID string) error {
	return c.Emit(EventLeaveRoom, roomPayload{RoomID: roomID})
}

func (c *Channel) supervise(ctx context.Context, token string, first chan<- error, done chan struct{}) {
	defer close(done)

	reported := false
	report := func(err error) {
		if !reported {
			reported = true
			first <- err
		}
	}

	attempt := 0
	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			attempt++
			conn, err := c.dial(ctx, token)
			if errors.Is(err, ErrUnauthorized) {
				return nil, backoff.Permanent(err)
			}
			return conn, err
		}, c.retryOptions()...)
		if err != nil {
			c.setState(Disconnected)
			if errors.Is(err, ErrUnauthorized) {
				c.logger.LogLifecycle(ctx, EventAuthError, map[string]interface{}{"attempt": attempt})
				c.dispatch(EventAuthError, nil)
			} else {
				c.logger.LogDisconnect(ctx, err.Error())
			}
			report(err)
			return
		}

		c.setState(Connected)
		c.logger.LogConnect(ctx, c.opts.URL, attempt)
		c.dispatch(EventConnect, nil)
		report(nil)
		attempt = 0

		reason := c.serve(ctx, conn)

		switch {
		case ctx.Err() != nil:
			c.setState(Disconnected)
			c.logger.LogDisconnect(ctx, "closed by client")
			c.dispatch(EventDisconnect, nil)
			return
		case errors.Is(reason, ErrUnauthorized):
			c.setState(Disconnected)
			c.logger.LogLifecycle(ctx, EventAuthError, nil)
			c.dispatch(EventDisconnect, nil)
			c.dispatch(EventAuthError, nil)
			return
		default:
			c.setState(Connecting)
			c.logger.LogDisconnect(ctx, reason.Error())
			c.dispatch(EventDisconnect, nil)
		}
	}
}

func (c *Channel) retryOptions() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if c.opts.InitialInterval > 0 {
		b.InitialInterval = c.opts.InitialInterval
	}
	if c.opts.MaxInterval > 0 {
		b.MaxInterval = c.opts.MaxInterval
	}

	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.opts.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.LogLifecycle(context.Background(), "retry", map[string]interface{}{
				"error":   err.Error(),
				"next_in": next.String(),
			})
		}),
	}
}

func (c *Channel) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		observability.RealtimeDialAttempts.WithLabelValues("invalid_url").Inc()
		return nil, backoff.Permanent(fmt.Errorf("parse realtime url: %w", err))
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			observability.RealtimeDialAttempts.WithLabelValues("unauthorized").Inc()
			return nil, ErrUnauthorized
		}
		observability.RealtimeDialAttempts.WithLabelValues("error").Inc()
		c.logger.LogError(ctx, err, "dial")
		return nil, err
	}
	observability.RealtimeDialAttempts.WithLabelValues("connected").Inc()
	return conn, nil
}

// serve pumps one connection until it fails or ctx is cancelled.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readPump(ctx, conn) }()

	writeDone := make(chan struct{})
	go func() {
		c.writePump(connCtx, conn)
		close(writeDone)
	}()

	var err error
	select {
	case err = <-readErr:
		cancel()
		<-writeDone
		_ = conn.Close()
	case <-ctx.Done():
		<-writeDone
		_ = conn.Close()
		// Wait for the reader so no handler runs after Disconnect returns.
		<-readErr
		err = ctx.Err()
	}
	return err
}

func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.LogError(ctx, err, "read")
			}
			return err
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.LogError(ctx, fmt.Errorf("decode frame: %w", err), "decode")
			continue
		}
		if frame.Type == "" {
			c.logger.LogError(ctx, errors.New("frame without type"), "decode")
			continue
		}

		observability.RealtimeEventsTotal.WithLabelValues(frame.Type).Inc()
		c.logger.LogMessage(ctx, frame.Type)

		if frame.Type == EventAuthError {
			return ErrUnauthorized
		}
		c.dispatch(frame.Type, frame.Payload)
	}
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.LogError(ctx, err, "write")
				_ = conn.Close()
				<-ctx.Done()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				<-ctx.Done()
				return
			}
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(State), 0, len(c.stateHandlers))
	for _, fn := range c.stateHandlers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	observability.RealtimeState.Set(float64(s))
	for _, fn := range fns {
		c.safeCall("state", func() { fn(s) })
	}
}

func (c *Channel) dispatch(event string, payload json.RawMessage) {
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()

	for _, h := range hs {
		c.safeCall(event, func() { h(payload) })
	}
}

func (c *Channel) safeCall(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.LogError(context.Background(), fmt.Errorf("handler panic: %v", r), event)
		}
	}()
	fn()
}
