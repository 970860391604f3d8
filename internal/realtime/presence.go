package realtime

import (
	"encoding/json"
	"slices"
	"sync"
)

// Presence tracks which users the server reports as online.
type Presence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewPresence returns an empty tracker.
func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

// Attach subscribes the tracker to presence events and returns a func that
// removes every subscription.
func (p *Presence) Attach(sub Subscriber) func() {
	unsubs := []func(){
		sub.On(EventUserOnline, func(raw json.RawMessage) { p.set(userIDOf(raw), true) }),
		sub.On(EventUserOffline, func(raw json.RawMessage) { p.set(userIDOf(raw), false) }),
		sub.On(EventOnlineUsers, p.replace),
		sub.On(EventDisconnect, func(json.RawMessage) { p.reset(nil) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// IsOnline reports whether userID is currently online.
func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// OnlineUsers returns the online user ids in ascending order.
func (p *Presence) OnlineUsers() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	p.mu.RUnlock()
	slices.Sort(out)
	return out
}

func (p *Presence) set(userID string, online bool) {
	if userID == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if online {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
}

// replace handles online_users_list, sent either as {"userIds":[...]} or as a bare array.
func (p *Presence) replace(raw json.RawMessage) {
	var wrapped struct {
		UserIDs []json.RawMessage `json:"userIds"`
	}
	var ids []json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		ids = wrapped.UserIDs
	} else {
		_ = json.Unmarshal(raw, &ids)
	}

	parsed := make([]string, 0, len(ids))
	for _, id := range ids {
		if s := ParseID(id); s != "" {
			parsed = append(parsed, s)
		}
	}
	p.reset(parsed)
}

func (p *Presence) reset(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		p.online[id] = struct{}{}
	}
}

func userIDOf(raw json.RawMessage) string {
	var payload struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return ParseID(payload.UserID)
}
