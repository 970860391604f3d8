package session

import "sync"

// Counts is a snapshot of the unread badge.
type Counts struct {
	Notifications int `json:"notifications"`
	Messages      int `json:"messages"`
}

// Total is the number shown on the app badge.
func (c Counts) Total() int { return c.Notifications + c.Messages }

// Badge mirrors the unread counters of the notification engine and the
// message counter. The engines own the numbers; Badge only displays them.
type Badge struct {
	mu       sync.Mutex
	counts   Counts
	onChange func(Counts)
}

// NewBadge returns a Badge that calls onChange after every update. onChange
// may be nil.
func NewBadge(onChange func(Counts)) *Badge {
	return &Badge{onChange: onChange}
}

// SetNotificationUnread updates the notification count.
func (b *Badge) SetNotificationUnread(count int) {
	b.set(func(c *Counts) { c.Notifications = count })
}

// SetMessageUnread updates the message count.
func (b *Badge) SetMessageUnread(count int) {
	b.set(func(c *Counts) { c.Messages = count })
}

// Counts returns the current counts.
func (b *Badge) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

func (b *Badge) reset() {
	b.set(func(c *Counts) { *c = Counts{} })
}

func (b *Badge) set(fn func(*Counts)) {
	b.mu.Lock()
	prev := b.counts
	fn(&b.counts)
	next := b.counts
	b.mu.Unlock()

	if next != prev && b.onChange != nil {
		b.onChange(next)
	}
}
