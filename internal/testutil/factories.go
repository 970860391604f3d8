package testutil

import (
	"fmt"
	"time"

	"feedsync/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds domain fixtures from a seeded faker so runs are reproducible.
type Factory struct {
	faker *gofakeit.Faker
	base  time.Time
	seq   int
}

// NewFactory returns a Factory seeded with seed. Timestamps count down from a
// fixed base so ordering assertions are stable.
func NewFactory(seed int64) *Factory {
	return &Factory{
		faker: gofakeit.New(seed),
		base:  time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
}

func (f *Factory) next() int {
	f.seq++
	return f.seq
}

// User builds a user with a unique id.
func (f *Factory) User(overrides ...func(*models.User)) models.User {
	n := f.next()
	u := models.User{
		ID:          fmt.Sprintf("user-%d", n),
		Username:    fmt.Sprintf("%s%d", f.faker.Username(), n),
		DisplayName: f.faker.Name(),
		Avatar:      fmt.Sprintf("https://picsum.photos/seed/%s/96/96", f.faker.UUID()),
		Bio:         f.faker.Sentence(8),
	}
	for _, o := range overrides {
		o(&u)
	}
	return u
}

// Notification builds an unread notification. Each call is one minute older
// than the previous one.
func (f *Factory) Notification(overrides ...func(*models.Notification)) models.Notification {
	n := f.next()
	sender := f.User()
	types := []string{"like", "comment", "follow", "amplify", "quote", "mention"}
	notif := models.Notification{
		ID:        fmt.Sprintf("notif-%d", n),
		Type:      models.NotificationType(f.faker.RandomString(types)),
		Sender:    sender.Ref(),
		PostID:    fmt.Sprintf("post-%d", f.faker.Number(1, 9999)),
		Message:   f.faker.Sentence(6),
		CreatedAt: f.base.Add(-time.Duration(n) * time.Minute),
	}
	for _, o := range overrides {
		o(&notif)
	}
	return notif
}

// Notifications builds count notifications, newest first.
func (f *Factory) Notifications(count int) []models.Notification {
	out := make([]models.Notification, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, f.Notification())
	}
	return out
}

// Message builds a confirmed message from sender to recipient. Each call is
// one second newer than the previous one.
func (f *Factory) Message(sender, recipient string, overrides ...func(*models.Message)) models.Message {
	n := f.next()
	m := models.Message{
		ID:          fmt.Sprintf("msg-%d", n),
		SenderID:    sender,
		RecipientID: recipient,
		Content:     f.faker.Sentence(10),
		CreatedAt:   f.base.Add(time.Duration(n) * time.Second),
	}
	for _, o := range overrides {
		o(&m)
	}
	return m
}

// Conversation builds count messages alternating between a and b, oldest first.
func (f *Factory) Conversation(a, b string, count int) []models.Message {
	out := make([]models.Message, 0, count)
	for i := 0; i < count; i++ {
		if i%2 == 0 {
			out = append(out, f.Message(a, b))
		} else {
			out = append(out, f.Message(b, a))
		}
	}
	return out
}

// Post builds a post authored by authorID with no reactions.
func (f *Factory) Post(authorID string, overrides ...func(*models.Post)) models.Post {
	n := f.next()
	p := models.Post{
		ID:        fmt.Sprintf("post-%d", n),
		AuthorID:  authorID,
		Content:   f.faker.Paragraph(1, 2, 8, " "),
		CreatedAt: f.base.Add(-time.Duration(n) * time.Hour),
	}
	for _, o := range overrides {
		o(&p)
	}
	return p
}
