package delivery

import (
	"context"
	"sort"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	gocache "github.com/patrickmn/go-cache"
)

// Message is what Outbox retains per destination.
type Message struct {
	Channel     goIdentity.Channel
	Destination string
	Subject     string
	Body        string
	SentAt      time.Time
}

// Outbox keeps the most recent message per (channel, destination) for ttl.
// It never fails and is meant for development and tests only.
type Outbox struct {
	c *gocache.Cache
}

func NewOutbox(ttl time.Duration) *Outbox {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Outbox{c: gocache.New(ttl, time.Minute)}
}

func (o *Outbox) Send(ctx context.Context, channel goIdentity.Channel, destination, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.c.SetDefault(outboxKey(channel, destination), Message{
		Channel:     channel,
		Destination: destination,
		Subject:     subject,
		Body:        body,
		SentAt:      time.Now().UTC(),
	})
	return nil
}

// Last returns the newest message sent to destination over channel.
func (o *Outbox) Last(channel goIdentity.Channel, destination string) (Message, bool) {
	v, ok := o.c.Get(outboxKey(channel, destination))
	if !ok {
		return Message{}, false
	}
	m, ok := v.(Message)
	return m, ok
}

// Messages returns every retained message, oldest first.
func (o *Outbox) Messages() []Message {
	items := o.c.Items()
	out := make([]Message, 0, len(items))
	for _, item := range items {
		if m, ok := item.Object.(Message); ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out
}

func (o *Outbox) Flush() {
	o.c.Flush()
}

func outboxKey(channel goIdentity.Channel, destination string) string {
	return string(channel) + "|" + destination
}
