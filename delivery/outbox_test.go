package delivery

import (
	"context"
	"testing"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func TestOutboxKeepsLatestPerDestination(t *testing.T) {
	o := NewOutbox(time.Minute)
	ctx := context.Background()

	_ = o.Send(ctx, goIdentity.ChannelEmail, "alice@example.com", "s", "first")
	_ = o.Send(ctx, goIdentity.ChannelEmail, "alice@example.com", "s", "second")
	_ = o.Send(ctx, goIdentity.ChannelEmail, "bob@example.com", "s", "other")

	m, ok := o.Last(goIdentity.ChannelEmail, "alice@example.com")
	if !ok || m.Body != "second" {
		t.Fatalf("expected latest message, got %+v %v", m, ok)
	}
	if n := len(o.Messages()); n != 2 {
		t.Fatalf("expected 2 retained messages, got %d", n)
	}

	o.Flush()
	if _, ok := o.Last(goIdentity.ChannelEmail, "alice@example.com"); ok {
		t.Fatal("expected empty outbox after Flush")
	}
}

func TestOutboxExpires(t *testing.T) {
	o := NewOutbox(20 * time.Millisecond)
	_ = o.Send(context.Background(), goIdentity.ChannelSMS, "+15550001234", "", "b")

	time.Sleep(40 * time.Millisecond)
	if _, ok := o.Last(goIdentity.ChannelSMS, "+15550001234"); ok {
		t.Fatal("expected message to expire")
	}
}

func TestOutboxWithEngine(t *testing.T) {
	var _ goIdentity.Dispatcher = (*Outbox)(nil)
	var _ goIdentity.Dispatcher = (*SMTP)(nil)
	var _ goIdentity.Dispatcher = (*SMSGateway)(nil)
	var _ goIdentity.Dispatcher = Router(nil)
}
