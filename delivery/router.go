package delivery

import (
	"context"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// Router sends each message through the dispatcher registered for its
// channel.
type Router map[goIdentity.Channel]goIdentity.Dispatcher

func (r Router) Send(ctx context.Context, channel goIdentity.Channel, destination, subject, body string) error {
	d, ok := r[channel]
	if !ok || d == nil {
		return fmt.Errorf("%w: no dispatcher for channel %q", goIdentity.ErrDeliveryFailure, channel)
	}
	return d.Send(ctx, channel, destination, subject, body)
}
