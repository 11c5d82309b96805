package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
)

// SMSGateway posts ChannelSMS messages to an HTTP provider as
// {"to","from","body"} JSON with a bearer token.
type SMSGateway struct {
	Endpoint string
	Token    string
	From     string
	Client   *http.Client
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

func (g *SMSGateway) Send(ctx context.Context, channel goIdentity.Channel, destination, _ string, body string) error {
	if channel != goIdentity.ChannelSMS {
		return fmt.Errorf("%w: sms gateway cannot deliver channel %q", goIdentity.ErrDeliveryFailure, channel)
	}
	if g.Endpoint == "" {
		return fmt.Errorf("%w: sms endpoint not configured", goIdentity.ErrDeliveryFailure)
	}
	if destination == "" {
		return fmt.Errorf("%w: empty destination", goIdentity.ErrDeliveryFailure)
	}

	payload, err := json.Marshal(smsRequest{To: destination, From: g.From, Body: body})
	if err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrDeliveryFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrDeliveryFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	resp, err := g.client().Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", goIdentity.ErrDeliveryFailure, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: sms gateway returned %d", goIdentity.ErrDeliveryFailure, resp.StatusCode)
	}
	return nil
}

func (g *SMSGateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}
