package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/go-mail/mail"
	"go.uber.org/zap"
)

// SMTPConfig describes the outgoing mail server.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	TLSMode            string // "auto" | "ssl" | "none"
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// SMTP delivers ChannelEmail messages as plain-text mail.
type SMTP struct {
	cfg    SMTPConfig
	logger *zap.Logger

	// send is replaced in tests.
	send func(m *mail.Message, timeout time.Duration) error
}

func NewSMTP(cfg SMTPConfig, logger *zap.Logger) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp: host and port are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp: from address is required")
	}
	switch cfg.TLSMode {
	case "":
		cfg.TLSMode = "auto"
	case "auto", "ssl", "none":
	default:
		return nil, fmt.Errorf("smtp: unknown tls mode %q", cfg.TLSMode)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SMTP{cfg: cfg, logger: logger.With(zap.String("component", "smtp"), zap.String("host", cfg.Host))}
	s.send = s.dialAndSend
	return s, nil
}

func (s *SMTP) Send(ctx context.Context, channel goIdentity.Channel, destination, subject, body string) error {
	if channel != goIdentity.ChannelEmail {
		return fmt.Errorf("%w: smtp cannot deliver channel %q", goIdentity.ErrDeliveryFailure, channel)
	}
	if destination == "" {
		return fmt.Errorf("%w: empty destination", goIdentity.ErrDeliveryFailure)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", goIdentity.ErrDeliveryFailure, err)
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	timeout := s.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %w", goIdentity.ErrDeliveryFailure, context.DeadlineExceeded)
	}

	if err := s.send(m, timeout); err != nil {
		s.logger.Warn("smtp send failed", zap.Error(err))
		return fmt.Errorf("%w: smtp send: %v", goIdentity.ErrDeliveryFailure, err)
	}
	s.logger.Debug("email sent")
	return nil
}

func (s *SMTP) dialAndSend(m *mail.Message, timeout time.Duration) error {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.Timeout = timeout
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify,
	}

	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	}
	return d.DialAndSend(m)
}
