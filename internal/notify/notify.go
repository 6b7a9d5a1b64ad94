// Package notify delivers operator notifications.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// Message is a plain-text notification.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Notifier sends notifications.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP transport settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      string // none, opportunistic, mandatory
}

// SMTP sends notifications through an SMTP relay.
type SMTP struct {
	client *mail.Client
}

// NewSMTP creates an SMTP notifier. No connection is made until Send.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	policy, err := tlsPolicy(cfg.TLS)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 25
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(policy),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return &SMTP{client: client}, nil
}

func tlsPolicy(s string) (mail.TLSPolicy, error) {
	switch strings.ToLower(s) {
	case "", "opportunistic":
		return mail.TLSOpportunistic, nil
	case "mandatory", "required":
		return mail.TLSMandatory, nil
	case "none", "off":
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("unknown mail tls policy %q", s)
	}
}

// Send implements Notifier.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m, err := buildMessage(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

func buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

// LogOnly is used when mail is disabled; it records the notification in the
// log instead of sending it.
type LogOnly struct {
	Logger *zap.Logger
}

// Send implements Notifier.
func (l LogOnly) Send(ctx context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("mail disabled, notification not sent",
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
