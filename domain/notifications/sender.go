package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailgun/mailgun-go/v4"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// Sender delivers a rendered notification.
type Sender interface {
	Send(ctx context.Context, opts SendOptions) (*SendResult, error)
}

// SendOptions contains options for sending a notification email.
type SendOptions struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// SendResult contains the result of a send.
type SendResult struct {
	MessageID string
}

// MailgunSender delivers via the Mailgun API.
type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	cfg  *config.EmailConfig
	log  *slog.Logger
	from string
}

// NewMailgunSender creates a Mailgun-backed sender.
func NewMailgunSender(cfg *config.Config, log *slog.Logger) *MailgunSender {
	mg := mailgun.NewMailgun(cfg.Email.MailgunDomain, cfg.Email.MailgunAPIKey)
	return &MailgunSender{
		mg:   mg,
		cfg:  &cfg.Email,
		log:  log.With(logger.Scope("notifications.mailgun")),
		from: cfg.Email.FromName + " <" + cfg.Email.FromEmail + ">",
	}
}

// Send delivers one message.
func (s *MailgunSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	message := mailgun.NewMessage(s.from, opts.Subject, opts.Text, opts.To)
	if opts.HTML != "" {
		message.SetHTML(opts.HTML)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, id, err := s.mg.Send(ctx, message)
	if err != nil {
		return nil, err
	}
	return &SendResult{MessageID: id}, nil
}

// noOpSender logs instead of sending; used when Mailgun is not
// configured.
type noOpSender struct {
	log *slog.Logger
}

func (s *noOpSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.log.Info("notification send (no-op)",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject),
	)
	return &SendResult{MessageID: "noop-" + opts.To}, nil
}

// NewSender picks Mailgun when configured, otherwise the no-op sender.
func NewSender(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.Email.Enabled && cfg.Email.IsConfigured() {
		log.Info("using Mailgun sender",
			slog.String("domain", cfg.Email.MailgunDomain),
			slog.String("from", cfg.Email.FromEmail),
		)
		return NewMailgunSender(cfg, log)
	}
	log.Info("using no-op notification sender")
	return &noOpSender{log: log.With(logger.Scope("notifications.noop"))}
}
