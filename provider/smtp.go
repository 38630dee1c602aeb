package provider

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// MessageIDHeader carries our message id on outbound email so DSN bounces can
// be mapped back to the originating SequenceMessage
const MessageIDHeader = "X-Churchpilot-Message-ID"

// SMTPConfig is the explicit configuration an SMTP adapter is built from.
// Provider selection is a pure function of configuration; adapters never
// probe the environment themselves.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

type smtpDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPProvider delivers email through a gomail SMTP dialer
type SMTPProvider struct {
	cfg    SMTPConfig
	dialer smtpDialer
}

func NewSMTPProvider(cfg SMTPConfig) *SMTPProvider {
	return &SMTPProvider{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (p *SMTPProvider) Name() string    { return "smtp" }
func (p *SMTPProvider) Channel() string { return ChannelEmail }

func (p *SMTPProvider) ValidateConfig() bool {
	return p.cfg.Host != "" && p.cfg.Port > 0 && p.cfg.FromEmail != ""
}

func (p *SMTPProvider) Send(ctx context.Context, msg *OutboundMessage) *SendResult {
	m := gomail.NewMessage()
	if p.cfg.FromName != "" {
		m.SetHeader("From", fmt.Sprintf("%s <%s>", p.cfg.FromName, p.cfg.FromEmail))
	} else {
		m.SetHeader("From", p.cfg.FromEmail)
	}
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader(MessageIDHeader, msg.MessageID)
	m.SetBody("text/html", msg.Body)

	if err := p.dialer.DialAndSend(m); err != nil {
		return &SendResult{
			Status:       StatusFailed,
			ErrorMessage: err.Error(),
		}
	}

	return &SendResult{
		Status:     StatusSent,
		ExternalID: msg.MessageID,
		Metadata:   map[string]string{"smtp_host": p.cfg.Host},
	}
}
