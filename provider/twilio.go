package provider

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var phoneDigitsRe = regexp.MustCompile(`[^0-9+]`)

// TwilioConfig is the explicit configuration a Twilio adapter is built from
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// Delay between parts of a multipart message; keeps parts arriving in order
	PartDelay time.Duration
}

// smsSender is the slice of the Twilio REST API the adapter needs; tests
// substitute a fake
type smsSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioProvider delivers SMS through the Twilio REST API. Long bodies are
// split client-side into (i/n)-marked parts sent sequentially; the message
// counts as sent only when every part goes through.
type TwilioProvider struct {
	cfg    TwilioConfig
	client smsSender
}

func NewTwilioProvider(cfg TwilioConfig) *TwilioProvider {
	if cfg.PartDelay == 0 {
		cfg.PartDelay = 500 * time.Millisecond
	}
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioProvider{cfg: cfg, client: rest.Api}
}

func (p *TwilioProvider) Name() string    { return "twilio" }
func (p *TwilioProvider) Channel() string { return ChannelSMS }

func (p *TwilioProvider) ValidateConfig() bool {
	return p.cfg.AccountSID != "" && p.cfg.AuthToken != "" && p.cfg.FromNumber != ""
}

func (p *TwilioProvider) Send(ctx context.Context, msg *OutboundMessage) *SendResult {
	to := phoneDigitsRe.ReplaceAllString(msg.Recipient, "")
	if len(to) < 6 {
		return &SendResult{
			Status:       StatusFailed,
			ErrorMessage: fmt.Sprintf("invalid phone number %q", msg.Recipient),
		}
	}

	parts := SplitSMSBody(msg.Body)
	var lastSID string

	for i, part := range parts {
		body := part
		if len(parts) > 1 {
			body = fmt.Sprintf("(%d/%d) %s", i+1, len(parts), part)
		}

		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(p.cfg.FromNumber)
		params.SetBody(body)

		resp, err := p.client.CreateMessage(params)
		if err != nil {
			return &SendResult{
				Status:       StatusFailed,
				ErrorMessage: fmt.Sprintf("part %d/%d: %v", i+1, len(parts), err),
			}
		}
		if resp.Sid != nil {
			lastSID = *resp.Sid
		}

		if i < len(parts)-1 && p.cfg.PartDelay > 0 {
			select {
			case <-time.After(p.cfg.PartDelay):
			case <-ctx.Done():
				return &SendResult{
					Status:       StatusFailed,
					ErrorMessage: fmt.Sprintf("cancelled after part %d/%d", i+1, len(parts)),
				}
			}
		}
	}

	return &SendResult{
		Status:     StatusSent,
		ExternalID: lastSID,
		Metadata:   map[string]string{"parts": fmt.Sprintf("%d", len(parts))},
	}
}
