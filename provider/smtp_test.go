package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func newTestSMTPProvider(dialer *fakeDialer) *SMTPProvider {
	return &SMTPProvider{
		cfg: SMTPConfig{
			Host:      "smtp.test",
			Port:      587,
			FromEmail: "no-reply@church.test",
			FromName:  "Grace Chapel",
		},
		dialer: dialer,
	}
}

func TestSMTPSend(t *testing.T) {
	ctx := context.Background()

	t.Run("sends with message id header", func(t *testing.T) {
		dialer := &fakeDialer{}
		p := newTestSMTPProvider(dialer)

		res := p.Send(ctx, &OutboundMessage{
			MessageID: "m1",
			Recipient: "sam@example.com",
			Subject:   "Welcome!",
			Body:      "<p>Hi</p>",
		})

		assert.Equal(t, StatusSent, res.Status)
		require.Len(t, dialer.sent, 1)
		assert.Equal(t, []string{"m1"}, dialer.sent[0].GetHeader(MessageIDHeader))
		assert.Equal(t, []string{"sam@example.com"}, dialer.sent[0].GetHeader("To"))
		assert.Equal(t, []string{"Grace Chapel <no-reply@church.test>"}, dialer.sent[0].GetHeader("From"))
	})

	t.Run("dial failure becomes a failed result, not an error", func(t *testing.T) {
		dialer := &fakeDialer{err: fmt.Errorf("connection refused")}
		p := newTestSMTPProvider(dialer)

		res := p.Send(ctx, &OutboundMessage{MessageID: "m2", Recipient: "sam@example.com"})

		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.ErrorMessage, "connection refused")
	})
}

func TestSMTPValidateConfig(t *testing.T) {
	assert.True(t, newTestSMTPProvider(&fakeDialer{}).ValidateConfig())
	assert.False(t, (&SMTPProvider{cfg: SMTPConfig{Port: 587}}).ValidateConfig())
}
