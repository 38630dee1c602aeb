package worker

import (
	"bytes"
	"io"
	"log"
	"testing"

	"churchpilot/config"
	"churchpilot/models"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedDSN(t *testing.T, raw string) *imap.Message {
	t.Helper()
	msg := &imap.Message{}
	require.NoError(t, msg.Parse([]interface{}{"BODY[]", bytes.NewBufferString(raw)}))
	return msg
}

func TestProcessDSNRecordsHardBounce(t *testing.T) {
	db := newTestDB(t)
	logger := log.New(io.Discard, "", 0)

	church := models.Church{Name: "Grace Chapel", Subdomain: "grace", IsActive: true}
	require.NoError(t, db.Create(&church).Error)
	message := models.SequenceMessage{
		ChurchID:  church.ID,
		MessageID: "4f2d9c1a-aaaa-bbbb-cccc-000000000001",
		Channel:   models.ChannelEmail,
		Recipient: "gone@example.com",
		Status:    models.MessageStatusSent,
	}
	require.NoError(t, db.Create(&message).Error)

	bw := NewBounceWorker(db, config.BounceMailboxConfig{}, logger)

	msg := parsedDSN(t, "From: MAILER-DAEMON@mail.test\r\n"+
		"To: bounces@grace.test\r\n"+
		"Subject: Undelivered Mail Returned to Sender\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"This is the mail system at host mail.test.\r\n"+
		"\r\n"+
		"Action: failed\r\n"+
		"Status: 5.1.1\r\n"+
		"\r\n"+
		"X-Churchpilot-Message-ID: 4f2d9c1a-aaaa-bbbb-cccc-000000000001\r\n"+
		"Subject: Welcome!\r\n")

	require.NoError(t, bw.processDSN(msg))

	var fresh models.SequenceMessage
	require.NoError(t, db.First(&fresh, message.ID).Error)
	assert.Equal(t, models.MessageStatusBounced, fresh.Status)
	assert.Equal(t, "5.1.1", fresh.ErrorMessage)
	assert.NotNil(t, fresh.BouncedAt)

	var pref models.CommunicationPreference
	require.NoError(t, db.Where("church_id = ? AND email = ?", church.ID, "gone@example.com").First(&pref).Error)
	assert.False(t, pref.EmailEnabled, "hard bounce suppresses the address")
}

func TestProcessDSNIgnoresUnrelatedMail(t *testing.T) {
	db := newTestDB(t)
	bw := NewBounceWorker(db, config.BounceMailboxConfig{}, log.New(io.Discard, "", 0))

	msg := parsedDSN(t, "From: someone@example.com\r\n"+
		"Subject: Question about Sunday service\r\n"+
		"Content-Type: text/plain\r\n"+
		"\r\n"+
		"Hi, what time do doors open?\r\n")

	assert.NoError(t, bw.processDSN(msg))
}

func TestDSNMessageIDExtraction(t *testing.T) {
	dsn := "The following message could not be delivered:\n\n" +
		"X-Churchpilot-Message-ID: 4f2d9c1a-aaaa-bbbb-cccc-000000000001\n" +
		"Subject: Welcome!\n"

	match := messageIDRe.FindStringSubmatch(dsn)
	require.NotNil(t, match)
	assert.Equal(t, "4f2d9c1a-aaaa-bbbb-cccc-000000000001", match[1])

	assert.Nil(t, messageIDRe.FindStringSubmatch("an unrelated newsletter"))
}

func TestDSNStatusCodeExtraction(t *testing.T) {
	match := statusCodeRe.FindStringSubmatch("Action: failed\nStatus: 5.1.1\nDiagnostic-Code: smtp")
	require.NotNil(t, match)
	assert.Equal(t, "5.1.1", match[1])

	match = statusCodeRe.FindStringSubmatch("status: 4.4.1")
	require.NotNil(t, match)
	assert.Equal(t, "4.4.1", match[1])

	assert.Nil(t, statusCodeRe.FindStringSubmatch("no code here"))
}
