package worker

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"churchpilot/models"
	"churchpilot/provider"
	"churchpilot/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Church{},
		&models.Member{},
		&models.Visitor{},
		&models.PrayerRequest{},
		&models.MessageTemplate{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.SequenceEnrollment{},
		&models.SequenceMessage{},
		&models.SequenceAnalytics{},
		&models.CommunicationPreference{},
		&models.Unsubscribe{},
	))
	return db
}

// fakeProvider is a controllable email transport for processor tests
type fakeProvider struct {
	sent []*provider.OutboundMessage
	fail bool
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) Channel() string      { return provider.ChannelEmail }
func (p *fakeProvider) ValidateConfig() bool { return true }
func (p *fakeProvider) Send(ctx context.Context, msg *provider.OutboundMessage) *provider.SendResult {
	if p.fail {
		return &provider.SendResult{Status: provider.StatusFailed, ErrorMessage: "transport down"}
	}
	p.sent = append(p.sent, msg)
	return &provider.SendResult{Status: provider.StatusSent, ExternalID: "ext-" + msg.MessageID}
}

type fixture struct {
	db        *gorm.DB
	church    *models.Church
	sequence  *models.Sequence
	transport *fakeProvider
	processor *SequenceProcessor
}

// newFixture builds a church with one active two-step email sequence
// (delays 0 and 60 minutes) and a processor wired to a fake transport
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	logger := log.New(io.Discard, "", 0)

	church := models.Church{Name: "Grace Chapel", Subdomain: "grace", IsActive: true}
	require.NoError(t, db.Create(&church).Error)

	template := models.MessageTemplate{
		ChurchID: church.ID,
		Name:     "welcome",
		Channel:  models.ChannelEmail,
		Subject:  "Hello {{first_name}}",
		Content:  "<p>Hi {{first_name}}, welcome to {{church_name}}!</p>",
	}
	require.NoError(t, db.Create(&template).Error)

	sequence := models.Sequence{ChurchID: church.ID, CreatedByUserID: 1, Name: "visitor followup", IsActive: true}
	require.NoError(t, db.Create(&sequence).Error)

	for i, delay := range []int{0, 60} {
		require.NoError(t, db.Create(&models.SequenceStep{
			SequenceID:   sequence.ID,
			TemplateID:   template.ID,
			StepOrder:    i + 1,
			Channel:      models.ChannelEmail,
			DelayMinutes: delay,
			IsActive:     true,
		}).Error)
	}

	transport := &fakeProvider{}
	registry := provider.NewRegistry(provider.NewMemoryRateLimiter(100, 100), logger)
	require.NoError(t, registry.Register(transport, true))

	processor := NewSequenceProcessor(db, registry, logger, ProcessorOptions{
		Interval:      time.Minute,
		BatchSize:     50,
		MaxRetries:    3,
		RetryCooldown: time.Nanosecond,
		AppURL:        "http://app.test",
		Secret:        []byte("secret"),
	})

	return &fixture{db: db, church: &church, sequence: &sequence, transport: transport, processor: processor}
}

func (f *fixture) enrollDue(t *testing.T, email string) *models.SequenceEnrollment {
	t.Helper()
	member := models.Member{ChurchID: f.church.ID, FirstName: "Sam", Email: email}
	require.NoError(t, f.db.Create(&member).Error)

	enrollment := models.SequenceEnrollment{
		ChurchID:   f.church.ID,
		SequenceID: f.sequence.ID,
		MemberID:   &member.ID,
		Status:     models.EnrollmentStatusActive,
		NextSendAt: utils.Pointer(time.Now().Add(-time.Minute)),
	}
	require.NoError(t, f.db.Create(&enrollment).Error)
	return &enrollment
}

func (f *fixture) reload(t *testing.T, enrollment *models.SequenceEnrollment) *models.SequenceEnrollment {
	t.Helper()
	var fresh models.SequenceEnrollment
	require.NoError(t, f.db.First(&fresh, enrollment.ID).Error)
	return &fresh
}

func TestProcessChurchSendsDueStep(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enrollDue(t, "sam@example.com")

	result, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "sam@example.com", f.transport.sent[0].Recipient)
	assert.Equal(t, "Hello Sam", f.transport.sent[0].Subject)
	assert.Contains(t, f.transport.sent[0].Body, "Hi Sam, welcome to Grace Chapel!")
	assert.Contains(t, f.transport.sent[0].Body, "/track/open/", "tracking pixel injected into email")

	var message models.SequenceMessage
	require.NoError(t, f.db.Where("enrollment_id = ?", enrollment.ID).First(&message).Error)
	assert.Equal(t, models.MessageStatusSent, message.Status)
	assert.Equal(t, "fake", message.Provider)
	assert.NotNil(t, message.SentAt)

	fresh := f.reload(t, enrollment)
	assert.Equal(t, 1, fresh.CurrentStep)
	require.NotNil(t, fresh.NextSendAt)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), *fresh.NextSendAt, 10*time.Second)
}

func TestProcessChurchCompletesAfterLastStep(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enrollDue(t, "sam@example.com")

	// Step 1
	_, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)

	// Make step 2 due and run again
	require.NoError(t, f.db.Model(enrollment).Update("next_send_at", time.Now().Add(-time.Minute)).Error)
	result, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	fresh := f.reload(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusCompleted, fresh.Status)
	assert.Equal(t, 2, fresh.CurrentStep)
	assert.Nil(t, fresh.NextSendAt)
	assert.NotNil(t, fresh.CompletedAt)

	// Nothing further to do
	result, err = f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Len(t, f.transport.sent, 2)
}

func TestProcessChurchRetriesThenGivesUp(t *testing.T) {
	f := newFixture(t)
	f.transport.fail = true
	enrollment := f.enrollDue(t, "sam@example.com")

	// First tick materializes and fails the send; each following tick retries
	// the swept message and fails again
	for i := 0; i < 5; i++ {
		_, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // let failed_at pass the cooldown
	}

	var message models.SequenceMessage
	require.NoError(t, f.db.Where("enrollment_id = ?", enrollment.ID).First(&message).Error)
	assert.Equal(t, models.MessageStatusFailed, message.Status)
	assert.Equal(t, 3, message.RetryCount, "retries stop at the maximum")
	assert.Equal(t, "transport down", message.ErrorMessage)
}

func TestProcessChurchRecoversOnRetry(t *testing.T) {
	f := newFixture(t)
	f.transport.fail = true
	enrollment := f.enrollDue(t, "sam@example.com")

	_, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	f.transport.fail = false
	result, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	var message models.SequenceMessage
	require.NoError(t, f.db.Where("enrollment_id = ?", enrollment.ID).First(&message).Error)
	assert.Equal(t, models.MessageStatusSent, message.Status)
	assert.Equal(t, 1, message.RetryCount)
}

func TestProcessChurchCancelsUnsubscribedEnrollment(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enrollDue(t, "gone@example.com")

	require.NoError(t, f.db.Create(&models.CommunicationPreference{
		ChurchID:          f.church.ID,
		MemberID:          enrollment.MemberID,
		Email:             "gone@example.com",
		GlobalUnsubscribe: true,
	}).Error)

	_, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)

	fresh := f.reload(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusCancelled, fresh.Status)
	assert.Nil(t, fresh.NextSendAt)
	assert.Empty(t, f.transport.sent, "unsubscribed contact is never messaged")
}

func TestProcessChurchSkipsUnmetStepConditions(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&models.SequenceStep{}).
		Where("sequence_id = ? AND step_order = ?", f.sequence.ID, 1).
		Update("send_conditions", `{"wants_call": "yes"}`).Error)

	enrollment := f.enrollDue(t, "sam@example.com")

	result, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	var message models.SequenceMessage
	require.NoError(t, f.db.Where("enrollment_id = ?", enrollment.ID).First(&message).Error)

	var step models.SequenceStep
	require.NoError(t, f.db.First(&step, message.StepID).Error)
	assert.Equal(t, 2, step.StepOrder, "unmet condition skips to the next step")

	fresh := f.reload(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusCompleted, fresh.Status, "skipped step 1, sent final step 2")
}

func TestProcessChurchHoldsDeactivatedSequence(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enrollDue(t, "sam@example.com")

	require.NoError(t, f.db.Model(f.sequence).Update("is_active", false).Error)

	result, err := f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, f.transport.sent, "deactivated sequence never dispatches")

	var count int64
	f.db.Model(&models.SequenceMessage{}).Where("enrollment_id = ?", enrollment.ID).Count(&count)
	assert.Zero(t, count, "no message materialized while deactivated")

	fresh := f.reload(t, enrollment)
	assert.Equal(t, models.EnrollmentStatusActive, fresh.Status)
	assert.Equal(t, 0, fresh.CurrentStep)

	// Reactivating lets the held enrollment proceed from where it stopped
	require.NoError(t, f.db.Model(f.sequence).Update("is_active", true).Error)
	result, err = f.processor.ProcessChurch(context.Background(), f.church.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Len(t, f.transport.sent, 1)
}

func TestProcessChurchRespectsRateLimit(t *testing.T) {
	db := newTestDB(t)
	logger := log.New(io.Discard, "", 0)

	church := models.Church{Name: "Grace Chapel", Subdomain: "grace", IsActive: true}
	require.NoError(t, db.Create(&church).Error)
	template := models.MessageTemplate{ChurchID: church.ID, Name: "t", Channel: models.ChannelEmail, Subject: "s", Content: "c"}
	require.NoError(t, db.Create(&template).Error)
	sequence := models.Sequence{ChurchID: church.ID, CreatedByUserID: 1, Name: "seq", IsActive: true}
	require.NoError(t, db.Create(&sequence).Error)
	require.NoError(t, db.Create(&models.SequenceStep{
		SequenceID: sequence.ID, TemplateID: template.ID, StepOrder: 1,
		Channel: models.ChannelEmail, IsActive: true,
	}).Error)

	transport := &fakeProvider{}
	registry := provider.NewRegistry(provider.NewMemoryRateLimiter(1, 1), logger)
	require.NoError(t, registry.Register(transport, true))
	processor := NewSequenceProcessor(db, registry, logger, ProcessorOptions{Secret: []byte("s")})

	// Two due enrollments for the same recipient address
	for i := 0; i < 2; i++ {
		member := models.Member{ChurchID: church.ID, FirstName: "Sam", Email: "same@example.com"}
		require.NoError(t, db.Create(&member).Error)
		require.NoError(t, db.Create(&models.SequenceEnrollment{
			ChurchID: church.ID, SequenceID: sequence.ID, MemberID: &member.ID,
			Status: models.EnrollmentStatusActive, NextSendAt: utils.Pointer(time.Now().Add(-time.Minute)),
		}).Error)
	}

	result, err := processor.ProcessChurch(context.Background(), church.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, transport.sent, 1, "over-budget message never reached the transport")
}

func TestProcessorStartStop(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.processor.Status().IsRunning)

	f.processor.Start(context.Background())
	assert.True(t, f.processor.Status().IsRunning)

	// Second Start is a no-op
	f.processor.Start(context.Background())
	assert.True(t, f.processor.Status().IsRunning)

	f.processor.Stop()
	assert.False(t, f.processor.Status().IsRunning)

	// Stop when already stopped is safe
	f.processor.Stop()
}

func TestProcessChurchUnknownChurch(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor.ProcessChurch(context.Background(), 9999)
	assert.Error(t, err)
}
