package utils

import (
	"io"
	"log"
	"testing"
	"time"

	"churchpilot/models"

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
		&models.User{},
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

func newTestLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func createTestChurch(t *testing.T, db *gorm.DB) *models.Church {
	t.Helper()
	church := models.Church{Name: "Grace Chapel", Subdomain: "grace", IsActive: true, Email: "hello@grace.test"}
	require.NoError(t, db.Create(&church).Error)
	return &church
}

func createTestMember(t *testing.T, db *gorm.DB, churchID uint, email string) *models.Member {
	t.Helper()
	member := models.Member{ChurchID: churchID, FirstName: "Sam", LastName: "Rivera", Email: email, Phone: "+15550001111"}
	require.NoError(t, db.Create(&member).Error)
	return &member
}

// createTestSequence builds an active sequence with an email template and the
// given step delays (minutes), step orders 1..n
func createTestSequence(t *testing.T, db *gorm.DB, churchID uint, stepDelays ...int) *models.Sequence {
	t.Helper()

	template := models.MessageTemplate{
		ChurchID: churchID,
		Name:     "followup",
		Channel:  models.ChannelEmail,
		Subject:  "Hello {{first_name}}",
		Content:  "<p>Hi {{first_name}}, welcome to {{church_name}}!</p>",
	}
	require.NoError(t, db.Create(&template).Error)

	sequence := models.Sequence{
		ChurchID:        churchID,
		CreatedByUserID: 1,
		Name:            "visitor followup",
		IsActive:        true,
	}
	require.NoError(t, db.Create(&sequence).Error)

	for i, delay := range stepDelays {
		step := models.SequenceStep{
			SequenceID:   sequence.ID,
			TemplateID:   template.ID,
			StepOrder:    i + 1,
			Channel:      models.ChannelEmail,
			DelayMinutes: delay,
			IsActive:     true,
		}
		require.NoError(t, db.Create(&step).Error)
	}
	return &sequence
}

func pastTime(d time.Duration) *time.Time {
	return Pointer(time.Now().Add(-d))
}
