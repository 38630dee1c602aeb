package utils

import (
	"testing"
	"time"

	"churchpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsRefreshIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	church := createTestChurch(t, db)
	sequence := createTestSequence(t, db, church.ID, 0)
	aggregator := NewAnalyticsAggregator(db, newTestLogger())

	member := createTestMember(t, db, church.ID, "stats@example.com")
	enrollment := models.SequenceEnrollment{
		ChurchID:   church.ID,
		SequenceID: sequence.ID,
		MemberID:   &member.ID,
		Status:     models.EnrollmentStatusActive,
	}
	require.NoError(t, db.Create(&enrollment).Error)

	message := models.SequenceMessage{
		ChurchID:     church.ID,
		EnrollmentID: enrollment.ID,
		SequenceID:   sequence.ID,
		MessageID:    "msg-1",
		Channel:      models.ChannelEmail,
		Recipient:    member.Email,
		Status:       models.MessageStatusSent,
		ScheduledFor: time.Now(),
		SentAt:       pastTime(time.Minute),
	}
	require.NoError(t, db.Create(&message).Error)

	require.NoError(t, aggregator.RefreshChurchToday(church.ID))
	require.NoError(t, aggregator.RefreshChurchToday(church.ID))

	var rows []models.SequenceAnalytics
	require.NoError(t, db.Where("sequence_id = ?", sequence.ID).Find(&rows).Error)
	require.Len(t, rows, 1, "repeated refreshes must upsert a single daily row")

	assert.Equal(t, time.Now().Format("2006-01-02"), rows[0].Day)
	assert.Equal(t, 1, rows[0].EnrolledCount)
	assert.Equal(t, 1, rows[0].SentCount)
	assert.Equal(t, 0, rows[0].OpenedCount)
}

func TestAnalyticsRefreshPicksUpNewEvents(t *testing.T) {
	db := newTestDB(t)
	church := createTestChurch(t, db)
	sequence := createTestSequence(t, db, church.ID, 0)
	aggregator := NewAnalyticsAggregator(db, newTestLogger())

	require.NoError(t, aggregator.RefreshChurchToday(church.ID))

	var row models.SequenceAnalytics
	require.NoError(t, db.Where("sequence_id = ?", sequence.ID).First(&row).Error)
	assert.Equal(t, 0, row.SentCount)

	message := models.SequenceMessage{
		ChurchID:     church.ID,
		EnrollmentID: 1,
		SequenceID:   sequence.ID,
		MessageID:    "msg-2",
		Channel:      models.ChannelEmail,
		Recipient:    "late@example.com",
		Status:       models.MessageStatusOpened,
		ScheduledFor: time.Now(),
		SentAt:       pastTime(2 * time.Minute),
		OpenedAt:     pastTime(time.Minute),
	}
	require.NoError(t, db.Create(&message).Error)

	require.NoError(t, aggregator.RefreshChurchToday(church.ID))

	require.NoError(t, db.Where("sequence_id = ?", sequence.ID).First(&row).Error)
	assert.Equal(t, 1, row.SentCount)
	assert.Equal(t, 1, row.OpenedCount)
}
