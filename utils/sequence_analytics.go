package utils

import (
	"log"
	"time"

	"churchpilot/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsAggregator rolls message and enrollment rows up into per-day
// counters. It recomputes rather than increments, so running it any number of
// times in the same day leaves exactly one row per (sequence, day).
type AnalyticsAggregator struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewAnalyticsAggregator(db *gorm.DB, logger *log.Logger) *AnalyticsAggregator {
	return &AnalyticsAggregator{DB: db, Logger: logger}
}

// RefreshChurchToday recomputes today's analytics row for every active
// sequence of a church. Source rows are never mutated.
func (aa *AnalyticsAggregator) RefreshChurchToday(churchID uint) error {
	var sequences []models.Sequence
	if err := aa.DB.Where("church_id = ? AND is_active = ?", churchID, true).Find(&sequences).Error; err != nil {
		return err
	}

	now := time.Now()
	for _, sequence := range sequences {
		if err := aa.RefreshDay(churchID, sequence.ID, now); err != nil {
			aa.Logger.Printf("Failed to refresh analytics for sequence %d: %v", sequence.ID, err)
		}
	}
	return nil
}

// RefreshDay recomputes and upserts one (sequence, day) row
func (aa *AnalyticsAggregator) RefreshDay(churchID, sequenceID uint, day time.Time) error {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	row := models.SequenceAnalytics{
		ChurchID:   churchID,
		SequenceID: sequenceID,
		Day:        dayStart.Format("2006-01-02"),

		EnrolledCount: aa.count(&models.SequenceEnrollment{},
			"sequence_id = ? AND created_at >= ? AND created_at < ?", sequenceID, dayStart, dayEnd),
		SentCount:      aa.countMessages(sequenceID, "sent_at", dayStart, dayEnd),
		DeliveredCount: aa.countMessages(sequenceID, "delivered_at", dayStart, dayEnd),
		OpenedCount:    aa.countMessages(sequenceID, "opened_at", dayStart, dayEnd),
		ClickedCount:   aa.countMessages(sequenceID, "clicked_at", dayStart, dayEnd),
		BouncedCount:   aa.countMessages(sequenceID, "bounced_at", dayStart, dayEnd),
		FailedCount:    aa.countMessages(sequenceID, "failed_at", dayStart, dayEnd),
		UnsubscribedCount: aa.count(&models.Unsubscribe{},
			"sequence_id = ? AND created_at >= ? AND created_at < ?", sequenceID, dayStart, dayEnd),
	}

	return aa.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sequence_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enrolled_count", "sent_count", "delivered_count", "opened_count",
			"clicked_count", "bounced_count", "failed_count", "unsubscribed_count",
			"updated_at",
		}),
	}).Create(&row).Error
}

func (aa *AnalyticsAggregator) count(model interface{}, query string, args ...interface{}) int {
	var count int64
	if err := aa.DB.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		aa.Logger.Printf("Analytics count failed: %v", err)
	}
	return int(count)
}

func (aa *AnalyticsAggregator) countMessages(sequenceID uint, column string, from, to time.Time) int {
	return aa.count(&models.SequenceMessage{},
		"sequence_id = ? AND "+column+" >= ? AND "+column+" < ?", sequenceID, from, to)
}
