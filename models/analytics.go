package models

import "gorm.io/gorm"

// SequenceAnalytics holds recomputed per-day counters for one sequence.
// Rows are upserted on (sequence_id, day) and never incremented in place.
type SequenceAnalytics struct {
	gorm.Model
	ChurchID   uint   `gorm:"not null;index" json:"church_id"`
	SequenceID uint   `gorm:"not null;uniqueIndex:idx_sequence_analytics_day" json:"sequence_id"`
	Day        string `gorm:"not null;size:10;uniqueIndex:idx_sequence_analytics_day" json:"day"` // YYYY-MM-DD

	EnrolledCount     int `gorm:"default:0" json:"enrolled_count"`
	SentCount         int `gorm:"default:0" json:"sent_count"`
	DeliveredCount    int `gorm:"default:0" json:"delivered_count"`
	OpenedCount       int `gorm:"default:0" json:"opened_count"`
	ClickedCount      int `gorm:"default:0" json:"clicked_count"`
	BouncedCount      int `gorm:"default:0" json:"bounced_count"`
	FailedCount       int `gorm:"default:0" json:"failed_count"`
	UnsubscribedCount int `gorm:"default:0" json:"unsubscribed_count"`
}
