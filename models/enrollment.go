package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses. Transitions are one-directional except paused<->active.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusPaused    = "paused"
	EnrollmentStatusCancelled = "cancelled"
	EnrollmentStatusCompleted = "completed"
)

// Message statuses
const (
	MessageStatusPending   = "pending"
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusOpened    = "opened"
	MessageStatusClicked   = "clicked"
	MessageStatusBounced   = "bounced"
	MessageStatusFailed    = "failed"
)

// SequenceEnrollment represents one contact's progress through one sequence.
// Exactly one of MemberID, VisitorID, PrayerRequestID is set.
type SequenceEnrollment struct {
	gorm.Model
	ChurchID   uint `gorm:"not null;index" json:"church_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	MemberID        *uint `gorm:"index" json:"member_id,omitempty"`
	VisitorID       *uint `gorm:"index" json:"visitor_id,omitempty"`
	PrayerRequestID *uint `gorm:"index" json:"prayer_request_id,omitempty"`

	TriggerEvent   string            `json:"trigger_event"`
	EnrollmentData map[string]string `gorm:"type:jsonb;serializer:json" json:"enrollment_data,omitempty"`

	Status      string `gorm:"default:'active';index" json:"status"`
	CurrentStep int    `gorm:"default:0" json:"current_step"` // 0 = not yet started

	// Null only when cancelled or completed
	NextSendAt    *time.Time `gorm:"index" json:"next_send_at"`
	PriorityBoost int        `gorm:"default:0" json:"priority_boost"`

	StatusReason string     `json:"status_reason"`
	PausedAt     *time.Time `json:"paused_at"`
	CancelledAt  *time.Time `json:"cancelled_at"`
	CompletedAt  *time.Time `json:"completed_at"`

	// Relations
	Sequence Sequence          `json:"-"`
	Messages []SequenceMessage `gorm:"foreignKey:EnrollmentID" json:"messages,omitempty"`
}

// SequenceMessage represents one concrete send attempt materialized from an
// enrollment reaching a step. Content is rendered at dispatch time.
type SequenceMessage struct {
	gorm.Model
	ChurchID     uint `gorm:"not null;index" json:"church_id"`
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	SequenceID   uint `gorm:"not null;index" json:"sequence_id"`
	StepID       uint `gorm:"not null;index" json:"step_id"`

	// Opaque id embedded in tracking URLs and provider callbacks
	MessageID string `gorm:"uniqueIndex" json:"message_id"`

	Channel   string `gorm:"not null" json:"channel"`
	Recipient string `gorm:"not null" json:"recipient"` // email address or phone number
	Subject   string `json:"subject"`
	Content   string `gorm:"type:text" json:"content"`

	Status       string    `gorm:"default:'pending';index:idx_message_dispatch" json:"status"`
	ScheduledFor time.Time `gorm:"not null;index:idx_message_dispatch" json:"scheduled_for"`
	Priority     int       `gorm:"default:0" json:"priority"`

	SentAt      *time.Time `json:"sent_at"`
	FailedAt    *time.Time `json:"failed_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	OpenedAt    *time.Time `json:"opened_at"`
	ClickedAt   *time.Time `json:"clicked_at"`
	BouncedAt   *time.Time `json:"bounced_at"`

	RetryCount   int    `gorm:"default:0" json:"retry_count"`
	ErrorMessage string `json:"error_message"`

	Provider   string `json:"provider"`
	ExternalID string `gorm:"index" json:"external_id"`

	DeliveryMetadata map[string]string `gorm:"type:jsonb;serializer:json" json:"delivery_metadata,omitempty"`

	// Relations
	Enrollment SequenceEnrollment `json:"-"`
	Step       SequenceStep       `json:"-"`
}

// IsLive reports whether the enrollment still counts against the duplicate
// enrollment window (terminal enrollments never do)
func (e *SequenceEnrollment) IsLive() bool {
	return e.Status == EnrollmentStatusActive || e.Status == EnrollmentStatusPaused
}
