package models

import "gorm.io/gorm"

// Channel constants for steps, templates and messages
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Sequence represents an automated multi-step follow-up sequence
type Sequence struct {
	gorm.Model
	ChurchID        uint `gorm:"not null;index" json:"church_id"`
	CreatedByUserID uint `gorm:"not null;index" json:"created_by_user_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Category    string `gorm:"index" json:"category"` // visitor_followup, prayer_followup, event, custom

	// Enrollment rules
	TriggerEvent      string            `gorm:"index" json:"trigger_event"` // visitor_created, prayer_submitted, event_registered, manual
	TriggerConditions map[string]string `gorm:"type:jsonb;serializer:json" json:"trigger_conditions,omitempty"`
	StartDelayMinutes int               `gorm:"default:0" json:"start_delay_minutes"`
	MaxEnrollments    int               `gorm:"default:0" json:"max_enrollments"` // 0 = unlimited
	Priority          int               `gorm:"default:0" json:"priority"`

	IsActive bool     `gorm:"default:false;index" json:"is_active"`
	Tags     []string `gorm:"type:jsonb;serializer:json" json:"tags,omitempty"`

	// Relations
	Steps       []SequenceStep       `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
	Enrollments []SequenceEnrollment `gorm:"foreignKey:SequenceID" json:"enrollments,omitempty"`
}

// SequenceStep represents one unit of content + channel + delay in a sequence.
// StepOrder is 1-based and unique per sequence.
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index;uniqueIndex:idx_sequence_step_order" json:"sequence_id"`
	TemplateID uint `gorm:"not null;index" json:"template_id"`

	StepOrder int    `gorm:"not null;uniqueIndex:idx_sequence_step_order" json:"step_order"`
	Channel   string `gorm:"not null" json:"channel"` // email, sms
	Name      string `json:"name"`
	Subject   string `json:"subject"` // email only; overrides template subject when set

	// Minutes to wait after the previous step fired (after enrollment for step 1,
	// on top of the sequence start delay)
	DelayMinutes int `gorm:"not null;default:0" json:"delay_minutes"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Predicate over the enrollment context: every key must match for the step
	// to be sent (empty = always send)
	SendConditions map[string]string `gorm:"type:jsonb;serializer:json" json:"send_conditions,omitempty"`

	// Relations
	Template MessageTemplate `json:"-"`
}

// MessageTemplate represents reusable message content with {{placeholder}} tokens
type MessageTemplate struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	Name     string `gorm:"not null" json:"name"`
	Category string `gorm:"index" json:"category"`
	Channel  string `gorm:"not null;index" json:"channel"` // email, sms
	Subject  string `json:"subject"`                       // email only
	Content  string `gorm:"type:text;not null" json:"content"`

	// Declared placeholder names, informational for the admin UI
	Variables []string `gorm:"type:jsonb;serializer:json" json:"variables,omitempty"`
	Language  string   `gorm:"default:'en'" json:"language"`

	// Relations
	Church Church `json:"-"`
}
