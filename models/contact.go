package models

import (
	"time"

	"gorm.io/gorm"
)

// Member represents a registered church member
type Member struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `gorm:"index" json:"email"`
	Phone     string `gorm:"index" json:"phone"`

	JoinedAt *time.Time `json:"joined_at"`

	// Relations
	Church Church `json:"-"`
}

// Visitor represents someone who reached out through the chat widget or a
// visit card but is not (yet) a member
type Visitor struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	Name  string `json:"name"`
	Email string `gorm:"index" json:"email"`
	Phone string `gorm:"index" json:"phone"`

	Source string `json:"source"` // chat_widget, visit_card, event, manual

	// Relations
	Church Church `json:"-"`
}

// PrayerRequest represents a submitted prayer request. Requests can be
// enrolled into follow-up sequences just like members and visitors.
type PrayerRequest struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	RequesterName string `json:"requester_name"`
	Email         string `gorm:"index" json:"email"`
	Phone         string `gorm:"index" json:"phone"`

	Request  string `gorm:"type:text" json:"request"`
	Category string `json:"category"` // healing, family, guidance, praise, other
	Status   string `gorm:"default:'open'" json:"status"` // open, praying, answered, closed
	IsUrgent bool   `gorm:"default:false" json:"is_urgent"`

	// Relations
	Church Church `json:"-"`
}

// FullName returns the member's display name
func (m *Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}
