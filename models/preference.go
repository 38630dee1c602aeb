package models

import (
	"time"

	"gorm.io/gorm"
)

// CommunicationPreference holds per-contact opt-out state. A row matches a
// contact by member id or by raw email/phone for visitors and prayer requests.
// GlobalUnsubscribe supersedes every other flag.
type CommunicationPreference struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	MemberID *uint  `gorm:"index" json:"member_id,omitempty"`
	Email    string `gorm:"index" json:"email"`
	Phone    string `gorm:"index" json:"phone"`

	EmailEnabled bool `gorm:"default:true" json:"email_enabled"`
	SMSEnabled   bool `gorm:"default:true" json:"sms_enabled"`

	// Sequence ids the contact explicitly unsubscribed from
	UnsubscribedSequences []uint `gorm:"type:jsonb;serializer:json" json:"unsubscribed_sequences,omitempty"`

	GlobalUnsubscribe bool       `gorm:"default:false;index" json:"global_unsubscribe"`
	UnsubscribedAt    *time.Time `json:"unsubscribed_at"`
}

// Unsubscribe records a single unsubscribe event for reporting
type Unsubscribe struct {
	gorm.Model
	ChurchID uint `gorm:"not null;index" json:"church_id"`

	Email      string `gorm:"index" json:"email"`
	Phone      string `gorm:"index" json:"phone"`
	SequenceID *uint  `gorm:"index" json:"sequence_id,omitempty"`

	Reason    string `json:"reason"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`

	// Relations
	Sequence *Sequence `json:"sequence,omitempty"`
}

// AllowsChannel reports whether the preference permits sends on a channel
func (p *CommunicationPreference) AllowsChannel(channel string) bool {
	if p.GlobalUnsubscribe {
		return false
	}
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelSMS:
		return p.SMSEnabled
	}
	return false
}

// AllowsSequence reports whether the contact has not opted out of a sequence
func (p *CommunicationPreference) AllowsSequence(sequenceID uint) bool {
	if p.GlobalUnsubscribe {
		return false
	}
	for _, id := range p.UnsubscribedSequences {
		if id == sequenceID {
			return false
		}
	}
	return true
}
