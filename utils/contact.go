package utils

import (
	"strings"

	"churchpilot/models"

	"gorm.io/gorm"
)

// ContactInfo is the addressable identity an enrollment resolves to
type ContactInfo struct {
	Name      string
	FirstName string
	Email     string
	Phone     string

	MemberID *uint
}

// ResolveContact loads the addressable identity behind an enrollment's contact
// reference. Exactly one of the ids must be set.
func ResolveContact(db *gorm.DB, churchID uint, memberID, visitorID, prayerRequestID *uint) (*ContactInfo, error) {
	refs := 0
	for _, id := range []*uint{memberID, visitorID, prayerRequestID} {
		if id != nil {
			refs++
		}
	}
	if refs != 1 {
		return nil, ErrNoContact
	}

	switch {
	case memberID != nil:
		var member models.Member
		if err := db.Where("id = ? AND church_id = ?", *memberID, churchID).First(&member).Error; err != nil {
			return nil, ErrNotFound
		}
		return &ContactInfo{
			Name:      member.FullName(),
			FirstName: member.FirstName,
			Email:     member.Email,
			Phone:     member.Phone,
			MemberID:  memberID,
		}, nil

	case visitorID != nil:
		var visitor models.Visitor
		if err := db.Where("id = ? AND church_id = ?", *visitorID, churchID).First(&visitor).Error; err != nil {
			return nil, ErrNotFound
		}
		return &ContactInfo{
			Name:      visitor.Name,
			FirstName: firstWord(visitor.Name),
			Email:     visitor.Email,
			Phone:     visitor.Phone,
		}, nil

	default:
		var request models.PrayerRequest
		if err := db.Where("id = ? AND church_id = ?", *prayerRequestID, churchID).First(&request).Error; err != nil {
			return nil, ErrNotFound
		}
		return &ContactInfo{
			Name:      request.RequesterName,
			FirstName: firstWord(request.RequesterName),
			Email:     request.Email,
			Phone:     request.Phone,
		}, nil
	}
}

// Address returns the recipient address for a channel, empty when the contact
// is not reachable on it
func (c *ContactInfo) Address(channel string) string {
	switch channel {
	case models.ChannelEmail:
		return c.Email
	case models.ChannelSMS:
		return c.Phone
	}
	return ""
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
