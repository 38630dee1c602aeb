package utils

import (
	"time"

	"churchpilot/models"

	"gorm.io/gorm"
)

// PreferenceStore reads and writes per-contact communication preferences.
// A missing row means everything is allowed.
type PreferenceStore struct {
	DB *gorm.DB
}

func NewPreferenceStore(db *gorm.DB) *PreferenceStore {
	return &PreferenceStore{DB: db}
}

// GetForContact finds the preference row matching a contact by member id
// first, then by email or phone. Returns nil when no row exists.
func (ps *PreferenceStore) GetForContact(churchID uint, contact *ContactInfo) (*models.CommunicationPreference, error) {
	var pref models.CommunicationPreference

	if contact.MemberID != nil {
		err := ps.DB.Where("church_id = ? AND member_id = ?", churchID, *contact.MemberID).First(&pref).Error
		if err == nil {
			return &pref, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	query := ps.DB.Where("church_id = ?", churchID)
	switch {
	case contact.Email != "" && contact.Phone != "":
		query = query.Where("email = ? OR phone = ?", contact.Email, contact.Phone)
	case contact.Email != "":
		query = query.Where("email = ?", contact.Email)
	case contact.Phone != "":
		query = query.Where("phone = ?", contact.Phone)
	default:
		return nil, nil
	}

	err := query.First(&pref).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

// Unsubscribe applies an unsubscribe request: a sequence id removes the
// contact from that sequence only, no sequence id sets the global flag.
// An event row is recorded either way.
func (ps *PreferenceStore) Unsubscribe(churchID uint, memberID *uint, email, phone string, sequenceID *uint, reason, ip, userAgent string) error {
	pref, err := ps.findOrCreate(churchID, memberID, email, phone)
	if err != nil {
		return err
	}

	if sequenceID != nil {
		already := false
		for _, id := range pref.UnsubscribedSequences {
			if id == *sequenceID {
				already = true
				break
			}
		}
		if !already {
			pref.UnsubscribedSequences = append(pref.UnsubscribedSequences, *sequenceID)
		}
	} else {
		pref.GlobalUnsubscribe = true
	}
	pref.UnsubscribedAt = Pointer(time.Now())

	if err := ps.DB.Save(pref).Error; err != nil {
		return err
	}

	event := models.Unsubscribe{
		ChurchID:   churchID,
		Email:      email,
		Phone:      phone,
		SequenceID: sequenceID,
		Reason:     reason,
		IPAddress:  ip,
		UserAgent:  userAgent,
	}
	return ps.DB.Create(&event).Error
}

// OptOutPhone disables the SMS channel for every preference row carrying the
// phone number. Used by the carrier STOP callback, which has no church scope.
func (ps *PreferenceStore) OptOutPhone(phone string) error {
	var prefs []models.CommunicationPreference
	if err := ps.DB.Where("phone = ?", phone).Find(&prefs).Error; err != nil {
		return err
	}

	if len(prefs) == 0 {
		pref := models.CommunicationPreference{
			Phone:          phone,
			EmailEnabled:   true,
			SMSEnabled:     false,
			UnsubscribedAt: Pointer(time.Now()),
		}
		return ps.DB.Create(&pref).Error
	}

	return ps.DB.Model(&models.CommunicationPreference{}).
		Where("phone = ?", phone).
		Updates(map[string]interface{}{
			"sms_enabled":     false,
			"unsubscribed_at": time.Now(),
		}).Error
}

// SuppressEmail disables the email channel for an address, used on hard bounces
func (ps *PreferenceStore) SuppressEmail(churchID uint, email string) error {
	pref, err := ps.findOrCreate(churchID, nil, email, "")
	if err != nil {
		return err
	}
	return ps.DB.Model(pref).Updates(map[string]interface{}{
		"email_enabled":   false,
		"unsubscribed_at": time.Now(),
	}).Error
}

func (ps *PreferenceStore) findOrCreate(churchID uint, memberID *uint, email, phone string) (*models.CommunicationPreference, error) {
	contact := &ContactInfo{MemberID: memberID, Email: email, Phone: phone}
	pref, err := ps.GetForContact(churchID, contact)
	if err != nil {
		return nil, err
	}
	if pref != nil {
		return pref, nil
	}

	pref = &models.CommunicationPreference{
		ChurchID:     churchID,
		MemberID:     memberID,
		Email:        email,
		Phone:        phone,
		EmailEnabled: true,
		SMSEnabled:   true,
	}
	if err := ps.DB.Create(pref).Error; err != nil {
		return nil, err
	}
	return pref, nil
}
