package utils

import (
	"strings"
	"time"

	"churchpilot/models"

	"gorm.io/gorm"
)

// MarkBounced records a bounce for a message and, for hard bounces, suppresses
// the recipient's email channel. Shared by the provider webhook and the IMAP
// bounce worker.
func MarkBounced(db *gorm.DB, prefs *PreferenceStore, messageID, reason string) error {
	var message models.SequenceMessage
	if err := db.Where("message_id = ?", messageID).First(&message).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}

	if err := db.Model(&message).Updates(map[string]interface{}{
		"status":        models.MessageStatusBounced,
		"bounced_at":    time.Now(),
		"error_message": reason,
	}).Error; err != nil {
		return err
	}

	if message.Channel == models.ChannelEmail && IsHardBounce(reason) {
		return prefs.SuppressEmail(message.ChurchID, message.Recipient)
	}
	return nil
}

// MarkDeliveryStatus applies a provider delivery-status callback to a message
func MarkDeliveryStatus(db *gorm.DB, messageID, status, errorCode string) error {
	var message models.SequenceMessage
	if err := db.Where("message_id = ?", messageID).First(&message).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return ErrNotFound
		}
		return err
	}

	updates := map[string]interface{}{}
	switch status {
	case models.MessageStatusDelivered:
		updates["status"] = models.MessageStatusDelivered
		updates["delivered_at"] = time.Now()
	case models.MessageStatusFailed:
		updates["status"] = models.MessageStatusFailed
		updates["failed_at"] = time.Now()
		updates["error_message"] = errorCode
	default:
		// Opens and clicks arrive through the tracking endpoints; anything
		// else from a provider is noise we keep out of the state machine
		return nil
	}

	return db.Model(&message).Updates(updates).Error
}

// MarkOpened stamps the first open and keeps the status monotonic
func MarkOpened(db *gorm.DB, messageID string) {
	db.Model(&models.SequenceMessage{}).
		Where("message_id = ? AND opened_at IS NULL", messageID).
		Updates(map[string]interface{}{
			"status":    models.MessageStatusOpened,
			"opened_at": time.Now(),
		})
}

// MarkClicked stamps the first click
func MarkClicked(db *gorm.DB, messageID string) {
	db.Model(&models.SequenceMessage{}).
		Where("message_id = ? AND clicked_at IS NULL", messageID).
		Updates(map[string]interface{}{
			"status":     models.MessageStatusClicked,
			"clicked_at": time.Now(),
		})
}

// IsHardBounce classifies a bounce reason as permanent
func IsHardBounce(reason string) bool {
	reason = strings.ToLower(reason)
	// Enhanced status codes in class 5 (e.g. "5.1.1") are permanent failures
	if strings.HasPrefix(reason, "5.") {
		return true
	}
	for _, marker := range []string{"550", "551", "553", "permanent", "user unknown", "no such user", "mailbox unavailable"} {
		if strings.Contains(reason, marker) {
			return true
		}
	}
	return false
}
