package utils

import (
	"fmt"
	"log"
	"time"

	"churchpilot/models"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"
)

// SequenceEnroller manages enrollment lifecycle: enroll, pause, resume,
// cancel. It never sends anything itself; materializing and dispatching
// messages is the processor's job.
type SequenceEnroller struct {
	DB     *gorm.DB
	Prefs  *PreferenceStore
	Logger *log.Logger

	// Window in which a second enrollment of the same contact into the same
	// sequence is rejected while the first is still live
	DuplicateWindow time.Duration
}

func NewSequenceEnroller(db *gorm.DB, logger *log.Logger) *SequenceEnroller {
	return &SequenceEnroller{
		DB:              db,
		Prefs:           NewPreferenceStore(db),
		Logger:          logger,
		DuplicateWindow: 24 * time.Hour,
	}
}

// EnrollInput is the enrollment trigger payload coming from the CRUD layer
type EnrollInput struct {
	SequenceID      uint  `json:"sequence_id" validate:"required"`
	MemberID        *uint `json:"member_id,omitempty"`
	VisitorID       *uint `json:"visitor_id,omitempty"`
	PrayerRequestID *uint `json:"prayer_request_id,omitempty"`

	TriggerEvent   string            `json:"trigger_event"`
	EnrollmentData map[string]string `json:"enrollment_data,omitempty"`
	PriorityBoost  int               `json:"priority_boost"`
}

// BulkEnrollResult reports per-item outcomes of a bulk enrollment
type BulkEnrollResult struct {
	EnrolledCount int               `json:"enrolled_count"`
	FailedCount   int               `json:"failed_count"`
	Failures      []BulkEnrollError `json:"failures,omitempty"`
}

type BulkEnrollError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// Enroll creates an enrollment with current_step = 0 and the first send
// scheduled at now + the sequence's start delay. No message row is created
// here; the processor materializes messages when they come due.
func (se *SequenceEnroller) Enroll(churchID uint, input EnrollInput) (*models.SequenceEnrollment, error) {
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	var sequence models.Sequence
	if err := se.DB.Where("id = ? AND church_id = ?", input.SequenceID, churchID).First(&sequence).Error; err != nil {
		return nil, ErrNotFound
	}
	if !sequence.IsActive {
		return nil, fmt.Errorf("sequence %q is not active", sequence.Name)
	}

	contact, err := ResolveContact(se.DB, churchID, input.MemberID, input.VisitorID, input.PrayerRequestID)
	if err != nil {
		return nil, err
	}
	if contact.Email == "" && contact.Phone == "" {
		return nil, fmt.Errorf("contact has no email address or phone number")
	}
	if contact.Email != "" {
		if err := checkmail.ValidateFormat(contact.Email); err != nil {
			return nil, fmt.Errorf("invalid email address %q", contact.Email)
		}
	}

	pref, err := se.Prefs.GetForContact(churchID, contact)
	if err != nil {
		return nil, err
	}
	if pref != nil {
		if pref.GlobalUnsubscribe {
			return nil, ErrUnsubscribed
		}
		if !pref.AllowsSequence(sequence.ID) {
			return nil, ErrUnsubscribed
		}
	}

	if err := se.checkDuplicate(churchID, &sequence, input); err != nil {
		return nil, err
	}

	if sequence.MaxEnrollments > 0 {
		var count int64
		se.DB.Model(&models.SequenceEnrollment{}).
			Where("sequence_id = ?", sequence.ID).
			Count(&count)
		if count >= int64(sequence.MaxEnrollments) {
			return nil, ErrEnrollmentLimit
		}
	}

	enrollment := models.SequenceEnrollment{
		ChurchID:        churchID,
		SequenceID:      sequence.ID,
		MemberID:        input.MemberID,
		VisitorID:       input.VisitorID,
		PrayerRequestID: input.PrayerRequestID,
		TriggerEvent:    input.TriggerEvent,
		EnrollmentData:  input.EnrollmentData,
		Status:          models.EnrollmentStatusActive,
		CurrentStep:     0,
		NextSendAt:      Pointer(time.Now().Add(time.Duration(sequence.StartDelayMinutes) * time.Minute)),
		PriorityBoost:   input.PriorityBoost,
	}

	if err := se.DB.Create(&enrollment).Error; err != nil {
		return nil, err
	}

	se.Logger.Printf("Enrolled contact in sequence %d (enrollment %d, first send %s)",
		sequence.ID, enrollment.ID, enrollment.NextSendAt.Format(time.RFC3339))
	return &enrollment, nil
}

// BulkEnroll enrolls each contact independently. A failing item never aborts
// the rest; failures are reported with their input index.
func (se *SequenceEnroller) BulkEnroll(churchID uint, sequenceID uint, contacts []EnrollInput) *BulkEnrollResult {
	result := &BulkEnrollResult{}

	for i, contact := range contacts {
		contact.SequenceID = sequenceID
		if _, err := se.Enroll(churchID, contact); err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, BulkEnrollError{Index: i, Error: err.Error()})
			continue
		}
		result.EnrolledCount++
	}

	return result
}

// Pause freezes an active enrollment. next_send_at is left untouched.
func (se *SequenceEnroller) Pause(churchID, enrollmentID uint, reason string) (*models.SequenceEnrollment, error) {
	enrollment, err := se.load(churchID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, ErrInvalidStateTransition
	}

	updates := map[string]interface{}{
		"status":        models.EnrollmentStatusPaused,
		"status_reason": reason,
		"paused_at":     time.Now(),
	}
	if err := se.DB.Model(enrollment).Updates(updates).Error; err != nil {
		return nil, err
	}
	return se.load(churchID, enrollmentID)
}

// Resume reactivates a paused enrollment. next_send_at is recomputed from the
// next step's delay (or the sequence start delay when no step has fired yet)
// so the contact is never messaged in the past.
func (se *SequenceEnroller) Resume(churchID, enrollmentID uint) (*models.SequenceEnrollment, error) {
	enrollment, err := se.load(churchID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentStatusPaused {
		return nil, ErrInvalidStateTransition
	}

	var sequence models.Sequence
	if err := se.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).First(&sequence, enrollment.SequenceID).Error; err != nil {
		return nil, ErrNotFound
	}

	var delay time.Duration
	if enrollment.CurrentStep == 0 {
		delay = time.Duration(sequence.StartDelayMinutes) * time.Minute
	} else {
		next := NextActiveStep(sequence.Steps, enrollment.CurrentStep)
		if next == nil {
			// Nothing left to send; resuming completes the enrollment
			if err := se.DB.Model(enrollment).Updates(map[string]interface{}{
				"status":       models.EnrollmentStatusCompleted,
				"next_send_at": nil,
				"completed_at": time.Now(),
			}).Error; err != nil {
				return nil, err
			}
			return se.load(churchID, enrollmentID)
		}
		delay = time.Duration(next.DelayMinutes) * time.Minute
	}

	updates := map[string]interface{}{
		"status":        models.EnrollmentStatusActive,
		"status_reason": "",
		"next_send_at":  time.Now().Add(delay),
	}
	if err := se.DB.Model(enrollment).Updates(updates).Error; err != nil {
		return nil, err
	}
	return se.load(churchID, enrollmentID)
}

// Cancel is terminal: scheduling is cleared and no further transition is
// accepted, including a second cancel.
func (se *SequenceEnroller) Cancel(churchID, enrollmentID uint, reason string) (*models.SequenceEnrollment, error) {
	enrollment, err := se.load(churchID, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !enrollment.IsLive() {
		return nil, ErrInvalidStateTransition
	}

	updates := map[string]interface{}{
		"status":        models.EnrollmentStatusCancelled,
		"status_reason": reason,
		"next_send_at":  nil,
		"cancelled_at":  time.Now(),
	}
	if err := se.DB.Model(enrollment).Updates(updates).Error; err != nil {
		return nil, err
	}
	return se.load(churchID, enrollmentID)
}

// NextActiveStep returns the first active step after the given 1-based order,
// nil when the sequence has no further sendable step
func NextActiveStep(steps []models.SequenceStep, afterOrder int) *models.SequenceStep {
	for i := range steps {
		if steps[i].StepOrder > afterOrder && steps[i].IsActive {
			return &steps[i]
		}
	}
	return nil
}

func (se *SequenceEnroller) load(churchID, enrollmentID uint) (*models.SequenceEnrollment, error) {
	var enrollment models.SequenceEnrollment
	if err := se.DB.Where("id = ? AND church_id = ?", enrollmentID, churchID).First(&enrollment).Error; err != nil {
		return nil, ErrNotFound
	}
	return &enrollment, nil
}

func (se *SequenceEnroller) checkDuplicate(churchID uint, sequence *models.Sequence, input EnrollInput) error {
	query := se.DB.Model(&models.SequenceEnrollment{}).
		Where("church_id = ? AND sequence_id = ?", churchID, sequence.ID).
		Where("status IN ?", []string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Where("created_at > ?", time.Now().Add(-se.DuplicateWindow))

	switch {
	case input.MemberID != nil:
		query = query.Where("member_id = ?", *input.MemberID)
	case input.VisitorID != nil:
		query = query.Where("visitor_id = ?", *input.VisitorID)
	default:
		query = query.Where("prayer_request_id = ?", *input.PrayerRequestID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEnrollment
	}
	return nil
}
