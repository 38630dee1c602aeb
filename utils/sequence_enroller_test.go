package utils

import (
	"fmt"
	"testing"
	"time"

	"churchpilot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnroll(t *testing.T) {
	db := newTestDB(t)
	church := createTestChurch(t, db)
	sequence := createTestSequence(t, db, church.ID, 0, 60)
	enroller := NewSequenceEnroller(db, newTestLogger())

	t.Run("creates active enrollment at step zero", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "one@example.com")

		enrollment, err := enroller.Enroll(church.ID, EnrollInput{
			SequenceID:   sequence.ID,
			MemberID:     &member.ID,
			TriggerEvent: "manual",
		})
		require.NoError(t, err)

		assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
		assert.Equal(t, 0, enrollment.CurrentStep)
		require.NotNil(t, enrollment.NextSendAt)
		assert.WithinDuration(t, time.Now(), *enrollment.NextSendAt, 5*time.Second)
	})

	t.Run("rejects duplicate within window", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "two@example.com")
		input := EnrollInput{SequenceID: sequence.ID, MemberID: &member.ID}

		_, err := enroller.Enroll(church.ID, input)
		require.NoError(t, err)

		_, err = enroller.Enroll(church.ID, input)
		assert.ErrorIs(t, err, ErrDuplicateEnrollment)
	})

	t.Run("allows second enrollment once the window elapses", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "window@example.com")
		input := EnrollInput{SequenceID: sequence.ID, MemberID: &member.ID}

		first, err := enroller.Enroll(church.ID, input)
		require.NoError(t, err)

		// Age the first enrollment past the window while it stays active
		require.NoError(t, db.Model(first).Update("created_at", time.Now().Add(-25*time.Hour)).Error)

		_, err = enroller.Enroll(church.ID, input)
		assert.NoError(t, err)
	})

	t.Run("allows re-enrollment after terminal state", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "three@example.com")
		input := EnrollInput{SequenceID: sequence.ID, MemberID: &member.ID}

		first, err := enroller.Enroll(church.ID, input)
		require.NoError(t, err)
		_, err = enroller.Cancel(church.ID, first.ID, "test")
		require.NoError(t, err)

		_, err = enroller.Enroll(church.ID, input)
		assert.NoError(t, err)
	})

	t.Run("rejects globally unsubscribed contact", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "gone@example.com")
		require.NoError(t, db.Create(&models.CommunicationPreference{
			ChurchID:          church.ID,
			MemberID:          &member.ID,
			Email:             member.Email,
			GlobalUnsubscribe: true,
		}).Error)

		_, err := enroller.Enroll(church.ID, EnrollInput{SequenceID: sequence.ID, MemberID: &member.ID})
		assert.ErrorIs(t, err, ErrUnsubscribed)
	})

	t.Run("rejects unknown sequence", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "four@example.com")
		_, err := enroller.Enroll(church.ID, EnrollInput{SequenceID: 9999, MemberID: &member.ID})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rejects ambiguous contact reference", func(t *testing.T) {
		member := createTestMember(t, db, church.ID, "five@example.com")
		visitor := models.Visitor{ChurchID: church.ID, Name: "V", Email: "v@example.com"}
		require.NoError(t, db.Create(&visitor).Error)

		_, err := enroller.Enroll(church.ID, EnrollInput{
			SequenceID: sequence.ID,
			MemberID:   &member.ID,
			VisitorID:  &visitor.ID,
		})
		assert.ErrorIs(t, err, ErrNoContact)
	})

	t.Run("enforces sequence enrollment limit", func(t *testing.T) {
		limited := createTestSequence(t, db, church.ID, 0)
		require.NoError(t, db.Model(limited).Update("max_enrollments", 1).Error)

		m1 := createTestMember(t, db, church.ID, "lim1@example.com")
		m2 := createTestMember(t, db, church.ID, "lim2@example.com")

		_, err := enroller.Enroll(church.ID, EnrollInput{SequenceID: limited.ID, MemberID: &m1.ID})
		require.NoError(t, err)

		_, err = enroller.Enroll(church.ID, EnrollInput{SequenceID: limited.ID, MemberID: &m2.ID})
		assert.ErrorIs(t, err, ErrEnrollmentLimit)
	})
}

func TestBulkEnroll(t *testing.T) {
	db := newTestDB(t)
	church := createTestChurch(t, db)
	sequence := createTestSequence(t, db, church.ID, 0)
	enroller := NewSequenceEnroller(db, newTestLogger())

	contacts := make([]EnrollInput, 0, 10)
	for i := 0; i < 10; i++ {
		member := createTestMember(t, db, church.ID, fmt.Sprintf("bulk%d@example.com", i))
		if i == 3 {
			require.NoError(t, db.Create(&models.CommunicationPreference{
				ChurchID:          church.ID,
				MemberID:          &member.ID,
				Email:             member.Email,
				GlobalUnsubscribe: true,
			}).Error)
		}
		contacts = append(contacts, EnrollInput{MemberID: &member.ID})
	}

	result := enroller.BulkEnroll(church.ID, sequence.ID, contacts)

	assert.Equal(t, 9, result.EnrolledCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 3, result.Failures[0].Index)
	assert.Contains(t, result.Failures[0].Error, "unsubscribed")
}

func TestEnrollmentTransitions(t *testing.T) {
	db := newTestDB(t)
	church := createTestChurch(t, db)
	sequence := createTestSequence(t, db, church.ID, 0, 30)
	enroller := NewSequenceEnroller(db, newTestLogger())

	enrollAt := func(t *testing.T, email string) *models.SequenceEnrollment {
		member := createTestMember(t, db, church.ID, email)
		enrollment, err := enroller.Enroll(church.ID, EnrollInput{SequenceID: sequence.ID, MemberID: &member.ID})
		require.NoError(t, err)
		return enrollment
	}

	t.Run("pause then resume preserves step and reschedules", func(t *testing.T) {
		enrollment := enrollAt(t, "t1@example.com")
		require.NoError(t, db.Model(enrollment).Update("current_step", 1).Error)

		paused, err := enroller.Pause(church.ID, enrollment.ID, "vacation")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusPaused, paused.Status)
		assert.Equal(t, "vacation", paused.StatusReason)

		before := time.Now()
		resumed, err := enroller.Resume(church.ID, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusActive, resumed.Status)
		assert.Equal(t, 1, resumed.CurrentStep)
		require.NotNil(t, resumed.NextSendAt)
		assert.False(t, resumed.NextSendAt.Before(before), "resume must never schedule into the past")
	})

	t.Run("pausing a paused enrollment fails", func(t *testing.T) {
		enrollment := enrollAt(t, "t2@example.com")
		_, err := enroller.Pause(church.ID, enrollment.ID, "")
		require.NoError(t, err)

		_, err = enroller.Pause(church.ID, enrollment.ID, "")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("cancel is terminal", func(t *testing.T) {
		enrollment := enrollAt(t, "t3@example.com")

		cancelled, err := enroller.Cancel(church.ID, enrollment.ID, "left town")
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCancelled, cancelled.Status)
		assert.Nil(t, cancelled.NextSendAt)

		_, err = enroller.Cancel(church.ID, enrollment.ID, "again")
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
		_, err = enroller.Resume(church.ID, enrollment.ID)
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("resume past the last step completes", func(t *testing.T) {
		enrollment := enrollAt(t, "t4@example.com")
		require.NoError(t, db.Model(enrollment).Update("current_step", 2).Error)
		_, err := enroller.Pause(church.ID, enrollment.ID, "")
		require.NoError(t, err)

		resumed, err := enroller.Resume(church.ID, enrollment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.EnrollmentStatusCompleted, resumed.Status)
		assert.Nil(t, resumed.NextSendAt)
	})
}

func TestNextActiveStep(t *testing.T) {
	steps := []models.SequenceStep{
		{StepOrder: 1, IsActive: true},
		{StepOrder: 2, IsActive: false},
		{StepOrder: 3, IsActive: true},
	}

	assert.Equal(t, 1, NextActiveStep(steps, 0).StepOrder)
	assert.Equal(t, 3, NextActiveStep(steps, 1).StepOrder, "inactive steps are skipped")
	assert.Nil(t, NextActiveStep(steps, 3))
}
