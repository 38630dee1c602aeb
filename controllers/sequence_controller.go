package controller

import (
	"log"

	"churchpilot/models"
	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type SequenceController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewSequenceController(db *gorm.DB, logger *log.Logger) *SequenceController {
	return &SequenceController{DB: db, Logger: logger}
}

type sequenceInput struct {
	Name              string            `json:"name" validate:"required"`
	Description       string            `json:"description"`
	Category          string            `json:"category"`
	TriggerEvent      string            `json:"trigger_event"`
	TriggerConditions map[string]string `json:"trigger_conditions"`
	StartDelayMinutes int               `json:"start_delay_minutes"`
	MaxEnrollments    int               `json:"max_enrollments"`
	Priority          int               `json:"priority"`
	Tags              []string          `json:"tags"`
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	sequence := models.Sequence{
		ChurchID:          user.ChurchID,
		CreatedByUserID:   user.ID,
		Name:              input.Name,
		Description:       input.Description,
		Category:          input.Category,
		TriggerEvent:      input.TriggerEvent,
		TriggerConditions: input.TriggerConditions,
		StartDelayMinutes: input.StartDelayMinutes,
		MaxEnrollments:    input.MaxEnrollments,
		Priority:          input.Priority,
		Tags:              input.Tags,
		IsActive:          false, // sequences activate explicitly, once they have steps
	}

	if err := sc.DB.Create(&sequence).Error; err != nil {
		sc.Logger.Printf("Failed to create sequence: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create sequence",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Sequence created successfully",
		"sequence": sequence,
	})
}

func (sc *SequenceController) GetSequences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := sc.DB.Where("church_id = ?", user.ChurchID)
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if c.Query("active") == "true" {
		query = query.Where("is_active = ?", true)
	}

	var sequences []models.Sequence
	if err := query.Order("created_at DESC").Find(&sequences).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch sequences",
		})
	}

	return c.JSON(fiber.Map{"sequences": sequences})
}

func (sc *SequenceController) GetSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	return c.JSON(fiber.Map{"sequence": sequence})
}

func (sc *SequenceController) UpdateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var input sequenceInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	updates := map[string]interface{}{
		"name":                input.Name,
		"description":         input.Description,
		"category":            input.Category,
		"trigger_event":       input.TriggerEvent,
		"start_delay_minutes": input.StartDelayMinutes,
		"max_enrollments":     input.MaxEnrollments,
		"priority":            input.Priority,
	}
	if err := sc.DB.Model(sequence).Updates(updates).Error; err != nil {
		sc.Logger.Printf("Failed to update sequence %d: %v", sequence.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update sequence",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Sequence updated successfully",
		"sequence": sequence,
	})
}

// ActivateSequence turns a sequence live. A sequence with no active steps has
// nothing to send and is rejected.
func (sc *SequenceController) ActivateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	if utils.NextActiveStep(sequence.Steps, 0) == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Cannot activate a sequence with no active steps",
		})
	}

	if err := sc.DB.Model(sequence).Update("is_active", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate sequence",
		})
	}

	return c.JSON(fiber.Map{"message": "Sequence activated"})
}

// DeactivateSequence stops new enrollments and step materialization. Existing
// enrollments keep their state and resume if the sequence is reactivated.
func (sc *SequenceController) DeactivateSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	if err := sc.DB.Model(sequence).Update("is_active", false).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to deactivate sequence",
		})
	}

	return c.JSON(fiber.Map{"message": "Sequence deactivated"})
}

func (sc *SequenceController) DeleteSequence(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var liveCount int64
	sc.DB.Model(&models.SequenceEnrollment{}).
		Where("sequence_id = ? AND status IN ?", sequence.ID,
			[]string{models.EnrollmentStatusActive, models.EnrollmentStatusPaused}).
		Count(&liveCount)
	if liveCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sequence has live enrollments; cancel them first",
		})
	}

	tx := sc.DB.Begin()
	if err := tx.Where("sequence_id = ?", sequence.ID).Delete(&models.SequenceStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence steps",
		})
	}
	if err := tx.Delete(sequence).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete sequence",
		})
	}
	tx.Commit()

	return c.JSON(fiber.Map{"message": "Sequence deleted successfully"})
}

// GetSequenceStats returns the daily analytics rows for one sequence
func (sc *SequenceController) GetSequenceStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var rows []models.SequenceAnalytics
	query := sc.DB.Where("sequence_id = ?", sequence.ID)
	if from := c.Query("from"); from != "" {
		query = query.Where("day >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("day <= ?", to)
	}
	if err := query.Order("day ASC").Find(&rows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch analytics",
		})
	}

	return c.JSON(fiber.Map{
		"sequence_id": sequence.ID,
		"days":        rows,
	})
}

func (sc *SequenceController) loadSequence(churchID uint, id string) (*models.Sequence, error) {
	var sequence models.Sequence
	err := sc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Where("id = ? AND church_id = ?", id, churchID).First(&sequence).Error
	if err != nil {
		return nil, err
	}
	return &sequence, nil
}
