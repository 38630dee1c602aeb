package controller

import (
	"errors"
	"log"

	"churchpilot/models"
	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type EnrollmentController struct {
	DB       *gorm.DB
	Enroller *utils.SequenceEnroller
	Logger   *log.Logger
}

func NewEnrollmentController(db *gorm.DB, enroller *utils.SequenceEnroller, logger *log.Logger) *EnrollmentController {
	return &EnrollmentController{DB: db, Enroller: enroller, Logger: logger}
}

func (ec *EnrollmentController) Enroll(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input utils.EnrollInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	enrollment, err := ec.Enroller.Enroll(user.ChurchID, input)
	if err != nil {
		return ec.enrollError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Contact enrolled successfully",
		"enrollment": enrollment,
	})
}

func (ec *EnrollmentController) BulkEnroll(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		SequenceID uint                `json:"sequence_id" validate:"required"`
		Contacts   []utils.EnrollInput `json:"contacts" validate:"required,min=1"`
	}
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

	result := ec.Enroller.BulkEnroll(user.ChurchID, input.SequenceID, input.Contacts)
	ec.Logger.Printf("Bulk enrollment into sequence %d: %d enrolled, %d failed",
		input.SequenceID, result.EnrolledCount, result.FailedCount)

	return c.JSON(result)
}

func (ec *EnrollmentController) GetEnrollments(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ec.DB.Where("church_id = ?", user.ChurchID)
	if sequenceID := c.Query("sequence_id"); sequenceID != "" {
		query = query.Where("sequence_id = ?", sequenceID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var enrollments []models.SequenceEnrollment
	if err := query.Order("created_at DESC").Limit(200).Find(&enrollments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch enrollments",
		})
	}

	return c.JSON(fiber.Map{"enrollments": enrollments})
}

func (ec *EnrollmentController) GetEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var enrollment models.SequenceEnrollment
	err := ec.DB.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Where("id = ? AND church_id = ?", c.Params("id"), user.ChurchID).First(&enrollment).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Enrollment not found",
		})
	}

	return c.JSON(fiber.Map{"enrollment": enrollment})
}

func (ec *EnrollmentController) PauseEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Reason string `json:"reason"`
	}
	c.BodyParser(&input)

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid enrollment id",
		})
	}

	enrollment, err := ec.Enroller.Pause(user.ChurchID, uint(id), input.Reason)
	if err != nil {
		return ec.enrollError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":    "Enrollment paused",
		"enrollment": enrollment,
	})
}

func (ec *EnrollmentController) ResumeEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid enrollment id",
		})
	}

	enrollment, err := ec.Enroller.Resume(user.ChurchID, uint(id))
	if err != nil {
		return ec.enrollError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":    "Enrollment resumed",
		"enrollment": enrollment,
	})
}

func (ec *EnrollmentController) CancelEnrollment(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Reason string `json:"reason"`
	}
	c.BodyParser(&input)

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid enrollment id",
		})
	}

	enrollment, err := ec.Enroller.Cancel(user.ChurchID, uint(id), input.Reason)
	if err != nil {
		return ec.enrollError(c, err)
	}

	return c.JSON(fiber.Map{
		"message":    "Enrollment cancelled",
		"enrollment": enrollment,
	})
}

// enrollError maps enroller sentinels onto HTTP statuses
func (ec *EnrollmentController) enrollError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	case errors.Is(err, utils.ErrDuplicateEnrollment):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Contact is already enrolled in this sequence",
		})
	case errors.Is(err, utils.ErrUnsubscribed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Contact has unsubscribed",
		})
	case errors.Is(err, utils.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Enrollment is not in a state that allows this transition",
		})
	case errors.Is(err, utils.ErrEnrollmentLimit):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Sequence enrollment limit reached",
		})
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
