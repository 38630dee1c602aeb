package controller

import (
	"churchpilot/models"
	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
)

type stepInput struct {
	TemplateID     uint              `json:"template_id" validate:"required"`
	StepOrder      int               `json:"step_order" validate:"required,min=1"`
	Channel        string            `json:"channel" validate:"required,oneof=email sms"`
	Name           string            `json:"name"`
	Subject        string            `json:"subject"`
	DelayMinutes   int               `json:"delay_minutes" validate:"min=0"`
	IsActive       *bool             `json:"is_active"`
	SendConditions map[string]string `json:"send_conditions"`
}

// AddStep appends a step to a sequence. Step order must be unique within the
// sequence and the template must exist, belong to the church, and match the
// step's channel.
func (sc *SequenceController) AddStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var input stepInput
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

	for _, existing := range sequence.Steps {
		if existing.StepOrder == input.StepOrder {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A step with this order already exists",
			})
		}
	}

	template, err := sc.loadTemplate(user.ChurchID, input.TemplateID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Template not found",
		})
	}
	if template.Channel != input.Channel {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Template channel does not match step channel",
		})
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}

	step := models.SequenceStep{
		SequenceID:     sequence.ID,
		TemplateID:     input.TemplateID,
		StepOrder:      input.StepOrder,
		Channel:        input.Channel,
		Name:           input.Name,
		Subject:        input.Subject,
		DelayMinutes:   input.DelayMinutes,
		IsActive:       isActive,
		SendConditions: input.SendConditions,
	}
	if err := sc.DB.Create(&step).Error; err != nil {
		sc.Logger.Printf("Failed to create step for sequence %d: %v", sequence.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create step",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Step created successfully",
		"step":    step,
	})
}

func (sc *SequenceController) UpdateStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	var step models.SequenceStep
	if err := sc.DB.Where("id = ? AND sequence_id = ?", c.Params("stepID"), sequence.ID).First(&step).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Step not found",
		})
	}

	var input stepInput
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

	if input.StepOrder != step.StepOrder {
		for _, existing := range sequence.Steps {
			if existing.ID != step.ID && existing.StepOrder == input.StepOrder {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "A step with this order already exists",
				})
			}
		}
	}

	template, err := sc.loadTemplate(user.ChurchID, input.TemplateID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Template not found",
		})
	}
	if template.Channel != input.Channel {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Template channel does not match step channel",
		})
	}

	updates := map[string]interface{}{
		"template_id":   input.TemplateID,
		"step_order":    input.StepOrder,
		"channel":       input.Channel,
		"name":          input.Name,
		"subject":       input.Subject,
		"delay_minutes": input.DelayMinutes,
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if err := sc.DB.Model(&step).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update step",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Step updated successfully",
		"step":    step,
	})
}

func (sc *SequenceController) DeleteStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	sequence, err := sc.loadSequence(user.ChurchID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Sequence not found",
		})
	}

	result := sc.DB.Where("id = ? AND sequence_id = ?", c.Params("stepID"), sequence.ID).
		Delete(&models.SequenceStep{})
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete step",
		})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Step not found",
		})
	}

	return c.JSON(fiber.Map{"message": "Step deleted successfully"})
}

func (sc *SequenceController) loadTemplate(churchID, templateID uint) (*models.MessageTemplate, error) {
	var template models.MessageTemplate
	if err := sc.DB.Where("id = ? AND church_id = ?", templateID, churchID).First(&template).Error; err != nil {
		return nil, err
	}
	return &template, nil
}
