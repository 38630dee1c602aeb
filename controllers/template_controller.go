package controller

import (
	"log"

	"churchpilot/models"
	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type TemplateController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewTemplateController(db *gorm.DB, logger *log.Logger) *TemplateController {
	return &TemplateController{DB: db, Logger: logger}
}

type templateInput struct {
	Name      string   `json:"name" validate:"required"`
	Category  string   `json:"category"`
	Channel   string   `json:"channel" validate:"required,oneof=email sms"`
	Subject   string   `json:"subject"`
	Content   string   `json:"content" validate:"required"`
	Variables []string `json:"variables"`
	Language  string   `json:"language"`
}

func (tc *TemplateController) CreateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input templateInput
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
	if input.Channel == models.ChannelSMS && input.Subject != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "SMS templates do not carry a subject",
		})
	}

	language := input.Language
	if language == "" {
		language = "en"
	}

	template := models.MessageTemplate{
		ChurchID:  user.ChurchID,
		Name:      input.Name,
		Category:  input.Category,
		Channel:   input.Channel,
		Subject:   input.Subject,
		Content:   input.Content,
		Variables: input.Variables,
		Language:  language,
	}
	if err := tc.DB.Create(&template).Error; err != nil {
		tc.Logger.Printf("Failed to create template: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create template",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Template created successfully",
		"template": template,
	})
}

// SeedStarterTemplates creates the default template set for the caller's
// church. Existing templates with the same name are left alone.
func (tc *TemplateController) SeedStarterTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := models.CreateStarterTemplates(tc.DB, user.ChurchID); err != nil {
		tc.Logger.Printf("Failed to seed starter templates for church %d: %v", user.ChurchID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to seed templates",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Starter templates created",
	})
}

func (tc *TemplateController) GetTemplates(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := tc.DB.Where("church_id = ?", user.ChurchID)
	if channel := c.Query("channel"); channel != "" {
		query = query.Where("channel = ?", channel)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []models.MessageTemplate
	if err := query.Order("created_at DESC").Find(&templates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch templates",
		})
	}

	return c.JSON(fiber.Map{"templates": templates})
}

func (tc *TemplateController) GetTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND church_id = ?", c.Params("id"), user.ChurchID).First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	return c.JSON(fiber.Map{"template": template})
}

// PreviewTemplate renders a template against caller-supplied sample data.
// Unresolved placeholders come back literal, which is exactly what the
// admin UI wants to show.
func (tc *TemplateController) PreviewTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND church_id = ?", c.Params("id"), user.ChurchID).First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var input struct {
		Data map[string]string `json:"data"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	return c.JSON(fiber.Map{
		"subject": utils.RenderTemplate(template.Subject, input.Data),
		"content": utils.RenderTemplate(template.Content, input.Data),
	})
}

func (tc *TemplateController) UpdateTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND church_id = ?", c.Params("id"), user.ChurchID).First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var input templateInput
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
	if input.Channel != template.Channel {
		// Steps reference templates by channel; changing it would break them
		var refs int64
		tc.DB.Model(&models.SequenceStep{}).Where("template_id = ?", template.ID).Count(&refs)
		if refs > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Cannot change channel of a template in use",
			})
		}
	}

	updates := map[string]interface{}{
		"name":     input.Name,
		"category": input.Category,
		"channel":  input.Channel,
		"subject":  input.Subject,
		"content":  input.Content,
	}
	if err := tc.DB.Model(&template).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update template",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Template updated successfully",
		"template": template,
	})
}

func (tc *TemplateController) DeleteTemplate(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var template models.MessageTemplate
	if err := tc.DB.Where("id = ? AND church_id = ?", c.Params("id"), user.ChurchID).First(&template).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Template not found",
		})
	}

	var refs int64
	tc.DB.Model(&models.SequenceStep{}).Where("template_id = ?", template.ID).Count(&refs)
	if refs > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Template is referenced by sequence steps",
		})
	}

	if err := tc.DB.Delete(&template).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete template",
		})
	}

	return c.JSON(fiber.Map{"message": "Template deleted successfully"})
}
