package controller

import (
	"errors"
	"log"
	"strings"

	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WebhookController receives provider callbacks: bounce notifications,
// delivery-status updates, inbound SMS opt-outs, and the open/click tracking
// endpoints embedded in outbound email.
type WebhookController struct {
	DB     *gorm.DB
	Prefs  *utils.PreferenceStore
	Logger *log.Logger
	Secret []byte
}

func NewWebhookController(db *gorm.DB, secret []byte, logger *log.Logger) *WebhookController {
	return &WebhookController{
		DB:     db,
		Prefs:  utils.NewPreferenceStore(db),
		Logger: logger,
		Secret: secret,
	}
}

// HandleBounce processes a provider bounce callback. Unknown message ids are
// acknowledged with 404 so the provider stops retrying.
func (wc *WebhookController) HandleBounce(c *fiber.Ctx) error {
	var input struct {
		MessageID string `json:"message_id"`
		Reason    string `json:"reason"`
	}
	if err := c.BodyParser(&input); err != nil || input.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	logrus.WithFields(logrus.Fields{
		"message_id": input.MessageID,
		"reason":     input.Reason,
		"hard":       utils.IsHardBounce(input.Reason),
	}).Info("Bounce webhook received")

	if err := utils.MarkBounced(wc.DB, wc.Prefs, input.MessageID, input.Reason); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Message not found",
			})
		}
		wc.Logger.Printf("Failed to record bounce for %s: %v", input.MessageID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record bounce",
		})
	}

	return c.JSON(fiber.Map{"message": "Bounce recorded"})
}

// HandleDeliveryStatus processes provider delivery confirmations and failures
func (wc *WebhookController) HandleDeliveryStatus(c *fiber.Ctx) error {
	var input struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"` // delivered, failed
		ErrorCode string `json:"error_code"`
	}
	if err := c.BodyParser(&input); err != nil || input.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	logrus.WithFields(logrus.Fields{
		"message_id": input.MessageID,
		"status":     input.Status,
		"error_code": input.ErrorCode,
	}).Info("Delivery status webhook received")

	if err := utils.MarkDeliveryStatus(wc.DB, input.MessageID, input.Status, input.ErrorCode); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Message not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record delivery status",
		})
	}

	return c.JSON(fiber.Map{"message": "Delivery status recorded"})
}

// HandleInboundSMS processes inbound SMS from the carrier webhook. STOP and
// its synonyms disable the SMS channel for every preference record matching
// the sender's number.
func (wc *WebhookController) HandleInboundSMS(c *fiber.Ctx) error {
	from := c.FormValue("From")
	body := strings.TrimSpace(strings.ToUpper(c.FormValue("Body")))
	if from == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing sender",
		})
	}

	switch body {
	case "STOP", "STOPALL", "UNSUBSCRIBE", "CANCEL", "END", "QUIT":
		logrus.WithFields(logrus.Fields{
			"from":    from,
			"keyword": body,
		}).Info("SMS opt-out received")

		if err := wc.Prefs.OptOutPhone(from); err != nil {
			wc.Logger.Printf("Failed to opt out %s: %v", from, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to record opt-out",
			})
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleOpenTracking serves the tracking pixel and records the first open
func (wc *WebhookController) HandleOpenTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if !utils.ValidTrackingToken(messageID, token, wc.Secret) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid token")
	}

	utils.MarkOpened(wc.DB, messageID)

	return c.Type("gif").Send(transparentPixel())
}

// HandleClickTracking records the click and redirects to the original URL
func (wc *WebhookController) HandleClickTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")
	originalURL := c.Query("url")

	if !utils.ValidTrackingToken(messageID, token, wc.Secret) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid token")
	}
	if originalURL == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing url")
	}

	utils.MarkClicked(wc.DB, messageID)

	return c.Redirect(originalURL, fiber.StatusFound)
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
