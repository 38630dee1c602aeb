package controller

import (
	"log"

	"churchpilot/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UnsubscribeController handles the public unsubscribe link embedded in every
// outbound email. The token is a signed JWT carrying the contact and the
// optional sequence scope; no login is involved.
type UnsubscribeController struct {
	DB     *gorm.DB
	Prefs  *utils.PreferenceStore
	Logger *log.Logger
	Secret []byte
}

func NewUnsubscribeController(db *gorm.DB, secret []byte, logger *log.Logger) *UnsubscribeController {
	return &UnsubscribeController{
		DB:     db,
		Prefs:  utils.NewPreferenceStore(db),
		Logger: logger,
		Secret: secret,
	}
}

func (uc *UnsubscribeController) HandleUnsubscribe(c *fiber.Ctx) error {
	claims, err := utils.ParseUnsubscribeToken(c.Params("token"), uc.Secret)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid or expired unsubscribe link",
		})
	}

	reason := c.Query("reason")
	if reason == "" {
		reason = "link"
	}

	err = uc.Prefs.Unsubscribe(claims.ChurchID, claims.MemberID, claims.Email, claims.Phone,
		claims.SequenceID, reason, c.IP(), c.Get("User-Agent"))
	if err != nil {
		uc.Logger.Printf("Failed to record unsubscribe: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process unsubscribe",
		})
	}

	scope := "all messages"
	if claims.SequenceID != nil {
		scope = "this follow-up series"
	}
	return c.JSON(fiber.Map{
		"message": "You have been unsubscribed from " + scope,
	})
}
