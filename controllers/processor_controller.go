package controller

import (
	"log"
	"time"

	"churchpilot/models"
	"churchpilot/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ProcessorController exposes the sequence processor to operators: a manual
// per-church trigger, a status endpoint, and a websocket progress stream for
// the admin dashboard.
type ProcessorController struct {
	Processor *worker.SequenceProcessor
	Logger    *log.Logger
}

func NewProcessorController(processor *worker.SequenceProcessor, logger *log.Logger) *ProcessorController {
	return &ProcessorController{Processor: processor, Logger: logger}
}

// ProcessChurch runs one tick for the caller's church immediately
func (pc *ProcessorController) ProcessChurch(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	result, err := pc.Processor.ProcessChurch(c.Context(), user.ChurchID)
	if err != nil {
		pc.Logger.Printf("Manual processing failed for church %d: %v", user.ChurchID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Processing failed",
		})
	}

	return c.JSON(fiber.Map{
		"message":   "Processing complete",
		"processed": result.Processed,
		"failed":    result.Failed,
	})
}

// GetStatus returns the processor snapshot
func (pc *ProcessorController) GetStatus(c *fiber.Ctx) error {
	return c.JSON(pc.Processor.Status())
}

// HandleProgressWS streams processor status over a websocket until the client
// disconnects. The dashboard polls this instead of hammering the status
// endpoint.
func (pc *ProcessorController) HandleProgressWS(conn *websocket.Conn) {
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(pc.Processor.Status()); err != nil {
			return
		}
	}
}
