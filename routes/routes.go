package routes

import (
	"log"
	"os"

	"churchpilot/config"
	controller "churchpilot/controllers"
	"churchpilot/middleware"
	"churchpilot/utils"
	"churchpilot/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// SetupPublicRoutes registers the endpoints the outside world hits without
// authentication: delivery webhooks, tracking, and the unsubscribe link.
func SetupPublicRoutes(app *fiber.App, db *gorm.DB) {
	secret := []byte(config.AppConfig.EncryptionKey)

	webhookController := controller.NewWebhookController(db, secret, log.New(os.Stdout, "WEBHOOK: ", log.LstdFlags))
	unsubscribeController := controller.NewUnsubscribeController(db, secret, log.New(os.Stdout, "UNSUB: ", log.LstdFlags))

	webhooks := app.Group("/webhooks", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	webhooks.Post("/bounce", webhookController.HandleBounce)
	webhooks.Post("/delivery-status", webhookController.HandleDeliveryStatus)
	webhooks.Post("/sms/inbound", webhookController.HandleInboundSMS)

	app.Get("/track/open/:messageID/:token", webhookController.HandleOpenTracking)
	app.Get("/track/click/:messageID/:token", webhookController.HandleClickTracking)

	app.Get("/unsubscribe/:token", unsubscribeController.HandleUnsubscribe)
}

// SetupAPIRoutes registers the staff-facing API under /api/v1
func SetupAPIRoutes(app *fiber.App, db *gorm.DB, processor *worker.SequenceProcessor) {
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	templateController := controller.NewTemplateController(db, log.New(os.Stdout, "TEMPLATE: ", log.LstdFlags))
	processorController := controller.NewProcessorController(processor, log.New(os.Stdout, "PROCESSOR: ", log.LstdFlags))

	enroller := utils.NewSequenceEnroller(db, log.New(os.Stdout, "ENROLL: ", log.LstdFlags))
	if config.AppConfig.DuplicateWindowHours > 0 {
		enroller.DuplicateWindow = config.AppConfig.DuplicateWindow()
	}
	enrollmentController := controller.NewEnrollmentController(db, enroller, log.New(os.Stdout, "ENROLL: ", log.LstdFlags))

	api := app.Group("/api/v1", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Sequence routes
	sequence := api.Group("/sequences")
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/:id/activate", sequenceController.ActivateSequence)
	sequence.Post("/:id/deactivate", sequenceController.DeactivateSequence)
	sequence.Get("/:id/stats", sequenceController.GetSequenceStats)

	// Step routes
	sequence.Post("/:id/steps", sequenceController.AddStep)
	sequence.Put("/:id/steps/:stepID", sequenceController.UpdateStep)
	sequence.Delete("/:id/steps/:stepID", sequenceController.DeleteStep)

	// Template routes
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)
	template.Post("/:id/preview", templateController.PreviewTemplate)
	template.Post("/seed", templateController.SeedStarterTemplates)

	// Enrollment routes
	enrollment := api.Group("/enrollments")
	enrollment.Post("/", enrollmentController.Enroll)
	enrollment.Post("/bulk", enrollmentController.BulkEnroll)
	enrollment.Get("/", enrollmentController.GetEnrollments)
	enrollment.Get("/:id", enrollmentController.GetEnrollment)
	enrollment.Post("/:id/pause", enrollmentController.PauseEnrollment)
	enrollment.Post("/:id/resume", enrollmentController.ResumeEnrollment)
	enrollment.Post("/:id/cancel", enrollmentController.CancelEnrollment)

	// Processor routes
	processorGroup := api.Group("/processor")
	processorGroup.Post("/process", processorController.ProcessChurch)
	processorGroup.Get("/status", processorController.GetStatus)

	// WebSocket route for processor progress
	app.Get("/api/v1/processor/progress", websocket.New(func(c *websocket.Conn) {
		processorController.HandleProgressWS(c)
	}))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB, processor *worker.SequenceProcessor) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupPublicRoutes(app, db)
	SetupAPIRoutes(app, db, processor)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
