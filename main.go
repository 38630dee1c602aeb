package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"churchpilot/config"
	"churchpilot/middleware"
	"churchpilot/provider"
	"churchpilot/routes"
	"churchpilot/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
)

func main() {
	logger := log.New(os.Stdout, "CHURCHPILOT: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Rate limiter: shared Redis counters when configured, per-instance otherwise
	var limiter provider.RateLimiter
	if config.AppConfig.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		})
		limiter = provider.NewRedisRateLimiter(client,
			config.AppConfig.RateLimit.EmailPerHour,
			config.AppConfig.RateLimit.SMSPerHour)
	} else {
		limiter = provider.NewMemoryRateLimiter(
			config.AppConfig.RateLimit.EmailPerHour,
			config.AppConfig.RateLimit.SMSPerHour)
	}

	// Provider registry
	registry := provider.NewRegistry(limiter, log.New(os.Stdout, "PROVIDER: ", log.LstdFlags))
	if config.AppConfig.SMTP.Host != "" {
		smtp := provider.NewSMTPProvider(provider.SMTPConfig{
			Host:      config.AppConfig.SMTP.Host,
			Port:      config.AppConfig.SMTP.Port,
			Username:  config.AppConfig.SMTP.Username,
			Password:  config.AppConfig.SMTP.Password,
			FromEmail: config.AppConfig.SMTP.FromEmail,
			FromName:  config.AppConfig.SMTP.FromName,
		})
		if err := registry.Register(smtp, true); err != nil {
			logger.Printf("SMTP provider not registered: %v", err)
		}
	}
	if config.AppConfig.Twilio.AccountSID != "" {
		twilio := provider.NewTwilioProvider(provider.TwilioConfig{
			AccountSID: config.AppConfig.Twilio.AccountSID,
			AuthToken:  config.AppConfig.Twilio.AuthToken,
			FromNumber: config.AppConfig.Twilio.FromNumber,
		})
		if err := registry.Register(twilio, true); err != nil {
			logger.Printf("Twilio provider not registered: %v", err)
		}
	}

	// Sequence processor
	processor := worker.NewSequenceProcessor(config.DB, registry,
		log.New(os.Stdout, "PROCESSOR: ", log.LstdFlags),
		worker.ProcessorOptions{
			Interval:          time.Duration(config.AppConfig.Processor.IntervalSeconds) * time.Second,
			BatchSize:         config.AppConfig.Processor.BatchSize,
			TenantConcurrency: config.AppConfig.Processor.TenantConcurrency,
			MaxRetries:        config.AppConfig.Processor.MaxRetries,
			RetryCooldown:     time.Duration(config.AppConfig.Processor.RetryCooldownMinutes) * time.Minute,
			AppURL:            config.AppConfig.AppURL,
			Secret:            []byte(config.AppConfig.EncryptionKey),
		})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	processor.Start(ctx)

	// Bounce mailbox worker
	if config.AppConfig.Bounce.Enabled {
		bounceWorker := worker.NewBounceWorker(config.DB, config.AppConfig.Bounce,
			log.New(os.Stdout, "BOUNCE: ", log.LstdFlags))
		go bounceWorker.Start(ctx)
	}

	// Create Fiber app
	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, config.DB, processor)

	// Graceful shutdown: stop the processor before the server exits
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit

		logger.Println("Shutting down...")
		processor.Stop()
		cancel()
		_ = app.Shutdown()
	}()

	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
