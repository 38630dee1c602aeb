package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"churchpilot/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
	FromNumber string `json:"from_number"`
}

// ProcessorConfig drives the sequence processor sweep
type ProcessorConfig struct {
	IntervalSeconds      int `json:"interval_seconds"`
	BatchSize            int `json:"batch_size"`
	TenantConcurrency    int `json:"tenant_concurrency"`
	MaxRetries           int `json:"max_retries"`
	RetryCooldownMinutes int `json:"retry_cooldown_minutes"`
}

type RateLimitConfig struct {
	EmailPerHour int `json:"email_per_hour"`
	SMSPerHour   int `json:"sms_per_hour"`
}

// BounceMailboxConfig points at the IMAP mailbox that receives DSN bounces
type BounceMailboxConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"-"`
	UseTLS          bool   `json:"use_tls"`
	Mailbox         string `json:"mailbox"`
	IntervalMinutes int    `json:"interval_minutes"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	AppURL      string `json:"app_url"`

	EncryptionKey string `json:"-"`
	SentryDSN     string `json:"-"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	SMTP      SMTPConfig          `json:"smtp"`
	Twilio    TwilioConfig        `json:"twilio"`
	Redis     RedisConfig         `json:"redis"`
	Processor ProcessorConfig     `json:"processor"`
	RateLimit RateLimitConfig     `json:"rate_limit"`
	Bounce    BounceMailboxConfig `json:"bounce"`

	DuplicateWindowHours int `json:"duplicate_window_hours"`
}

// DuplicateWindow returns the duplicate enrollment window as a duration
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowHours) * time.Hour
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    getEnv("SERVER_PORT", "5000"),
		AppURL:        getEnv("APP_URL", "http://localhost:5000"),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "churchpilot"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", ""),
		},
		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Processor: ProcessorConfig{
			IntervalSeconds:      getEnvAsInt("PROCESSOR_INTERVAL_SECONDS", 60),
			BatchSize:            getEnvAsInt("PROCESSOR_BATCH_SIZE", 100),
			TenantConcurrency:    getEnvAsInt("PROCESSOR_TENANT_CONCURRENCY", 5),
			MaxRetries:           getEnvAsInt("PROCESSOR_MAX_RETRIES", 3),
			RetryCooldownMinutes: getEnvAsInt("RETRY_COOLDOWN_MINUTES", 5),
		},
		RateLimit: RateLimitConfig{
			EmailPerHour: getEnvAsInt("RATE_LIMIT_EMAIL_PER_HOUR", 20),
			SMSPerHour:   getEnvAsInt("RATE_LIMIT_SMS_PER_HOUR", 10),
		},
		Bounce: BounceMailboxConfig{
			Enabled:         getEnv("BOUNCE_MAILBOX_ENABLED", "false") == "true",
			Host:            getEnv("BOUNCE_IMAP_HOST", ""),
			Port:            getEnvAsInt("BOUNCE_IMAP_PORT", 993),
			Username:        getEnv("BOUNCE_IMAP_USERNAME", ""),
			Password:        getEnv("BOUNCE_IMAP_PASSWORD", ""),
			UseTLS:          getEnv("BOUNCE_IMAP_TLS", "true") == "true",
			Mailbox:         getEnv("BOUNCE_IMAP_MAILBOX", "INBOX"),
			IntervalMinutes: getEnvAsInt("BOUNCE_INTERVAL_MINUTES", 5),
		},
		DuplicateWindowHours: getEnvAsInt("DUPLICATE_WINDOW_HOURS", 24),
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTP.Host == "" && AppConfig.Twilio.AccountSID == "" {
			return fmt.Errorf("at least one delivery provider must be configured in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// MigrateDB runs AutoMigrate for every model the engine owns
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Church{},
		&models.User{},
		&models.Member{},
		&models.Visitor{},
		&models.PrayerRequest{},
		&models.MessageTemplate{},
		&models.Sequence{},
		&models.SequenceStep{},
		&models.SequenceEnrollment{},
		&models.SequenceMessage{},
		&models.SequenceAnalytics{},
		&models.CommunicationPreference{},
		&models.Unsubscribe{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Providers: SMTP(%t), Twilio(%t), Redis(%t)",
		AppConfig.SMTP.Host != "",
		AppConfig.Twilio.AccountSID != "",
		AppConfig.Redis.Enabled)
}
