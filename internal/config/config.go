package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Agent auth for the tool-call surface.
	AgentJWTSecret string

	// Master key (hex) used to unseal stored tenant credentials.
	VaultMasterKey string

	// Hold / OTP tunables. The original system never pinned these in one
	// place; they are configuration here on purpose.
	HoldTTL           time.Duration
	SlotLockTTL       time.Duration
	SweepInterval     time.Duration
	OTPCodeTTL        time.Duration
	OTPMaxAttempts    int
	OTPCodeLength     int
	ConfirmMaxRetries int

	// Hot-lead alert policy.
	HotLeadMinScore       int
	HotLeadMinCallSeconds int

	// Appointment defaults for check_availability.
	SlotDurationMinutes int
	BusinessDayStart    string
	BusinessDayEnd      string

	// Notification transport.
	UseMemoryQueue     bool
	NotifyQueueURL     string
	NotifyWorkerCount  int
	OutboxBatchSize    int
	OutboxPollInterval time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// SendGrid for hot-lead email alerts.
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AgentJWTSecret: getEnv("AGENT_JWT_SECRET", ""),
		VaultMasterKey: getEnv("VAULT_MASTER_KEY", ""),

		HoldTTL:           getEnvAsDuration("HOLD_TTL", 10*time.Minute),
		SlotLockTTL:       getEnvAsDuration("SLOT_LOCK_TTL", 10*time.Second),
		SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", 30*time.Second),
		OTPCodeTTL:        getEnvAsDuration("OTP_CODE_TTL", 5*time.Minute),
		OTPMaxAttempts:    getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
		OTPCodeLength:     getEnvAsInt("OTP_CODE_LENGTH", 6),
		ConfirmMaxRetries: getEnvAsInt("CONFIRM_MAX_RETRIES", 3),

		HotLeadMinScore:       getEnvAsInt("HOT_LEAD_MIN_SCORE", 70),
		HotLeadMinCallSeconds: getEnvAsInt("HOT_LEAD_MIN_CALL_SECONDS", 120),

		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 30),
		BusinessDayStart:    getEnv("BUSINESS_DAY_START", "09:00"),
		BusinessDayEnd:      getEnv("BUSINESS_DAY_END", "17:00"),

		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", false),
		NotifyQueueURL:     getEnv("NOTIFY_QUEUE_URL", ""),
		NotifyWorkerCount:  getEnvAsInt("NOTIFY_WORKER_COUNT", 2),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "ClinicVoice"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
