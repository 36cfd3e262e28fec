package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the payments service
type Config struct {
	// Server
	Port        string
	Environment string // sandbox or production
	LogFile     string

	// Database (optional; in-memory store is used when unset/unreachable)
	DatabaseURL string

	// Redis (optional; backs the notification claim when set)
	RedisURL string

	// PhonePe
	PhonePeMerchantID  string
	PhonePeSaltKey     string
	PhonePeSaltIndex   string
	PhonePeBaseURL     string
	PhonePeRedirectURL string
	PhonePeCallbackURL string

	// Razorpay
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string

	// SMTP email
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFromName string

	// Operator notification targets
	AdminEmails []string

	// Twilio-compatible SMS gateway
	SMSAccountSID   string
	SMSAuthToken    string
	SMSFromNumber   string
	SMSAdminNumbers []string
	SMSBaseURL      string

	// Phone normalization
	DefaultCountryCode string

	// Provider status polling
	StatusRetryAttempts int
	StatusRetryBackoff  time.Duration

	// CORS
	CORSAllowedOrigins []string
}

// Load loads configuration from the environment, reading .env first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8092"),
		Environment: getEnv("ENVIRONMENT", "sandbox"),
		LogFile:     getEnv("LOG_FILE", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		PhonePeMerchantID:  getEnv("PHONEPE_MERCHANT_ID", ""),
		PhonePeSaltKey:     getEnv("PHONEPE_SALT_KEY", ""),
		PhonePeSaltIndex:   getEnv("PHONEPE_SALT_INDEX", "1"),
		PhonePeBaseURL:     getEnv("PHONEPE_BASE_URL", ""),
		PhonePeRedirectURL: getEnv("PHONEPE_REDIRECT_URL", ""),
		PhonePeCallbackURL: getEnv("PHONEPE_CALLBACK_URL", ""),

		RazorpayKeyID:         getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
		RazorpayWebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Portfolio Payments"),

		AdminEmails: splitList(getEnv("ADMIN_EMAILS", "")),

		SMSAccountSID:   getEnv("SMS_ACCOUNT_SID", ""),
		SMSAuthToken:    getEnv("SMS_AUTH_TOKEN", ""),
		SMSFromNumber:   getEnv("SMS_FROM_NUMBER", ""),
		SMSAdminNumbers: splitList(getEnv("SMS_ADMIN_NUMBERS", "")),
		SMSBaseURL:      getEnv("SMS_BASE_URL", "https://api.twilio.com"),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "+91"),

		StatusRetryAttempts: getEnvInt("STATUS_RETRY_ATTEMPTS", 3),
		StatusRetryBackoff:  getEnvDuration("STATUS_RETRY_BACKOFF", 2*time.Second),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
	}
}

// IsProduction reports whether the service runs in the production trust tier.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// MissingPhonePeKeys returns the PhonePe configuration keys that are absent.
func (c *Config) MissingPhonePeKeys() []string {
	var missing []string
	if c.PhonePeMerchantID == "" {
		missing = append(missing, "PHONEPE_MERCHANT_ID")
	}
	if c.PhonePeSaltKey == "" {
		missing = append(missing, "PHONEPE_SALT_KEY")
	}
	return missing
}

// MissingRazorpayKeys returns the Razorpay configuration keys that are absent.
func (c *Config) MissingRazorpayKeys() []string {
	var missing []string
	if c.RazorpayKeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if c.RazorpayKeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	return missing
}

// MissingSMTPKeys returns the SMTP configuration keys that are absent.
func (c *Config) MissingSMTPKeys() []string {
	var missing []string
	if c.SMTPHost == "" {
		missing = append(missing, "SMTP_HOST")
	}
	if c.SMTPUsername == "" {
		missing = append(missing, "SMTP_USERNAME")
	}
	if c.SMTPPassword == "" {
		missing = append(missing, "SMTP_PASSWORD")
	}
	return missing
}

// Validate returns every provider or channel credential key that is absent.
// An empty result means all integrations are fully configured.
func (c *Config) Validate() []string {
	var missing []string
	missing = append(missing, c.MissingPhonePeKeys()...)
	missing = append(missing, c.MissingRazorpayKeys()...)
	missing = append(missing, c.MissingSMTPKeys()...)
	return missing
}

// SMSConfigured reports whether SMS credentials are fully present.
func (c *Config) SMSConfigured() bool {
	return c.SMSAccountSID != "" && c.SMSAuthToken != "" && c.SMSFromNumber != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
