package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Config holds process-wide helpers that are built once at startup.
type Config struct {
	Validator *validator.Validate
}

// AppConfig represents the application configuration
type AppConfig struct {
	Port             string
	DatabasePath     string
	OpenSearchURL    string
	OpenSearchUser   string
	OpenSearchPass   string
	EnableLogging    bool
	LoggingLevel     string
	LogRetentionDays int
}

// GatewaySettings mirrors the merchant-facing settings surface of the
// payment gateway: API credentials, feature toggles and the URLs the
// notification flow redirects to.
type GatewaySettings struct {
	APIKey             string
	Use3DSecure        bool
	OneClickEnabled    bool
	DisableStockReduce bool
	NotifEmails        string // comma/semicolon separated anomaly recipients
	NotificationURL    string
	ReturnURL          string
	CancelURL          string
	HomeURL            string
	DebugMode          bool
}

// SMTPConfig holds the anomaly-mail transport settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

var (
	instance          *Config
	appConfigInstance *AppConfig
)

func App() *Config {
	if instance == nil {
		instance = &Config{
			Validator: validator.New(),
		}
	}
	return instance
}

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:             GetEnv("APP_PORT", "9999"),
			DatabasePath:     GetEnv("DB_PATH", "easytransac.db"),
			OpenSearchURL:    GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:   GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:   GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:    GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:     GetEnv("LOGGING_LEVEL", "info"),
			LogRetentionDays: GetIntEnv("LOG_RETENTION_DAYS", 30),
		}
	}
	return appConfigInstance
}

// LoadGatewaySettings reads the gateway settings from the environment.
func LoadGatewaySettings() GatewaySettings {
	appURL := GetEnv("APP_URL", "http://localhost:9999")
	return GatewaySettings{
		APIKey:             GetEnv("EASYTRANSAC_API_KEY", ""),
		Use3DSecure:        GetBoolEnv("EASYTRANSAC_3DSECURE", true),
		OneClickEnabled:    GetBoolEnv("EASYTRANSAC_ONECLICK", false),
		DisableStockReduce: GetBoolEnv("DISABLE_STOCK_REDUCE", false),
		NotifEmails:        GetEnv("NOTIF_EMAILS", ""),
		NotificationURL:    GetEnv("NOTIFICATION_URL", appURL+"/callback"),
		ReturnURL:          GetEnv("RETURN_URL", appURL+"/checkout/complete"),
		CancelURL:          GetEnv("CANCEL_URL", appURL+"/cart"),
		HomeURL:            GetEnv("HOME_URL", appURL),
		DebugMode:          GetBoolEnv("DEBUG_MODE", false),
	}
}

// LoadSMTPConfig reads the anomaly-mail transport settings from the environment.
func LoadSMTPConfig() SMTPConfig {
	return SMTPConfig{
		Host: GetEnv("SMTP_HOST", "localhost"),
		Port: GetIntEnv("SMTP_PORT", 587),
		User: GetEnv("SMTP_USER", ""),
		Pass: GetEnv("SMTP_PASS", ""),
		From: GetEnv("SMTP_FROM", "no-reply@localhost"),
	}
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
