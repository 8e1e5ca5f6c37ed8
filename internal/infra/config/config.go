package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings" // For LogLevel normalization

	"github.com/joho/godotenv"
)

// AppConfig holds the environment-driven configuration for the application.
type AppConfig struct {
	LogLevel    string
	Environment string
	DataDir     string

	ConfigPath  string
	ClientsPath string

	EmailSender  string // "smtp" or "ses"
	SMTPUsername string
	SMTPPassword string
	AWSRegion    string

	MockCalendar       bool
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCalendarID   string
	GoogleTokenPath    string

	LedgerDatabaseURL string // Postgres ledger when set, JSON file otherwise
	RedisURL          string // Run lock when set

	TelegramToken   string
	AdminTelegramID int64

	CronSpec string
}

// Load reads configuration from environment variables and .env file (if present).
// configPath and clientsPath come from the command line; empty values fall back to defaults.
func Load(configPath, clientsPath string) (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.DataDir = envOr("DATA_DIR", "data")

	cfg.ConfigPath = configPath
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join("config", "config.json")
	}
	cfg.ClientsPath = clientsPath
	if cfg.ClientsPath == "" {
		cfg.ClientsPath = filepath.Join("config", "clients.json")
	}

	cfg.EmailSender = strings.ToLower(envOr("EMAIL_SENDER", "smtp"))
	if cfg.EmailSender != "smtp" && cfg.EmailSender != "ses" {
		return nil, fmt.Errorf("%w: EMAIL_SENDER must be smtp or ses, got %q", ErrInvalidConfig, cfg.EmailSender)
	}
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.AWSRegion = envOr("AWS_REGION", "us-east-1")

	cfg.MockCalendar, err = strconv.ParseBool(envOr("MOCK_CALENDAR", "true"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid MOCK_CALENDAR: %v", ErrInvalidConfig, err)
	}
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleCalendarID = envOr("GOOGLE_CALENDAR_ID", "primary")
	cfg.GoogleTokenPath = os.Getenv("GOOGLE_TOKEN_PATH")
	if cfg.GoogleTokenPath == "" {
		cfg.GoogleTokenPath = filepath.Join(filepath.Dir(cfg.ConfigPath), "token.json")
	}
	if !cfg.MockCalendar && (cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "") {
		return nil, fmt.Errorf("%w: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required when MOCK_CALENDAR=false", ErrInvalidConfig)
	}

	cfg.LedgerDatabaseURL = os.Getenv("LEDGER_DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ADMIN_TELEGRAM_ID: %v", ErrInvalidConfig, err)
		}
	}

	cfg.CronSpec = envOr("CRON_SPEC", "0 9 * * *") // Default: 9 AM daily

	return cfg, nil
}

// LedgerPath is the JSON ledger location inside the data directory.
func (c *AppConfig) LedgerPath() string {
	return filepath.Join(c.DataDir, "sent_notifications.json")
}

// LogFilePath is the scheduler's own log file.
func (c *AppConfig) LogFilePath() string {
	return filepath.Join(c.DataDir, "maintenance_scheduler.log")
}

// CronLogFilePath is the log written by the external cron job, if any.
func (c *AppConfig) CronLogFilePath() string {
	return filepath.Join(c.DataDir, "cron.log")
}

func (c *AppConfig) OutputDir() string {
	return filepath.Join(c.DataDir, "output")
}

func (c *AppConfig) PreviewDir() string {
	return filepath.Join(c.DataDir, "preview")
}

// TelegramEnabled reports whether run reports and operator commands are configured.
func (c *AppConfig) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.AdminTelegramID != 0
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
