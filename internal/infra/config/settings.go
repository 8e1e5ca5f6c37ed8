package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const defaultRetentionDays = 90

// Settings is the JSON settings file (config/config.json).
type Settings struct {
	Company     CompanySettings    `json:"company"`
	Email       EmailSettings      `json:"email"`
	Scheduling  SchedulingSettings `json:"scheduling"`
	Calendar    CalendarSettings   `json:"calendar"`
	LogsCleanup RetentionSettings  `json:"logs_cleanup"`
}

type CompanySettings struct {
	Name        string `json:"name" validate:"required"`
	SenderName  string `json:"sender_name" validate:"required"`
	SenderEmail string `json:"sender_email" validate:"required,email"`
}

type EmailSettings struct {
	SubjectTemplate string `json:"subject_template" validate:"required"`
	TemplateHTML    string `json:"template_html" validate:"required"`
	TemplateText    string `json:"template_text" validate:"required"`
	SMTPHost        string `json:"smtp_host"`
	SMTPPort        int    `json:"smtp_port"`
	SMTPUseTLS      *bool  `json:"smtp_use_tls"`
	SMTPUsername    string `json:"smtp_username"`
	SMTPPassword    string `json:"smtp_password"`
}

// UseTLS defaults to true when smtp_use_tls is absent.
func (e EmailSettings) UseTLS() bool {
	return e.SMTPUseTLS == nil || *e.SMTPUseTLS
}

type SchedulingSettings struct {
	Timezone                    string `json:"timezone" validate:"required"`
	AdvanceNoticeDays           int    `json:"advance_notice_days" validate:"min=0"`
	MinimumNoticeDays           *int   `json:"minimum_notice_days" validate:"omitempty,min=0"`
	AllowMultipleBookingsPerDay bool   `json:"allow_multiple_bookings_per_day"`
	// WeekdayFallback lets non-preferred weekdays through as lower-ranked candidates.
	WeekdayFallback bool `json:"weekday_fallback"`
}

// MinNoticeDays defaults to 1.
func (s SchedulingSettings) MinNoticeDays() int {
	if s.MinimumNoticeDays == nil {
		return 1
	}
	return *s.MinimumNoticeDays
}

type CalendarSettings struct {
	CheckAllCalendars bool            `json:"check_all_calendars"`
	CompanyReminders  *bool           `json:"company_reminders"`
	ClientReminders   bool            `json:"client_reminders"`
	Reminders         ReminderMinutes `json:"reminders"`
}

// CompanyRemindersEnabled defaults to true.
func (c CalendarSettings) CompanyRemindersEnabled() bool {
	return c.CompanyReminders == nil || *c.CompanyReminders
}

type ReminderMinutes struct {
	Email int64 `json:"email" validate:"min=0"`
	Popup int64 `json:"popup" validate:"min=0"`
}

// RetentionSettings are in days. A missing value means 90; an explicit 0 is kept.
type RetentionSettings struct {
	OutputFilesRetentionDays    *int `json:"output_files_retention_days" validate:"omitempty,min=0"`
	MaintenanceLogRetentionDays *int `json:"maintenance_log_retention_days" validate:"omitempty,min=0"`
	CronLogRetentionDays        *int `json:"cron_log_retention_days" validate:"omitempty,min=0"`
}

func (r RetentionSettings) OutputFilesDays() int    { return daysOrDefault(r.OutputFilesRetentionDays) }
func (r RetentionSettings) MaintenanceLogDays() int { return daysOrDefault(r.MaintenanceLogRetentionDays) }
func (r RetentionSettings) CronLogDays() int        { return daysOrDefault(r.CronLogRetentionDays) }

func daysOrDefault(v *int) int {
	if v == nil {
		return defaultRetentionDays
	}
	return *v
}

// LoadSettings reads and validates the settings file. Template paths are
// resolved relative to the settings file's directory's parent (the project root).
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	s := &Settings{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%w: malformed settings file %s: %v", ErrInvalidConfig, path, err)
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if _, err := time.LoadLocation(s.Scheduling.Timezone); err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q: %v", ErrInvalidConfig, s.Scheduling.Timezone, err)
	}

	s.applyDefaults(filepath.Dir(filepath.Dir(path)))
	return s, nil
}

// Location returns the scheduling timezone. LoadSettings has already validated it.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Settings) applyDefaults(root string) {
	if s.Email.SMTPPort == 0 {
		s.Email.SMTPPort = 587
	}
	if s.Email.SMTPHost == "" {
		s.Email.SMTPHost = "smtp.gmail.com"
	}
	if !filepath.IsAbs(s.Email.TemplateHTML) {
		s.Email.TemplateHTML = filepath.Join(root, s.Email.TemplateHTML)
	}
	if !filepath.IsAbs(s.Email.TemplateText) {
		s.Email.TemplateText = filepath.Join(root, s.Email.TemplateText)
	}
}

// ApplyEnv lets secrets from the environment override the settings file.
func (s *Settings) ApplyEnv(cfg *AppConfig) {
	if cfg.SMTPUsername != "" {
		s.Email.SMTPUsername = cfg.SMTPUsername
	}
	if cfg.SMTPPassword != "" {
		s.Email.SMTPPassword = cfg.SMTPPassword
	}
}
