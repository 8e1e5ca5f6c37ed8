package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default maintenance preference values applied when a client omits them.
const (
	DefaultPreferredTime    = "16:30"
	DefaultFlexibilityHours = 1
	DefaultDurationHours    = 2
)

// DefaultPreferredDays is used when a client has no preferred_days.
var DefaultPreferredDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday"}

// Client is a website-maintenance customer loaded from the clients file.
type Client struct {
	ID          string                `json:"id" validate:"required"`
	FirstName   string                `json:"client_first_name" validate:"required"`
	LastName    string                `json:"client_last_name"`
	WebsiteName string                `json:"client_website_name" validate:"required"`
	EmailTo     AddressList           `json:"client_email_to" validate:"min=1,dive,email"`
	EmailCc     AddressList           `json:"client_email_cc" validate:"dive,email"`
	Active      *bool                 `json:"active"`
	Maintenance MaintenancePreference `json:"maintenance_window"`
}

// MaintenancePreference describes when a client would like maintenance to happen.
type MaintenancePreference struct {
	RangeFrom     int      `json:"schedule_range_from" validate:"min=1,max=31"`
	RangeTo       int      `json:"schedule_range_to" validate:"min=1,max=31,gtefield=RangeFrom"`
	PreferredDays []string `json:"preferred_days"`
	PreferredTime string   `json:"preferred_time"`
	// Flexibility and Duration are in hours; nil means the default, an explicit 0 is kept.
	Flexibility   *float64 `json:"flexibility_hours" validate:"omitempty,min=0"`
	Duration      *float64 `json:"duration_hours" validate:"omitempty,min=0"`
	ExcludedDates []string `json:"excluded_dates"`
}

// IsActive reports whether the client takes part in scheduling. Missing means active.
func (c *Client) IsActive() bool {
	return c.Active == nil || *c.Active
}

// FullName joins first and last name.
func (c *Client) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// ApplyDefaults fills the optional preference fields.
func (c *Client) ApplyDefaults() {
	m := &c.Maintenance
	if len(m.PreferredDays) == 0 {
		m.PreferredDays = append([]string(nil), DefaultPreferredDays...)
	}
	if strings.TrimSpace(m.PreferredTime) == "" {
		m.PreferredTime = DefaultPreferredTime
	}
}

// FlexibilityHours is how far the slot may move from the preferred time.
func (m MaintenancePreference) FlexibilityHours() float64 {
	if m.Flexibility == nil {
		return DefaultFlexibilityHours
	}
	return *m.Flexibility
}

// DurationHours is the length of the maintenance window.
func (m MaintenancePreference) DurationHours() float64 {
	if m.Duration == nil {
		return DefaultDurationHours
	}
	return *m.Duration
}

// AddressList accepts either a single address string or a list of addresses.
type AddressList []string

func (a *AddressList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*a = nil
			return nil
		}
		*a = AddressList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("email addresses must be a string or a list of strings: %w", err)
	}
	*a = many
	return nil
}

// String joins the addresses the way they appear in a mail header.
func (a AddressList) String() string {
	return strings.Join(a, ", ")
}
