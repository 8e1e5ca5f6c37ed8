package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"maintenance_scheduler/internal/app"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/mail"
)

// Layouts used in rendered messages.
const (
	DateFormat = "Monday, January 02, 2006"
	TimeFormat = "03:04 PM"
)

// Sender identifies the company in outgoing messages.
type Sender struct {
	CompanyName string
	SenderName  string
	SenderEmail string
}

// TemplateData is what the subject and body templates see.
type TemplateData struct {
	ClientFirstName     string
	ClientLastName      string
	ClientWebsiteName   string
	MaintenanceDate     string
	MaintenanceStart    string
	MaintenanceEnd      string
	MaintenanceTimezone string
	MaintenanceDuration float64
	SenderName          string
	CompanyName         string
	// Kept for templates written against the older placeholder names.
	WebsiteName string
}

// Renderer produces the plain-text and HTML notification from templates.
type Renderer struct {
	sender  Sender
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
	now     func() time.Time
}

// NewRenderer parses the subject template string and the two body template files.
func NewRenderer(sender Sender, subjectTemplate, textPath, htmlPath string) (*Renderer, error) {
	subject, err := texttemplate.New("subject").Option("missingkey=error").Parse(subjectTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid subject template: %w", err)
	}
	text, err := texttemplate.ParseFiles(textPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template %s: %w", textPath, err)
	}
	html, err := htmltemplate.ParseFiles(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html template %s: %w", htmlPath, err)
	}
	return &Renderer{sender: sender, subject: subject, text: text, html: html, now: time.Now}, nil
}

// Render implements app.EmailRenderer.
func (r *Renderer) Render(c *client.Client, w app.Window) (*mail.Message, error) {
	data := TemplateData{
		ClientFirstName:     c.FirstName,
		ClientLastName:      c.LastName,
		ClientWebsiteName:   c.WebsiteName,
		MaintenanceDate:     w.Start.Format(DateFormat),
		MaintenanceStart:    w.Start.Format(TimeFormat),
		MaintenanceEnd:      w.End.Format(TimeFormat),
		MaintenanceTimezone: w.Start.Location().String(),
		MaintenanceDuration: c.Maintenance.DurationHours(),
		SenderName:          r.sender.SenderName,
		CompanyName:         r.sender.CompanyName,
		WebsiteName:         c.WebsiteName,
	}

	var subject, text, html bytes.Buffer
	if err := r.subject.Execute(&subject, data); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("failed to render text body: %w", err)
	}
	if err := r.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed to render html body: %w", err)
	}

	return &mail.Message{
		From:     r.sender.SenderEmail,
		To:       append([]string(nil), c.EmailTo...),
		Cc:       append([]string(nil), c.EmailCc...),
		Subject:  strings.TrimSpace(subject.String()),
		Date:     r.now(),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}
