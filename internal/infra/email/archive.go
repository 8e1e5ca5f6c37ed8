package email

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maintenance_scheduler/internal/app"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/mail"
)

// Metadata is written next to every archived email.
type Metadata struct {
	Timestamp       string `json:"timestamp"`
	ClientID        string `json:"client_id"`
	ClientName      string `json:"client_name"`
	WebsiteName     string `json:"website_name"`
	MaintenanceDate string `json:"maintenance_date"`
	ToEmail         string `json:"to_email"`
	CcEmail         string `json:"cc_email"`
	Subject         string `json:"subject"`
}

// Archive writes sent emails under outputDir and previews under previewDir.
type Archive struct {
	outputDir  string
	previewDir string
}

func NewArchive(outputDir, previewDir string) *Archive {
	return &Archive{outputDir: outputDir, previewDir: previewDir}
}

// SaveSent stores a copy as <outputDir>/<YYYYMMDD_HHMMSS>_<client>_<website>/.
func (a *Archive) SaveSent(msg *mail.Message, c *client.Client, w app.Window, sentAt time.Time) (string, error) {
	stamp := sentAt.Format("20060102_150405")
	name := fmt.Sprintf("%s_%s_%s", stamp,
		strings.ReplaceAll(strings.ToLower(c.FirstName), " ", "_"),
		strings.ReplaceAll(strings.ToLower(c.WebsiteName), ".", "_"))
	dir := filepath.Join(a.outputDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	meta := Metadata{
		Timestamp:       stamp,
		ClientID:        c.ID,
		ClientName:      c.FirstName,
		WebsiteName:     c.WebsiteName,
		MaintenanceDate: w.Start.Format(DateFormat),
		ToEmail:         strings.Join(msg.To, ", "),
		CcEmail:         strings.Join(msg.Cc, ", "),
		Subject:         msg.Subject,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	files := map[string][]byte{
		"metadata.json": raw,
		"email.txt":     []byte(textCopy(msg)),
		"email.html":    []byte(htmlCopy(msg)),
	}
	for fname, content := range files {
		if err := os.WriteFile(filepath.Join(dir, fname), content, 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", fname, err)
		}
	}
	return dir, nil
}

// SavePreview writes email_preview.txt and email_preview.html under <previewDir>/<client id>/.
func (a *Archive) SavePreview(msg *mail.Message, c *client.Client) (string, error) {
	dir := filepath.Join(a.previewDir, c.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	var page bytes.Buffer
	if err := previewPage.Execute(&page, previewData{Msg: msg, Body: htmltemplate.HTML(msg.HTMLBody)}); err != nil {
		return "", fmt.Errorf("failed to render preview page: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "email_preview.txt"), []byte(textCopy(msg)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write text preview: %w", err)
	}
	htmlPath := filepath.Join(dir, "email_preview.html")
	if err := os.WriteFile(htmlPath, page.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write html preview: %w", err)
	}
	return htmlPath, nil
}

func textCopy(msg *mail.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\nFrom: %s\n\n", msg.Subject, msg.From)
	b.WriteString(msg.TextBody)
	return b.String()
}

func htmlCopy(msg *mail.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- To: %s -->\n", strings.Join(msg.To, ", "))
	if len(msg.Cc) > 0 {
		fmt.Fprintf(&b, "<!-- Cc: %s -->\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(&b, "<!-- Subject: %s -->\n<!-- From: %s -->\n\n", msg.Subject, msg.From)
	b.WriteString(msg.HTMLBody)
	return b.String()
}

type previewData struct {
	Msg  *mail.Message
	Body htmltemplate.HTML
}

var previewPage = htmltemplate.Must(htmltemplate.New("preview").Funcs(htmltemplate.FuncMap{
	"join": strings.Join,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Email Preview - {{.Msg.Subject}}</title>
<style>
body { margin: 0; padding: 20px; font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; background: #f5f5f5; }
.email-client { max-width: 800px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); overflow: hidden; }
.email-header { background: #f8f9fa; padding: 20px; border-bottom: 1px solid #dee2e6; }
.header-row { margin: 8px 0; display: flex; }
.header-label { width: 80px; color: #6c757d; font-weight: 500; }
.header-content { color: #212529; flex: 1; }
.email-body { padding: 20px; }
.preview-note { text-align: center; padding: 10px; background: #e9ecef; color: #6c757d; font-size: 0.9em; margin-bottom: 20px; }
</style>
</head>
<body>
<div class="preview-note">Email Preview - How the email will appear to recipients</div>
<div class="email-client">
  <div class="email-header">
    <div class="header-row"><div class="header-label">From:</div><div class="header-content">{{.Msg.From}}</div></div>
    <div class="header-row"><div class="header-label">To:</div><div class="header-content">{{join .Msg.To ", "}}</div></div>
    {{- if .Msg.Cc}}
    <div class="header-row"><div class="header-label">Cc:</div><div class="header-content">{{join .Msg.Cc ", "}}</div></div>
    {{- end}}
    <div class="header-row"><div class="header-label">Subject:</div><div class="header-content">{{.Msg.Subject}}</div></div>
    <div class="header-row"><div class="header-label">Date:</div><div class="header-content">{{.Msg.Date.Format "Mon, 02 Jan 2006 15:04:05 -0700"}}</div></div>
  </div>
  <div class="email-body">{{.Body}}</div>
</div>
</body>
</html>
`))
