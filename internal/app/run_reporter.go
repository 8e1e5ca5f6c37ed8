package app

import (
	"context"
	"fmt"
	"strings"

	domainTelegram "maintenance_scheduler/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// TelegramRunReporter sends the run summary to the admin chat.
type TelegramRunReporter struct {
	telegramClient domainTelegram.Client
	adminChatID    int64
	logger         *logrus.Entry
}

func NewTelegramRunReporter(tc domainTelegram.Client, adminChatID int64, logger *logrus.Entry) *TelegramRunReporter {
	return &TelegramRunReporter{telegramClient: tc, adminChatID: adminChatID, logger: logger}
}

func (r *TelegramRunReporter) Report(_ context.Context, report *RunReport) error {
	text := FormatRunReport(report)
	if err := r.telegramClient.SendMessage(r.adminChatID, text, &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("failed to send run report to chat %d: %w", r.adminChatID, err)
	}
	r.logger.WithField("run_id", report.RunID).Info("Run report sent to admin chat")
	return nil
}

// FormatRunReport renders a plain-text summary, one line per client.
func FormatRunReport(report *RunReport) string {
	var b strings.Builder
	mode := "run"
	if report.Preview {
		mode = "preview run"
	}
	fmt.Fprintf(&b, "Maintenance %s %s: %d/%d clients OK\n",
		mode, report.StartedAt.Format("2006-01-02 15:04"), report.Succeeded(), len(report.Results))

	for _, res := range report.Results {
		line := fmt.Sprintf("- %s (%s): %s", res.Website, res.ClientID, res.State)
		if res.Window != nil {
			line += fmt.Sprintf(", %s", res.Window.Start.Format("Mon Jan 2 15:04"))
		}
		if res.Reason != "" {
			line += fmt.Sprintf(" [%s]", res.Reason)
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
