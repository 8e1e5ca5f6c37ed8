package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maintenance_scheduler/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	unauthorizedText = "Error: you are not allowed to run this command."
	runTimeout       = 30 * time.Minute
)

// RegisterOpsHandlers registers the operator commands.
// Every command except /start is restricted to the configured admin Telegram ID.
func RegisterOpsHandlers(ctx context.Context, b *telebot.Bot, opsService *app.OpsService, adminTelegramID int64, baseLogger *logrus.Entry) {
	b.Handle("/start", func(c telebot.Context) error {
		logCtx := baseLogger.WithFields(logrus.Fields{"handler": "/start", "sender_id": c.Sender().ID})
		logCtx.Info("Command received")

		if c.Sender().ID == adminTelegramID {
			return c.Send(fmt.Sprintf("Hello, %s! The maintenance scheduler is running. Use /help for the list of commands.", c.Sender().FirstName))
		}
		return c.Send("Hello! This bot reports website maintenance scheduling runs to its operator.")
	})

	b.Handle("/help", adminOnly(baseLogger, "/help", adminTelegramID, func(c telebot.Context, _ *logrus.Entry) error {
		return c.Send(helpText(), &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
	}))

	b.Handle("/status", adminOnly(baseLogger, "/status", adminTelegramID, func(c telebot.Context, logCtx *logrus.Entry) error {
		statuses, err := opsService.Status(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err, "Failed to load client status")
		}
		logCtx.WithField("clients_count", len(statuses)).Info("Status retrieved")
		return c.Send(FormatStatus(statuses))
	}))

	b.Handle("/clients", adminOnly(baseLogger, "/clients", adminTelegramID, func(c telebot.Context, logCtx *logrus.Entry) error {
		statuses, err := opsService.Status(ctx, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err, "Failed to list clients")
		}
		return c.Send(FormatClients(statuses))
	}))

	runHandler := func(preview bool) func(telebot.Context, *logrus.Entry) error {
		return func(c telebot.Context, logCtx *logrus.Entry) error {
			logCtx = logCtx.WithField("preview", preview)
			if err := c.Send("Starting scheduling run..."); err != nil {
				logCtx.WithError(err).Warn("Failed to acknowledge run command")
			}

			runCtx, cancel := context.WithTimeout(ctx, runTimeout)
			defer cancel()

			report, err := opsService.TriggerRun(runCtx, c.Sender().ID, preview)
			if err != nil {
				if errors.Is(err, app.ErrRunInProgress) {
					logCtx.Warn("Run requested while another run is in progress")
					return c.Send("Another scheduling run is already in progress.")
				}
				return replyError(c, logCtx, err, "Scheduling run failed")
			}
			logCtx.WithField("run_id", report.RunID).Info("Run triggered from chat finished")
			return c.Send(app.FormatRunReport(report), &telebot.SendOptions{DisableWebPagePreview: true})
		}
	}
	b.Handle("/run", adminOnly(baseLogger, "/run", adminTelegramID, runHandler(false)))
	b.Handle("/preview", adminOnly(baseLogger, "/preview", adminTelegramID, runHandler(true)))
}

func adminOnly(baseLogger *logrus.Entry, command string, adminTelegramID int64, next func(telebot.Context, *logrus.Entry) error) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		logCtx := baseLogger.WithFields(logrus.Fields{
			"handler":   command,
			"sender_id": c.Sender().ID,
		})
		logCtx.Info("Command received")

		if c.Sender().ID != adminTelegramID {
			logCtx.Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}
		return next(c, logCtx)
	}
}

func replyError(c telebot.Context, logCtx *logrus.Entry, err error, msg string) error {
	logWithError := logCtx.WithError(err)
	if errors.Is(err, app.ErrAdminNotAuthorized) {
		logWithError.Warn("Admin not authorized (service level)")
		return c.Send(unauthorizedText)
	}
	logWithError.Error(msg)
	return c.Send(fmt.Sprintf("%s: %s", msg, err.Error()))
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Available commands:\n\n")
	b.WriteString("`/status`\n - Last notification and maintenance date per client.\n\n")
	b.WriteString("`/clients`\n - Configured clients and their maintenance preferences.\n\n")
	b.WriteString("`/run`\n - Run the scheduling pass now.\n\n")
	b.WriteString("`/preview`\n - Render email previews without booking or sending.\n\n")
	b.WriteString("`/help`\n - Show this message.")
	return b.String()
}

// FormatStatus renders one line per client with its ledger record.
func FormatStatus(statuses []app.ClientStatus) string {
	if len(statuses) == 0 {
		return "No clients configured."
	}
	var b strings.Builder
	b.WriteString("--- Notification status ---\n")
	for _, st := range statuses {
		last, maint := "never", "none"
		if st.Record != nil {
			last = st.Record.LastNotificationSent
			maint = st.Record.LastMaintenanceDate
		}
		fmt.Fprintf(&b, "%s (%s): notified %s, maintenance %s\n", st.Client.WebsiteName, st.Client.ID, last, maint)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatClients renders the configured clients with their preferences.
func FormatClients(statuses []app.ClientStatus) string {
	if len(statuses) == 0 {
		return "No clients configured."
	}
	var b strings.Builder
	b.WriteString("--- Clients ---\n")
	for _, st := range statuses {
		c := st.Client
		status := "inactive"
		if c.IsActive() {
			status = "active"
		}
		p := c.Maintenance
		fmt.Fprintf(&b, "%s: %s, %s, days %d-%d, %s at %s, %s\n",
			c.ID, c.FullName(), c.WebsiteName, p.RangeFrom, p.RangeTo,
			strings.Join(p.PreferredDays, "/"), p.PreferredTime, status)
	}
	return strings.TrimRight(b.String(), "\n")
}
