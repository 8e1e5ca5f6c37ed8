package email

import (
	"context"
	"fmt"

	"maintenance_scheduler/internal/domain/mail"
	"maintenance_scheduler/internal/infra/config"

	"github.com/sirupsen/logrus"
)

// NewMailer picks the transport named by EMAIL_SENDER.
func NewMailer(ctx context.Context, cfg *config.AppConfig, settings *config.Settings, logger *logrus.Entry) (mail.Mailer, error) {
	switch cfg.EmailSender {
	case "ses":
		return NewSESSenderFromEnv(ctx, cfg.AWSRegion, logger.WithField("transport", "ses"))
	case "smtp":
		return NewSMTPSender(SMTPConfig{
			Host:     settings.Email.SMTPHost,
			Port:     settings.Email.SMTPPort,
			UseTLS:   settings.Email.UseTLS(),
			Username: settings.Email.SMTPUsername,
			Password: settings.Email.SMTPPassword,
		}, logger.WithField("transport", "smtp")), nil
	default:
		return nil, fmt.Errorf("unknown email sender %q", cfg.EmailSender)
	}
}
