package email

import (
	"context"
	"fmt"

	"maintenance_scheduler/internal/domain/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/sirupsen/logrus"
)

// SESAPI is the part of the SES client the sender uses.
type SESAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESSender implements mail.Mailer through Amazon SES raw email.
type SESSender struct {
	api    SESAPI
	logger *logrus.Entry
}

// NewSESSenderFromEnv builds an SES client from the default AWS credential chain.
func NewSESSenderFromEnv(ctx context.Context, region string, logger *logrus.Entry) (*SESSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESSender(ses.NewFromConfig(cfg), logger), nil
}

func NewSESSender(api SESAPI, logger *logrus.Entry) *SESSender {
	return &SESSender{api: api, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg *mail.Message) error {
	raw, err := BuildMIME(msg)
	if err != nil {
		return err
	}
	out, err := s.api.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(msg.From),
		Destinations: msg.Recipients(),
		RawMessage:   &types.RawMessage{Data: raw},
	})
	if err != nil {
		return fmt.Errorf("SES send failed: %w", err)
	}
	s.logger.Infof("Email sent via SES (ID: %s) to %v", aws.ToString(out.MessageId), msg.Recipients())
	return nil
}
