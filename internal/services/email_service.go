package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// CodeNotifier delivers activation codes to the account holder
type CodeNotifier interface {
	DeliverCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

// SESClient is the slice of the SES API the notifier uses
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESCodeNotifier sends activation codes using AWS SES
type SESCodeNotifier struct {
	sesClient     SESClient
	fromAddress   string
	activationURL string
	logger        *slog.Logger
}

// NewSESCodeNotifier loads the default AWS config for region
func NewSESCodeNotifier(ctx context.Context, region, fromAddress, activationURL string, logger *slog.Logger) (*SESCodeNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESCodeNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, activationURL, logger), nil
}

func NewSESCodeNotifierWithClient(client SESClient, fromAddress, activationURL string, logger *slog.Logger) *SESCodeNotifier {
	return &SESCodeNotifier{
		sesClient:     client,
		fromAddress:   fromAddress,
		activationURL: activationURL,
		logger:        logger,
	}
}

// DeliverCode emails the code with its expiry time
func (s *SESCodeNotifier) DeliverCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	expiry := expiresAt.UTC().Format("15:04 MST")

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Activate your account</h1>
        <p>Your activation code is:</p>
        <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">%s</p>
        <p>Enter it at <a href="%s">%s</a>. The code expires at %s.</p>
        <p>If you didn't create this account, you can ignore this email.</p>
        <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
    </div>
</body>
</html>
`, code, s.activationURL, s.activationURL, expiry)

	textBody := fmt.Sprintf(`Activate your account

Your activation code is: %s

Enter it at %s. The code expires at %s.

If you didn't create this account, you can ignore this email.
`, code, s.activationURL, expiry)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Your activation code")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send activation code via SES",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("activation code sent",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
