// Package notify dispatches the waitlist confirmation email through AWS SES.
// Dispatch is best-effort: persistence has already committed by the time the
// notifier runs, and its outcome is only reported, never allowed to fail a
// request.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/velocityfunds/waitlist-service/internal/config"
	"github.com/velocityfunds/waitlist-service/internal/pkg/logger"
	"github.com/velocityfunds/waitlist-service/internal/waitlist"
)

const (
	confirmationSubject = "You're on the Velocity Funds waitlist"

	confirmationHTML = `<p>Thanks for joining the Velocity Funds waitlist.</p>
<p>We'll email you when your spot opens up. No action needed until then.</p>`

	confirmationText = "Thanks for joining the Velocity Funds waitlist.\n" +
		"We'll email you when your spot opens up. No action needed until then.\n"
)

// SESNotifier sends the confirmation email via AWS SES using the SDK v2.
// Missing credentials or a missing sender address leave the client nil and
// every Notify resolves to skipped.
type SESNotifier struct {
	client    *sesv2.Client
	fromName  string
	fromEmail string
}

// NewSESNotifier creates a notifier. Initializes the AWS SDK client only
// when credentials and a sender address are configured.
func NewSESNotifier(cfg config.SESConfig) *SESNotifier {
	n := &SESNotifier{
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" && cfg.FromEmail != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
		} else {
			n.client = sesv2.NewFromConfig(awsCfg)
		}
	}

	return n
}

// Notify sends the confirmation email. Unconfigured provider resolves to
// skipped (not an error); a provider-side failure resolves to failed and is
// logged. Neither blocks nor rolls back the insert.
func (n *SESNotifier) Notify(ctx context.Context, email string) waitlist.NotifyStatus {
	if n.client == nil {
		return waitlist.NotifySkipped
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(confirmationSubject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(confirmationHTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(confirmationText), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		logger.Error("confirmation email failed", "email", email, "error", err.Error())
		return waitlist.NotifyFailed
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	logger.Info("confirmation email sent", "email", email, "message_id", messageID)

	return waitlist.NotifySent
}
