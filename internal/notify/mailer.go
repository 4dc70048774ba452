package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/radiusdt/storefront-notify/internal/config"
	"go.uber.org/zap"
)

// Message is one rendered notification email.
type Message struct {
	To             string
	Subject        string
	HTML           string
	Text           string
	NotificationID string
	CampaignID     string
}

// Mailer delivers rendered emails.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// SESMailer sends through Amazon SES v2.
type SESMailer struct {
	client    *sesv2.Client
	from      string
	configSet string
}

// NewSESMailer builds an SES client with static credentials.
func NewSESMailer(ctx context.Context, cfg config.MailConfig) (*SESMailer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	from := cfg.FromEmail
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromEmail)
	}
	return &SESMailer{
		client:    sesv2.NewFromConfig(awsCfg),
		from:      from,
		configSet: cfg.ConfigSet,
	}, nil
}

func (m *SESMailer) Send(ctx context.Context, msg *Message) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if m.configSet != "" {
		input.ConfigurationSetName = aws.String(m.configSet)
	}
	if msg.NotificationID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("notification_id"), Value: aws.String(msg.NotificationID)})
	}
	if msg.CampaignID != "" {
		input.EmailTags = append(input.EmailTags, types.MessageTag{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)})
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("SES send to %s failed: %w", msg.To, err)
	}
	return nil
}

// LogMailer only logs messages. Used when SES is not configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg *Message) error {
	m.logger.Info("email not sent, no transport configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("notification_id", msg.NotificationID),
	)
	return nil
}
