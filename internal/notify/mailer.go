package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sender is the subset of the SES client the mailer uses.
type sender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Mailer sends account e-mails through Amazon SES. With no sender
// address configured it only logs.
type Mailer struct {
	client     sender
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

func NewMailer(ctx context.Context, region, fromEmail, fromName, appBaseURL string) (*Mailer, error) {
	if fromEmail == "" {
		log.Println("[notify] email disabled: SES_FROM_EMAIL not configured")
		return &Mailer{appBaseURL: appBaseURL}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("[notify] email enabled: from=%s, region=%s", fromEmail, region)
	return &Mailer{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

func (m *Mailer) IsEnabled() bool {
	return m.enabled
}

func (m *Mailer) SendApprovalEmail(ctx context.Context, toEmail, toName string) error {
	subject := "Your exam account has been approved"
	body := fmt.Sprintf(`Hi %s,

Your account has been approved. You can now sign in and take the exams assigned to you:
%s/login

---
This is an automated email. Please do not reply.
`, toName, m.appBaseURL)
	return m.send(ctx, toEmail, subject, body)
}

func (m *Mailer) SendRejectionEmail(ctx context.Context, toEmail, toName string) error {
	subject := "Your exam account request"
	body := fmt.Sprintf(`Hi %s,

Your registration could not be approved. Contact your administrator if you believe this is a mistake.

---
This is an automated email. Please do not reply.
`, toName)
	return m.send(ctx, toEmail, subject, body)
}

func (m *Mailer) send(ctx context.Context, toEmail, subject, textBody string) error {
	if !m.enabled {
		log.Printf("[notify] skipping email (disabled): %q to %s", subject, toEmail)
		return nil
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	out, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	log.Printf("[notify] sent %q to %s (message %s)", subject, toEmail, aws.ToString(out.MessageId))
	return nil
}
