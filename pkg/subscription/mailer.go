package subscription

import (
	"context"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/email"
	"github.com/dmitrymomot/reviewhub/pkg/email/templates"
)

// TrialEndingRemind is the data of the trial-ending email.
type TrialEndingRemind struct {
	Name       string
	ExpiryDate time.Time
}

// Mailer delivers lifecycle notifications.
type Mailer interface {
	SendTrialEndingRemind(ctx context.Context, to string, data TrialEndingRemind) error
}

// EmailMailer renders notifications with the email templates and sends
// them through an email.EmailSender.
type EmailMailer struct {
	sender email.EmailSender
}

func NewEmailMailer(sender email.EmailSender) *EmailMailer {
	if sender == nil {
		panic("subscription: EmailSender is required")
	}
	return &EmailMailer{sender: sender}
}

func (m *EmailMailer) SendTrialEndingRemind(ctx context.Context, to string, data TrialEndingRemind) error {
	body, err := templates.Render(ctx, templates.TrialEnding(data.Name, data.ExpiryDate))
	if err != nil {
		return err
	}
	return m.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   to,
		Subject:  templates.TrialEndingSubject,
		BodyHTML: body,
		Tag:      "trial-ending",
	})
}
