package email

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dmitrymomot/reviewhub/pkg/environment"
)

// EmailSender sends one transactional email.
type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"` // Postmark analytics tag
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func (p SendEmailParams) Validate() error {
	switch {
	case p.SendTo == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidParams)
	case !emailRegex.MatchString(p.SendTo):
		return fmt.Errorf("%w: recipient %q is not a valid email address", ErrInvalidParams, p.SendTo)
	case p.Subject == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidParams)
	case p.BodyHTML == "":
		return fmt.Errorf("%w: body is required", ErrInvalidParams)
	}
	return nil
}

// NewSender picks the transport for env. Production always uses Postmark;
// other environments fall back to the file-writing DevSender when the
// Postmark tokens are not configured.
func NewSender(cfg Config, env environment.Environment) (EmailSender, error) {
	if env.IsProduction() || cfg.HasPostmark() {
		return NewPostmarkClient(cfg)
	}
	return NewDevSender(cfg.DevDir), nil
}
