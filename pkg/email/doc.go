// Package email sends transactional emails.
//
// EmailSender has two implementations: a Postmark client for real delivery
// and DevSender, which writes every message to a directory as an HTML file
// with a JSON envelope next to it. NewSender chooses between them from the
// configuration and the runtime environment.
//
//	sender, err := email.NewSender(cfg, environment.Production)
//	if err != nil {
//		return err
//	}
//	body, err := templates.Render(ctx, templates.TrialEnding(name, expiresAt))
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "owner@example.com",
//		Subject:  templates.TrialEndingSubject,
//		BodyHTML: body,
//		Tag:      "trial-ending",
//	})
//
// Invalid parameters fail with ErrInvalidParams before any network call;
// delivery failures are joined with ErrFailedToSendEmail.
package email
