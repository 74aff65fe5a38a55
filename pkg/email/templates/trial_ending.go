package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

const TrialEndingSubject = "Your ReviewHub trial is ending soon"

// TrialEnding tells a company owner when the free trial expires.
func TrialEnding(name string, expiresAt time.Time) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		greeting := "Hello"
		if name != "" {
			greeting = "Hello " + templ.EscapeString(name)
		}
		_, err := fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<body style="font-family:Arial,sans-serif;color:#1f2937;">
<p>%s,</p>
<p>Your ReviewHub trial ends on <strong>%s</strong>.</p>
<p>Add a payment method before then to keep collecting and publishing reviews without interruption.</p>
</body>
</html>`, greeting, templ.EscapeString(expiresAt.UTC().Format("January 2, 2006")))
		return err
	})
}
