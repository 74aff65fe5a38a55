// Package environment names the deployment stage (development, staging,
// production) and carries it through context.Context.
//
// The stage decides process-wide defaults such as log format and whether
// outgoing email is delivered or written to disk:
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	if env.IsProduction() {
//	    // real delivery
//	}
package environment
