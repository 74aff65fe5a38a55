package email

// Config holds the mail transport settings. Postmark tokens may be empty
// outside production, in which case NewSender writes emails to DevDir.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL,required"`
	SupportEmail         string `env:"SUPPORT_EMAIL,required"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}

// HasPostmark reports whether both Postmark tokens are set.
func (c Config) HasPostmark() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
