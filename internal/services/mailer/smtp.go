package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/amaumene/sequelarr/internal/config"
	"github.com/rs/zerolog"
)

const sequelTemplate = `<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>New release: {{.SuccessorTitle}}</h2>
  <p>Hi {{if .ToName}}{{.ToName}}{{else}}there{{end}},</p>
  <p>We found a follow-up to <strong>{{.OriginalTitle}}</strong> that you watched.</p>
  {{if .PosterURL}}<p><img src="{{.PosterURL}}" alt="{{.SuccessorTitle}}" width="200"/></p>{{end}}
  <ul>
    {{if .Platform}}<li>Available on {{.Platform}}</li>{{end}}
    {{if .ReleaseDate}}<li>Released {{.ReleaseDate}}</li>{{end}}
  </ul>
  <p style="font-size: small; color: #888;">
    <a href="{{.UnsubscribeURL}}">Unsubscribe from sequel notifications</a>
  </p>
</body>
</html>`

var sequelTmpl = template.Must(template.New("sequel").Parse(sequelTemplate))

// SMTPSender sends notification emails over SMTP
type SMTPSender struct {
	addr      string
	auth      smtp.Auth
	fromEmail string
	fromName  string
	logger    zerolog.Logger
}

// NewSMTPSender creates an SMTP sender from configuration
func NewSMTPSender(cfg *config.Config, logger zerolog.Logger) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}

	return &SMTPSender{
		addr:      fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth:      auth,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

// Send delivers one sequel notification email
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := sequelTmpl.Execute(&body, msg); err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}

	var raw bytes.Buffer
	fmt.Fprintf(&raw, "From: %s <%s>\r\n", s.fromName, s.fromEmail)
	fmt.Fprintf(&raw, "To: %s\r\n", msg.To)
	fmt.Fprintf(&raw, "Subject: New release: %s\r\n", msg.SuccessorTitle)
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.Write(body.Bytes())

	if err := smtp.SendMail(s.addr, s.auth, s.fromEmail, []string{msg.To}, raw.Bytes()); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}

	s.logger.Debug().
		Str("to", msg.To).
		Str("successor", msg.SuccessorTitle).
		Msg("Notification email sent")

	return nil
}
