// ABOUTME: SMTP email delivery using go-mail. Dial-per-send for sporadic invite traffic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wneessen/go-mail"
)

// SmtpConfig holds SMTP connection parameters sourced from global env vars.
type SmtpConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLS      bool
}

// EmailSend sends an HTML+plaintext multipart email to all recipients via BCC.
// Uses DialAndSend (dial-per-send), no persistent SMTP connection.
func EmailSend(ctx context.Context, cfg SmtpConfig, recipients []string, subject, htmlBody, textBody string) error {
	if len(recipients) == 0 {
		return errors.New("email send: no recipients")
	}

	// Strip CR/LF from subject to prevent header injection.
	subject = strings.NewReplacer("\r", "", "\n", "").Replace(subject)

	m := mail.NewMsg()
	if err := m.FromFormat("Leadflow", cfg.From); err != nil {
		return fmt.Errorf("email send: set from: %w", err)
	}
	if err := m.Bcc(recipients...); err != nil {
		return fmt.Errorf("email send: set bcc: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, textBody)
	m.AddAlternativeString(mail.TypeTextHTML, htmlBody)

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain))
		opts = append(opts, mail.WithUsername(cfg.Username))
		opts = append(opts, mail.WithPassword(cfg.Password))
	}
	if cfg.TLS {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("email send: create client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

// InvitationEmail renders the subject and bodies for a member invitation.
// tempPassword is empty when the invitee already had an account.
func InvitationEmail(tenantName, fullName, roleLabel, tempPassword, loginURL string) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("You have been added to %s on Leadflow", tenantName)

	var text strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n", fullName)
	fmt.Fprintf(&text, "You have been added to %s as %s.\n\n", tenantName, roleLabel)
	if tempPassword != "" {
		fmt.Fprintf(&text, "Your temporary password is: %s\nPlease change it after your first sign-in.\n\n", tempPassword)
	}
	fmt.Fprintf(&text, "Sign in at %s\n", loginURL)

	var h strings.Builder
	fmt.Fprintf(&h, "<p>Hi %s,</p>", html.EscapeString(fullName))
	fmt.Fprintf(&h, "<p>You have been added to <strong>%s</strong> as <strong>%s</strong>.</p>",
		html.EscapeString(tenantName), html.EscapeString(roleLabel))
	if tempPassword != "" {
		fmt.Fprintf(&h, "<p>Your temporary password is: <code>%s</code><br>Please change it after your first sign-in.</p>",
			html.EscapeString(tempPassword))
	}
	fmt.Fprintf(&h, `<p><a href="%s">Sign in to Leadflow</a></p>`, html.EscapeString(loginURL))

	return subject, h.String(), text.String()
}
