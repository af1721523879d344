// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config  Config
	server  string
	auth    smtp.Auth
	send    sendFunc
	breaker *gobreaker.CircuitBreaker
}

// NewService creates a new email service. Sends go through a circuit breaker
// so a dead SMTP relay fails fast instead of stalling every invite.
func NewService(config Config, log logrus.FieldLogger) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "smtp",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).Warn("circuit breaker state changed")
			},
		}),
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends an HTML email
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-taskflow"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	// Plain text part (fallback)
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	// HTML part
	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
	})
	return err
}

type InvitationData struct {
	AppName       string
	InviterName   string
	WorkspaceName string
	InviteURL     string
}

// SendInvitationEmail sends a workspace invitation with the redemption link.
func (s *Service) SendInvitationEmail(to, inviterName, workspaceName, inviteURL string) error {
	data := InvitationData{
		AppName:       s.appName(),
		InviterName:   inviterName,
		WorkspaceName: workspaceName,
		InviteURL:     inviteURL,
	}

	subject := fmt.Sprintf("You have been invited to %s", workspaceName)
	html, err := renderTemplate(invitationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render invitation template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func (s *Service) appName() string {
	if s.config.FromName != "" {
		return s.config.FromName
	}
	return "Taskflow"
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const invitationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Join {{.WorkspaceName}} on {{.AppName}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .link { word-break: break-all; color: #0066cc; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>You're invited to {{.WorkspaceName}}</h2>

    <p>{{.InviterName}} invited you to collaborate in the <strong>{{.WorkspaceName}}</strong> workspace.</p>

    <p>
        <a href="{{.InviteURL}}" class="button">Accept Invitation</a>
    </p>

    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.InviteURL}}</p>

    <p>This invitation will expire in 7 days.</p>

    <div class="footer">
        <p>If you were not expecting this invitation, you can safely ignore this email.</p>
    </div>
</body>
</html>`
