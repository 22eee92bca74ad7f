// Package email sends the summit's transactional mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
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
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendHTMLEmail sends an HTML email with a plain text fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}

	boundary := "boundary-flames-summit"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// ApplicationData fills the received and approved templates.
type ApplicationData struct {
	FirstName string
	KindLabel string
	Role      string
}

// SendApplicationReceived confirms a public submission.
func (s *Service) SendApplicationReceived(to, fullName, kindLabel, role string) error {
	data := ApplicationData{FirstName: FirstName(fullName), KindLabel: kindLabel, Role: role}
	html, err := renderTemplate(receivedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render received template: %w", err)
	}
	subject := fmt.Sprintf("We've Received Your %s! 🔥", titleCase(kindLabel))
	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendApprovalNotice tells an applicant they were approved.
func (s *Service) SendApprovalNotice(to, fullName, kindLabel, role string) error {
	data := ApplicationData{FirstName: FirstName(fullName), KindLabel: kindLabel, Role: role}
	html, err := renderTemplate(approvedEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render approval template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "You’re Approved! Welcome to Flames Summit 🔥", html)
}

// SendSubscriberWelcome greets a new waitlist subscriber.
func (s *Service) SendSubscriberWelcome(to string) error {
	html, err := renderTemplate(welcomeEmailTemplate, nil)
	if err != nil {
		return fmt.Errorf("render welcome template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Welcome to the Flames Summit Waitlist! 🔥", html)
}

// FirstName is the greeting name for a full name, "there" when empty.
func FirstName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func titleCase(label string) string {
	words := strings.Fields(label)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("email").Parse(layoutTemplate + tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const layoutTemplate = `{{define "footer"}}
    <hr style="border:none;border-top:1px solid #eaeaea;margin:20px 0;" />
    <div style="text-align:center;font-size:12px;color:#777;">
        <p>Follow us for updates:</p>
        <a href="https://www.instagram.com/flamessummitindia/" style="margin:0 10px;color:#E1306C;font-weight:bold;">Instagram</a>
        <a href="https://www.linkedin.com/company/flamessummitindia/" style="margin:0 10px;color:#0077b5;font-weight:bold;">LinkedIn</a>
        <a href="https://x.com/flamessummit" style="margin:0 10px;color:#1DA1F2;font-weight:bold;">X (Twitter)</a>
    </div>
{{end}}{{define "banner"}}
    <img src="https://www.flamessummit.org/email-banner.png" alt="Flames Summit Banner" style="width: 100%; max-width: 600px; height: auto; margin-bottom: 20px;" />
{{end}}`

const receivedEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
<div style="font-family: Arial, sans-serif; line-height: 1.6; max-width: 600px; margin: auto;">
    {{template "banner"}}
    <h1 style="color: #333;">Hey {{.FirstName}},</h1>
    <p>Thank you for your {{.KindLabel}} for Flames Summit India!</p>
    {{if .Role}}<p>We've successfully received it for <strong>{{.Role}}</strong>.</p>{{else}}<p>We've successfully received it.</p>{{end}}
    <p>Our team will review it and get back to you soon with the next steps.</p>
    <br/>
    <p>The Flames Summit Team</p>
    {{template "footer"}}
</div>
</body>
</html>`

const approvedEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
<div style="font-family: Arial, sans-serif; line-height: 1.6; max-width: 600px; margin: auto;">
    {{template "banner"}}
    <h1 style="color: #333;">You're in, {{.FirstName}}! 🔥</h1>
    <p>Congrats, your {{.KindLabel}}{{if .Role}} for <strong>{{.Role}}</strong>{{end}} has been <strong>approved</strong> for Flames Summit India.</p>
    <p>We're excited to have you with us. We'll follow up soon with onboarding details, timelines, and next steps.</p>
    <br/>
    <p>Team Flames Summit India 2026</p>
    {{template "footer"}}
</div>
</body>
</html>`

const welcomeEmailTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body>
<div style="font-family: Arial, sans-serif; line-height: 1.6; max-width: 600px; margin: auto;">
    {{template "banner"}}
    <h1 style="color: #333;">Hey Folk,</h1>
    <p style="color: #555;">Thank you for subscribing!</p>
    <p style="color: #555;">You're officially on the waitlist for Flames Summit 2026.</p>
    <p style="color: #555;">Stay tuned for updates, early-bird tickets, and behind-the-scenes insights!</p>
    <br/>
    <p style="color: #555;">Warm regards,<br/>Team Flames Summit India 2026</p>
    {{template "footer"}}
</div>
</body>
</html>`
