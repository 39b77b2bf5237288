package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/verisend/server/internal/config"
)

// Service delivers verification tokens over email. Without an API key it
// runs in log-only mode, which is how local development works.
type Service struct {
	config       config.EmailConfig
	resendClient *resend.Client
	templates    *template.Template
	logger       zerolog.Logger
}

// verificationData feeds the verification email template.
type verificationData struct {
	Code          string
	ExpiresAt     string
	ValidDuration string
	CurrentYear   int
}

const verificationTemplate = `
{{define "verification.html"}}
<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #1a1a2e;">
  <h2>Your verification code</h2>
  <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
  <p>This code expires at {{.ExpiresAt}} ({{.ValidDuration}} from now).</p>
  <p>If you did not request this code, you can ignore this email.</p>
  <p style="color: #888; font-size: 12px;">&copy; {{.CurrentYear}} Verisend</p>
</body>
</html>
{{end}}
`

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.From == "" {
		return nil, fmt.Errorf("email sender address not configured")
	}
	if err := validateEmailAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender email in config: %w", err)
	}

	templates, err := template.New("email").Parse(verificationTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	svc := &Service{
		config:    cfg,
		templates: templates,
		logger:    logger.With().Str("component", "email").Logger(),
	}
	if cfg.ResendAPIKey != "" {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// SendVerification emails the code to the identifier. The identifier must be
// a valid email address.
func (s *Service) SendVerification(ctx context.Context, identifier, value string, expiresAt time.Time) error {
	if err := validateEmailAddress(identifier); err != nil {
		return fmt.Errorf("invalid recipient email: %w", err)
	}

	if s.resendClient == nil {
		s.logger.Info().
			Str("to", identifier).
			Str("code", value).
			Time("expires_at", expiresAt).
			Msg("no email API key configured, logging verification code instead")
		return nil
	}

	data := verificationData{
		Code:          value,
		ExpiresAt:     expiresAt.UTC().Format(time.RFC1123),
		ValidDuration: time.Until(expiresAt).Round(time.Minute).String(),
		CurrentYear:   time.Now().Year(),
	}
	htmlBody, err := s.renderTemplate("verification.html", data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}

	subject := "Your Verisend verification code"
	if err := s.sendViaResend(ctx, identifier, subject, htmlBody); err != nil {
		return err
	}

	s.logger.Info().
		Str("to", identifier).
		Time("expires_at", expiresAt).
		Msg("verification email sent")
	return nil
}

// validateEmailAddress rejects malformed addresses and header injection
// attempts.
func validateEmailAddress(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}

	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("invalid email address: contains newline characters")
	}

	return nil
}

func (s *Service) renderTemplate(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
