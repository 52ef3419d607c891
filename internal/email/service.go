package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"

	defaultSendTimeout = 10 * time.Second
)

// ErrInvalidRecipient marks messages that can never be delivered.
var ErrInvalidRecipient = errors.New("invalid recipient email")

// Service renders transactional emails and sends them over SMTP or Resend.
type Service struct {
	config       config.EmailConfig
	provider     string
	templates    *template.Template
	resendClient *resend.Client
	logger       zerolog.Logger
}

// RegistrationData holds the fields rendered into registration emails.
type RegistrationData struct {
	AttendeeName   string
	AttendeeEmail  string
	EventName      string
	EventDate      time.Time
	Location       string
	Description    string
	Price          float64
	OrganizerName  string
	OrganizerEmail string
	CalendarLink   string
	CurrentYear    int
}

func NewService(cfg config.EmailConfig, logger zerolog.Logger) (*Service, error) {
	if cfg.Enabled {
		if err := validateEmailAddress(cfg.From); err != nil {
			return nil, fmt.Errorf("invalid sender email in config: %w", err)
		}
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderSMTP
	}

	svc := &Service{
		config:    cfg,
		provider:  provider,
		templates: templates,
		logger:    logger.With().Str("component", "email").Str("provider", provider).Logger(),
	}
	if cfg.Enabled && provider == ProviderResend {
		svc.resendClient = resend.NewClient(cfg.ResendAPIKey)
	}
	return svc, nil
}

// Enabled reports whether messages are actually delivered.
func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// SendRegistrationConfirmation tells the attendee their registration succeeded.
func (s *Service) SendRegistrationConfirmation(ctx context.Context, data RegistrationData) error {
	if data.CalendarLink != "" {
		if err := validateLinkURL(data.CalendarLink); err != nil {
			return fmt.Errorf("invalid calendar link: %w", err)
		}
	}
	subject := "Registration Confirmation: " + data.EventName
	return s.sendTemplate(ctx, data.AttendeeEmail, subject, "registration_confirmation.html", data)
}

// SendRegistrationCancellation tells the attendee their registration was removed.
func (s *Service) SendRegistrationCancellation(ctx context.Context, data RegistrationData) error {
	subject := "Registration Cancelled: " + data.EventName
	return s.sendTemplate(ctx, data.AttendeeEmail, subject, "registration_cancellation.html", data)
}

func (s *Service) sendTemplate(ctx context.Context, to, subject, name string, data RegistrationData) error {
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	if data.CurrentYear == 0 {
		data.CurrentYear = time.Now().Year()
	}

	htmlBody, err := s.renderTemplate(name, data)
	if err != nil {
		return err
	}
	return s.deliver(ctx, message{
		to:       to,
		subject:  subject,
		html:     htmlBody,
		category: strings.TrimSuffix(name, ".html"),
	})
}

// message is a rendered email ready for a provider.
type message struct {
	to       string
	subject  string
	html     string
	category string
}

// Send delivers an HTML message under the configured send timeout. When email
// is disabled the message is logged and dropped.
func (s *Service) Send(ctx context.Context, to, subject, htmlBody string) error {
	return s.deliver(ctx, message{to: to, subject: subject, html: htmlBody})
}

func (s *Service) deliver(ctx context.Context, msg message) error {
	to, subject := msg.to, msg.subject
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	if strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("invalid subject: contains newline characters")
	}

	if !s.config.Enabled {
		s.logger.Info().
			Str("to", to).
			Str("subject", subject).
			Str("category", msg.category).
			Msg("email service disabled, skipping email")
		return nil
	}

	timeout := s.config.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch s.provider {
	case ProviderResend:
		return s.sendViaResend(ctx, msg)
	case ProviderSMTP:
		return s.sendViaSMTP(ctx, msg)
	default:
		return fmt.Errorf("unsupported email provider %q", s.provider)
	}
}

// validateEmailAddress validates an email address for format and header injection attempts
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

// validateLinkURL rejects anything but absolute http(s) URLs so rendered links
// cannot carry javascript: or data: payloads.
func validateLinkURL(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

func (s *Service) renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.String(), nil
}
