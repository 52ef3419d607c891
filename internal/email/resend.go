package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ErrRateLimited is returned when Resend throttles the account. The job queue
// retries these with backoff.
var ErrRateLimited = errors.New("email rate limit exceeded")

func (s *Service) sendViaResend(ctx context.Context, msg message) error {
	if s.resendClient == nil {
		return fmt.Errorf("resend client not initialized")
	}

	req := &resend.SendEmailRequest{
		From:    s.config.From,
		To:      []string{msg.to},
		Subject: msg.subject,
		Html:    msg.html,
	}
	if msg.category != "" {
		req.Tags = []resend.Tag{{Name: "category", Value: msg.category}}
	}

	sent, err := s.resendClient.Emails.SendWithContext(ctx, req)
	if err != nil {
		var limited *resend.RateLimitError
		if errors.As(err, &limited) {
			s.logger.Warn().
				Str("remaining", limited.Remaining).
				Str("reset", limited.Reset).
				Str("category", msg.category).
				Msg("resend throttled registration email")
			return fmt.Errorf("%w (resets in %s seconds): %w", ErrRateLimited, limited.Reset, err)
		}
		return fmt.Errorf("resend API error: %w", err)
	}

	s.logger.Info().
		Str("email_id", sent.Id).
		Str("to", msg.to).
		Str("category", msg.category).
		Msg("registration email sent via Resend")
	return nil
}
