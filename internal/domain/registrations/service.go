package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Togather-Foundation/rsvp/internal/domain/registrations"

// Service is the registration ledger.
type Service struct {
	repo     Repository
	events   EventReader
	notifier Notifier
	audit    *audit.Logger
	logger   zerolog.Logger
	tracer   trace.Tracer
	newID    func() (string, error)
	// onNotifyError is called when a post-commit notification fails.
	onNotifyError func(kind string)
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithAuditLogger(l *audit.Logger) Option {
	return func(s *Service) { s.audit = l }
}

// WithNotifyErrorHook registers a callback for failed notifications, typically a metrics counter.
func WithNotifyErrorHook(fn func(kind string)) Option {
	return func(s *Service) { s.onNotifyError = fn }
}

func NewService(repo Repository, eventReader EventReader, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		events:   eventReader,
		notifier: NopNotifier{},
		logger:   logger.With().Str("component", "registrations").Logger(),
		tracer:   telemetry.GetTracer(tracerName),
		newID:    ids.NewULID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register records the caller's registration for the event and, once committed,
// sends the confirmation notice.
func (s *Service) Register(ctx context.Context, actor auth.Actor, eventID string) (*Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registrations.Register")
	defer span.End()

	eventID = ids.Normalize(eventID)
	span.SetAttributes(attribute.String("event.id", eventID), attribute.String("user.id", actor.UserID))

	if !actor.Can(auth.CapRegister) {
		return nil, ErrForbidden
	}
	if err := ids.ValidateULID(eventID); err != nil {
		return nil, events.ErrNotFound
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate registration id: %w", err)
	}

	registration, err := s.repo.Create(ctx, id, eventID, actor.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create registration")
		return nil, err
	}
	span.SetAttributes(attribute.String("registration.id", registration.ID))

	s.notify(ctx, "confirmation", registration, func(ctx context.Context, notice Notice) error {
		return s.notifier.RegistrationConfirmed(ctx, notice)
	})
	return registration, nil
}

// Cancel deletes a registration. The registrant, the event organizer and moderators may cancel.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, registrationID string) error {
	ctx, span := s.tracer.Start(ctx, "registrations.Cancel")
	defer span.End()

	registrationID = ids.Normalize(registrationID)
	span.SetAttributes(attribute.String("registration.id", registrationID))
	if err := ids.ValidateULID(registrationID); err != nil {
		return ErrNotFound
	}

	registration, err := s.repo.GetByID(ctx, registrationID)
	if err != nil {
		return err
	}

	if registration.User.ID != actor.UserID {
		event, err := s.events.GetByID(ctx, registration.EventID)
		if err != nil {
			return err
		}
		if !actor.Owns(event.Organizer.ID) {
			s.record(ctx, actor, registration, audit.StatusFailure, map[string]string{"reason": "forbidden"})
			return ErrForbidden
		}
	}

	if err := s.repo.Delete(ctx, registrationID); err != nil {
		span.RecordError(err)
		return err
	}
	if registration.User.ID != actor.UserID {
		s.record(ctx, actor, registration, audit.StatusSuccess, map[string]string{"registrant": registration.User.ID})
	}

	s.notify(ctx, "cancellation", registration, func(ctx context.Context, notice Notice) error {
		return s.notifier.RegistrationCancelled(ctx, notice)
	})
	return nil
}

// Status reports whether the user holds a registration for the event.
func (s *Service) Status(ctx context.Context, eventID, userID string) (Status, error) {
	registration, err := s.repo.FindForUser(ctx, ids.Normalize(eventID), userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Status{}, nil
		}
		return Status{}, err
	}
	return Status{IsRegistered: true, RegistrationID: registration.ID}, nil
}

// ListForEvent returns the event's registrations ordered by creation time.
func (s *Service) ListForEvent(ctx context.Context, eventID string) ([]Registration, error) {
	return s.repo.ListForEvent(ctx, ids.Normalize(eventID))
}

// notify runs after commit. Failures are logged and never returned.
func (s *Service) notify(ctx context.Context, kind string, registration *Registration, send func(context.Context, Notice) error) {
	logger := s.logger.With().
		Str("registration_id", registration.ID).
		Str("event_id", registration.EventID).
		Str("notification", kind).
		Logger()

	event, err := s.events.GetByID(ctx, registration.EventID)
	if err != nil {
		logger.Error().Err(err).Msg("load event for notification")
		s.notifyFailed(kind)
		return
	}

	detached := *event
	detached.Attendees = nil
	notice := Notice{
		RegistrationID: registration.ID,
		Event:          detached,
		Attendee:       registration.User,
	}
	if kind == "confirmation" {
		notice.CalendarLink = CalendarLink(detached)
	}

	if err := send(ctx, notice); err != nil {
		logger.Error().Err(err).Msg("registration notification failed")
		s.notifyFailed(kind)
	}
}

func (s *Service) notifyFailed(kind string) {
	if s.onNotifyError != nil {
		s.onNotifyError(kind)
	}
}

func (s *Service) record(ctx context.Context, actor auth.Actor, registration *Registration, status string, details map[string]string) {
	s.audit.Log(ctx, audit.Entry{
		Action:       "registration.cancel",
		Actor:        actor.UserID,
		ActorRole:    string(actor.Role),
		ResourceType: "registration",
		ResourceID:   registration.ID,
		Status:       status,
		Details:      details,
	})
}
