package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/rs/zerolog"
)

// Mailer sends the registration emails.
type Mailer interface {
	SendRegistrationConfirmation(ctx context.Context, data email.RegistrationData) error
	SendRegistrationCancellation(ctx context.Context, data email.RegistrationData) error
}

// EmailData maps a registration notice to the email template fields.
func EmailData(notice registrations.Notice) email.RegistrationData {
	return email.RegistrationData{
		AttendeeName:   notice.Attendee.Name,
		AttendeeEmail:  notice.Attendee.Email,
		EventName:      notice.Event.Name,
		EventDate:      notice.Event.Date,
		Location:       notice.Event.Location,
		Description:    notice.Event.Description,
		Price:          notice.Event.Price,
		OrganizerName:  notice.Event.Organizer.Name,
		OrganizerEmail: notice.Event.Organizer.Email,
		CalendarLink:   notice.CalendarLink,
	}
}

// Named attaches a label used when logging failures.
type Named struct {
	Name     string
	Notifier registrations.Notifier
}

// Fanout delivers every notice to each notifier in order. A failing notifier is
// logged and does not stop the rest; the joined error is returned.
type Fanout struct {
	targets []Named
	logger  zerolog.Logger
}

func NewFanout(logger zerolog.Logger, targets ...Named) *Fanout {
	return &Fanout{targets: targets, logger: logger.With().Str("component", "notify").Logger()}
}

func (f *Fanout) RegistrationConfirmed(ctx context.Context, notice registrations.Notice) error {
	return f.each(ctx, "confirmation", notice, func(n registrations.Notifier) error {
		return n.RegistrationConfirmed(ctx, notice)
	})
}

func (f *Fanout) RegistrationCancelled(ctx context.Context, notice registrations.Notice) error {
	return f.each(ctx, "cancellation", notice, func(n registrations.Notifier) error {
		return n.RegistrationCancelled(ctx, notice)
	})
}

func (f *Fanout) each(_ context.Context, kind string, notice registrations.Notice, call func(registrations.Notifier) error) error {
	var errs []error
	for _, target := range f.targets {
		if err := call(target.Notifier); err != nil {
			f.logger.Warn().Err(err).
				Str("notifier", target.Name).
				Str("notification", kind).
				Str("registration_id", notice.RegistrationID).
				Msg("notifier failed")
			errs = append(errs, fmt.Errorf("%s: %w", target.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Direct sends email on a detached goroutine so the request returns first.
// It is used when the durable job queue is disabled.
type Direct struct {
	mailer  Mailer
	timeout time.Duration
	logger  zerolog.Logger
	wg      sync.WaitGroup
}

func NewDirect(mailer Mailer, timeout time.Duration, logger zerolog.Logger) *Direct {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Direct{
		mailer:  mailer,
		timeout: timeout,
		logger:  logger.With().Str("component", "notify").Str("notifier", "direct").Logger(),
	}
}

func (d *Direct) RegistrationConfirmed(ctx context.Context, notice registrations.Notice) error {
	d.dispatch(ctx, "confirmation", notice, d.mailer.SendRegistrationConfirmation)
	return nil
}

func (d *Direct) RegistrationCancelled(ctx context.Context, notice registrations.Notice) error {
	d.dispatch(ctx, "cancellation", notice, d.mailer.SendRegistrationCancellation)
	return nil
}

// Wait blocks until in-flight sends finish.
func (d *Direct) Wait() {
	d.wg.Wait()
}

func (d *Direct) dispatch(ctx context.Context, kind string, notice registrations.Notice, send func(context.Context, email.RegistrationData) error) {
	data := EmailData(notice)
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := send(sendCtx, data); err != nil {
			d.logger.Error().Err(err).
				Str("notification", kind).
				Str("registration_id", notice.RegistrationID).
				Msg("send registration email")
		}
	}()
}

// Detached runs another notifier on its own goroutine under a timeout, so a
// slow or blocked target (a flow-controlled broker) cannot hold the request.
type Detached struct {
	name      string
	target    registrations.Notifier
	timeout   time.Duration
	logger    zerolog.Logger
	onFailure func(kind string)
	wg        sync.WaitGroup
}

type DetachedOption func(*Detached)

// WithFailureHook is called with the notification kind after a failed delivery.
func WithFailureHook(fn func(kind string)) DetachedOption {
	return func(d *Detached) { d.onFailure = fn }
}

func NewDetached(name string, target registrations.Notifier, timeout time.Duration, logger zerolog.Logger, opts ...DetachedOption) *Detached {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Detached{
		name:    name,
		target:  target,
		timeout: timeout,
		logger:  logger.With().Str("component", "notify").Str("notifier", name).Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detached) RegistrationConfirmed(ctx context.Context, notice registrations.Notice) error {
	d.dispatch(ctx, "confirmation", notice, d.target.RegistrationConfirmed)
	return nil
}

func (d *Detached) RegistrationCancelled(ctx context.Context, notice registrations.Notice) error {
	d.dispatch(ctx, "cancellation", notice, d.target.RegistrationCancelled)
	return nil
}

// Wait blocks until in-flight deliveries finish or time out.
func (d *Detached) Wait() {
	d.wg.Wait()
}

func (d *Detached) dispatch(ctx context.Context, kind string, notice registrations.Notice, deliver func(context.Context, registrations.Notice) error) {
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := deliver(deliverCtx, notice); err != nil {
			d.logger.Error().Err(err).
				Str("notification", kind).
				Str("registration_id", notice.RegistrationID).
				Msg("deliver registration notice")
			if d.onFailure != nil {
				d.onFailure(kind)
			}
		}
	}()
}
