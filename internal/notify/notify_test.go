package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
	err       error
}

func (r *recordingNotifier) RegistrationConfirmed(_ context.Context, n registrations.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, n.RegistrationID)
	return r.err
}

func (r *recordingNotifier) RegistrationCancelled(_ context.Context, n registrations.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, n.RegistrationID)
	return r.err
}

type recordingMailer struct {
	mu      sync.Mutex
	sent    []email.RegistrationData
	ctxErrs []error
	err     error
}

func (m *recordingMailer) SendRegistrationConfirmation(ctx context.Context, data email.RegistrationData) error {
	return m.record(ctx, data)
}

func (m *recordingMailer) SendRegistrationCancellation(ctx context.Context, data email.RegistrationData) error {
	return m.record(ctx, data)
}

func (m *recordingMailer) record(ctx context.Context, data email.RegistrationData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func notice() registrations.Notice {
	return registrations.Notice{
		RegistrationID: "R1",
		Event: events.Event{
			Name:      "Go Meetup",
			Date:      time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
			Location:  "Hall",
			Price:     5,
			Organizer: events.Person{Name: "Olga", Email: "olga@example.com"},
		},
		Attendee:     events.Person{Name: "Alice", Email: "alice@example.com"},
		CalendarLink: "https://www.google.com/calendar/render?action=TEMPLATE",
	}
}

func TestEmailData(t *testing.T) {
	data := EmailData(notice())
	require.Equal(t, "alice@example.com", data.AttendeeEmail)
	require.Equal(t, "Olga", data.OrganizerName)
	require.Equal(t, 5.0, data.Price)
	require.Equal(t, "https://www.google.com/calendar/render?action=TEMPLATE", data.CalendarLink)
}

func TestFanout_ContinuesAfterFailure(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("broker down")}
	healthy := &recordingNotifier{}
	fanout := NewFanout(zerolog.Nop(), Named{Name: "broker", Notifier: failing}, Named{Name: "email", Notifier: healthy})

	err := fanout.RegistrationConfirmed(context.Background(), notice())
	require.ErrorContains(t, err, "broker: broker down")
	require.Equal(t, []string{"R1"}, healthy.confirmed)

	require.Error(t, fanout.RegistrationCancelled(context.Background(), notice()))
	require.Equal(t, []string{"R1"}, healthy.cancelled)
}

func TestFanout_NoErrorWhenAllSucceed(t *testing.T) {
	fanout := NewFanout(zerolog.Nop(), Named{Name: "a", Notifier: &recordingNotifier{}})
	require.NoError(t, fanout.RegistrationConfirmed(context.Background(), notice()))
}

func TestDirect_SendsDetachedFromRequest(t *testing.T) {
	mailer := &recordingMailer{}
	direct := NewDirect(mailer, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, direct.RegistrationConfirmed(ctx, notice()))
	cancel()
	direct.Wait()

	require.Len(t, mailer.sent, 1)
	require.Equal(t, "Go Meetup", mailer.sent[0].EventName)
	require.NoError(t, mailer.ctxErrs[0])
}

func TestDirect_SwallowsMailErrors(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	direct := NewDirect(mailer, time.Second, zerolog.Nop())

	require.NoError(t, direct.RegistrationCancelled(context.Background(), notice()))
	direct.Wait()
	require.Len(t, mailer.sent, 1)
}

// blockingNotifier never finishes on its own; it returns when ctx ends.
type blockingNotifier struct {
	started chan struct{}
}

func (b *blockingNotifier) RegistrationConfirmed(ctx context.Context, _ registrations.Notice) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingNotifier) RegistrationCancelled(ctx context.Context, n registrations.Notice) error {
	return b.RegistrationConfirmed(ctx, n)
}

func TestDetached_ReturnsBeforeBlockedTargetAndTimesOut(t *testing.T) {
	target := &blockingNotifier{started: make(chan struct{})}
	failures := make(chan string, 1)
	d := NewDetached("broker", target, 20*time.Millisecond, zerolog.Nop(),
		WithFailureHook(func(kind string) { failures <- kind }))

	require.NoError(t, d.RegistrationConfirmed(context.Background(), notice()))

	<-target.started
	d.Wait()
	require.Equal(t, "confirmation", <-failures)
}

func TestDetached_SurvivesRequestCancellation(t *testing.T) {
	target := &recordingNotifier{}
	d := NewDetached("broker", target, time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.RegistrationCancelled(ctx, notice()))
	cancel()
	d.Wait()

	require.Equal(t, []string{"R1"}, target.cancelled)
}
