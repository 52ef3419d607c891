package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/email"
	"github.com/Togather-Foundation/rsvp/internal/notify"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// RegistrationConfirmationArgs carries the notice for a confirmation email.
type RegistrationConfirmationArgs struct {
	Notice registrations.Notice `json:"notice"`
}

func (RegistrationConfirmationArgs) Kind() string { return JobKindRegistrationConfirmation }

func (RegistrationConfirmationArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindRegistrationConfirmation)
}

// RegistrationCancellationArgs carries the notice for a cancellation email.
type RegistrationCancellationArgs struct {
	Notice registrations.Notice `json:"notice"`
}

func (RegistrationCancellationArgs) Kind() string { return JobKindRegistrationCancellation }

func (RegistrationCancellationArgs) InsertOpts() river.InsertOpts {
	return InsertOptsForKind(JobKindRegistrationCancellation)
}

type RegistrationConfirmationWorker struct {
	river.WorkerDefaults[RegistrationConfirmationArgs]
	Mailer notify.Mailer
}

func (w RegistrationConfirmationWorker) Work(ctx context.Context, job *river.Job[RegistrationConfirmationArgs]) error {
	if job == nil {
		return fmt.Errorf("registration confirmation job missing")
	}
	if w.Mailer == nil {
		return fmt.Errorf("mailer not configured")
	}
	return deliveryResult(w.Mailer.SendRegistrationConfirmation(ctx, notify.EmailData(job.Args.Notice)))
}

type RegistrationCancellationWorker struct {
	river.WorkerDefaults[RegistrationCancellationArgs]
	Mailer notify.Mailer
}

func (w RegistrationCancellationWorker) Work(ctx context.Context, job *river.Job[RegistrationCancellationArgs]) error {
	if job == nil {
		return fmt.Errorf("registration cancellation job missing")
	}
	if w.Mailer == nil {
		return fmt.Errorf("mailer not configured")
	}
	return deliveryResult(w.Mailer.SendRegistrationCancellation(ctx, notify.EmailData(job.Args.Notice)))
}

// deliveryResult cancels jobs whose recipient can never be delivered to; other
// errors are retried by the policy.
func deliveryResult(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, email.ErrInvalidRecipient) {
		return river.JobCancel(err)
	}
	return err
}

// NewWorkers registers the notification workers.
func NewWorkers(mailer notify.Mailer) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[RegistrationConfirmationArgs](workers, RegistrationConfirmationWorker{Mailer: mailer})
	river.AddWorker[RegistrationCancellationArgs](workers, RegistrationCancellationWorker{Mailer: mailer})
	return workers
}

// Inserter is the part of the River client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QueueNotifier turns registration notices into durable email jobs.
type QueueNotifier struct {
	client Inserter
}

func NewQueueNotifier(client Inserter) *QueueNotifier {
	return &QueueNotifier{client: client}
}

func (q *QueueNotifier) RegistrationConfirmed(ctx context.Context, notice registrations.Notice) error {
	if _, err := q.client.Insert(ctx, RegistrationConfirmationArgs{Notice: notice}, nil); err != nil {
		return fmt.Errorf("enqueue registration confirmation: %w", err)
	}
	return nil
}

func (q *QueueNotifier) RegistrationCancelled(ctx context.Context, notice registrations.Notice) error {
	if _, err := q.client.Insert(ctx, RegistrationCancellationArgs{Notice: notice}, nil); err != nil {
		return fmt.Errorf("enqueue registration cancellation: %w", err)
	}
	return nil
}
