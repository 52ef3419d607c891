package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
)

var (
	ErrNotFound          = errors.New("registration not found")
	ErrAlreadyRegistered = errors.New("already registered for this event")
	ErrForbidden         = errors.New("not authorized to cancel this registration")
)

// Registration is an active (event, user) pair with the user expanded.
type Registration struct {
	ID        string        `json:"id"`
	EventID   string        `json:"eventId"`
	User      events.Person `json:"user"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Status answers whether a user holds a registration for an event.
type Status struct {
	IsRegistered   bool   `json:"isRegistered"`
	RegistrationID string `json:"registrationId,omitempty"`
}

type Repository interface {
	// Create inserts the registration atomically. It returns events.ErrNotFound when
	// the event does not exist and ErrAlreadyRegistered when the pair exists.
	Create(ctx context.Context, id, eventID, userID string) (*Registration, error)
	GetByID(ctx context.Context, id string) (*Registration, error)
	FindForUser(ctx context.Context, eventID, userID string) (*Registration, error)
	ListForEvent(ctx context.Context, eventID string) ([]Registration, error)
	// Delete returns ErrNotFound when no row was removed.
	Delete(ctx context.Context, id string) error
}

// EventReader loads the expanded event used for authorization and notifications.
type EventReader interface {
	GetByID(ctx context.Context, id string) (*events.Event, error)
}

// Notice carries what a notifier needs to tell an attendee about a registration change.
type Notice struct {
	RegistrationID string        `json:"registrationId"`
	Event          events.Event  `json:"event"`
	Attendee       events.Person `json:"attendee"`
	CalendarLink   string        `json:"calendarLink,omitempty"`
}

// Notifier is invoked after a registration change has been committed.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, notice Notice) error
	RegistrationCancelled(ctx context.Context, notice Notice) error
}

type NopNotifier struct{}

func (NopNotifier) RegistrationConfirmed(context.Context, Notice) error { return nil }
func (NopNotifier) RegistrationCancelled(context.Context, Notice) error { return nil }
