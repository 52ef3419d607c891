package storage

import (
	"context"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Users() users.Repository
	Events() events.Repository
	Registrations() registrations.Repository

	// WithTx runs fn with a Repository bound to a single transaction.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}
