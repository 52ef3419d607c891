// Package memory is an in-process storage.Repository used as a test double by
// the handler and router tests. The server always runs on postgres. It
// enforces the same uniqueness and cascade rules as the PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/storage"
)

type Store struct {
	mu            sync.Mutex
	users         map[string]users.User
	events        map[string]events.Event
	registrations map[string]registrations.Registration
	now           func() time.Time
}

func New() *Store {
	return &Store{
		users:         make(map[string]users.User),
		events:        make(map[string]events.Event),
		registrations: make(map[string]registrations.Registration),
		now:           time.Now,
	}
}

func (s *Store) Users() users.Repository                 { return userRepo{s} }
func (s *Store) Events() events.Repository               { return eventRepo{s} }
func (s *Store) Registrations() registrations.Repository { return registrationRepo{s} }

// WithTx runs fn against the store itself; writes are not rolled back.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	return fn(ctx, s)
}

func (s *Store) person(id string) events.Person {
	user := s.users[id]
	return events.Person{ID: user.ID, Name: user.Name, Email: user.Email}
}

func (s *Store) expand(event events.Event) events.Event {
	event.Organizer = s.person(event.Organizer.ID)
	event.Attendees = []events.Person{}
	for _, row := range s.sortedRegistrations(event.ID) {
		event.Attendees = append(event.Attendees, row.User)
	}
	return event
}

func (s *Store) sortedRegistrations(eventID string) []registrations.Registration {
	out := []registrations.Registration{}
	for _, row := range s.registrations {
		if row.EventID == eventID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user users.User) (*users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email := users.NormalizeEmail(user.Email)
	for _, existing := range r.s.users {
		if users.NormalizeEmail(existing.Email) == email {
			return nil, users.ErrEmailTaken
		}
	}
	user.Email = email
	user.CreatedAt = r.s.now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = user
	return &user, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	email = users.NormalizeEmail(email)
	for _, user := range r.s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, users.ErrNotFound
}

func (r userRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &user, nil
}

type eventRepo struct{ s *Store }

func (r eventRepo) Create(_ context.Context, event events.Event) (*events.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[event.Organizer.ID]; !ok {
		return nil, events.ErrNotFound
	}
	event.CreatedAt = r.s.now().UTC()
	event.UpdatedAt = event.CreatedAt
	r.s.events[event.ID] = event
	expanded := r.s.expand(event)
	return &expanded, nil
}

func (r eventRepo) Update(_ context.Context, id string, patch events.Patch) (*events.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	event.Name = patch.Name.Or(event.Name)
	event.Description = patch.Description.Or(event.Description)
	event.Date = patch.Date.Or(event.Date)
	event.Location = patch.Location.Or(event.Location)
	event.Status = patch.Status.Or(event.Status)
	event.Price = patch.Price.Or(event.Price)
	event.Photo = patch.Photo.Or(event.Photo)
	event.UpdatedAt = r.s.now().UTC()
	r.s.events[id] = event
	expanded := r.s.expand(event)
	return &expanded, nil
}

func (r eventRepo) GetByID(_ context.Context, id string) (*events.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	event, ok := r.s.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	expanded := r.s.expand(event)
	return &expanded, nil
}

func (r eventRepo) List(_ context.Context) ([]events.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]events.Event, 0, len(r.s.events))
	for _, event := range r.s.events {
		out = append(out, r.s.expand(event))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// Delete removes the event and cascades to its registrations.
func (r eventRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(r.s.events, id)
	for key, row := range r.s.registrations {
		if row.EventID == id {
			delete(r.s.registrations, key)
		}
	}
	return nil
}

type registrationRepo struct{ s *Store }

func (r registrationRepo) Create(_ context.Context, id, eventID, userID string) (*registrations.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[eventID]; !ok {
		return nil, events.ErrNotFound
	}
	if _, ok := r.s.users[userID]; !ok {
		return nil, users.ErrNotFound
	}
	for _, row := range r.s.registrations {
		if row.EventID == eventID && row.User.ID == userID {
			return nil, registrations.ErrAlreadyRegistered
		}
	}
	now := r.s.now().UTC()
	row := registrations.Registration{
		ID:        id,
		EventID:   eventID,
		User:      r.s.person(userID),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.s.registrations[id] = row
	return &row, nil
}

func (r registrationRepo) GetByID(_ context.Context, id string) (*registrations.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.registrations[id]
	if !ok {
		return nil, registrations.ErrNotFound
	}
	return &row, nil
}

func (r registrationRepo) FindForUser(_ context.Context, eventID, userID string) (*registrations.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.registrations {
		if row.EventID == eventID && row.User.ID == userID {
			return &row, nil
		}
	}
	return nil, registrations.ErrNotFound
}

func (r registrationRepo) ListForEvent(_ context.Context, eventID string) ([]registrations.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedRegistrations(eventID), nil
}

func (r registrationRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.registrations[id]; !ok {
		return registrations.ErrNotFound
	}
	delete(r.s.registrations, id)
	return nil
}

var _ storage.Repository = (*Store)(nil)
