package events

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/ids"
	"github.com/Togather-Foundation/rsvp/internal/sanitize"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

const (
	maxNameLength        = 200
	maxLocationLength    = 300
	maxDescriptionLength = 5000
	maxPrice             = 99999999.99
)

// PhotoStore persists uploaded event photos. Remove is best effort.
type PhotoStore interface {
	Remove(ctx context.Context, ref string) error
}

// CreateInput is the sanitized form of a create request. Price is required.
type CreateInput struct {
	Name        string
	Description string
	Date        time.Time
	Location    string
	Status      string
	Price       *float64
	Photo       string
}

type Service struct {
	repo   Repository
	photos PhotoStore
	audit  *audit.Logger
	logger zerolog.Logger
	newID  func() (string, error)
	now    func() time.Time
}

func NewService(repo Repository, photos PhotoStore, auditLogger *audit.Logger, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		photos: photos,
		audit:  auditLogger,
		logger: logger.With().Str("component", "events").Logger(),
		newID:  ids.NewULID,
		now:    time.Now,
	}
}

// Create stores a new event organized by the actor.
func (s *Service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*Event, error) {
	if !actor.Can(auth.CapManageEvents) {
		return nil, ErrForbidden
	}

	event := Event{
		Name:        sanitize.Text(input.Name),
		Description: sanitize.Multiline(input.Description),
		Date:        input.Date.UTC(),
		Location:    sanitize.Text(input.Location),
		Photo:       strings.TrimSpace(input.Photo),
		Organizer:   Person{ID: actor.UserID},
	}
	if err := requireText("name", event.Name, maxNameLength); err != nil {
		return nil, err
	}
	if err := requireText("description", event.Description, maxDescriptionLength); err != nil {
		return nil, err
	}
	if err := requireText("location", event.Location, maxLocationLength); err != nil {
		return nil, err
	}
	if err := s.validateDate(event.Date); err != nil {
		return nil, err
	}
	if input.Price == nil {
		return nil, validation.New("price", "is required")
	}
	if err := validatePrice(*input.Price); err != nil {
		return nil, err
	}
	event.Price = *input.Price

	status, err := ParseStatus(input.Status)
	if err != nil {
		return nil, validation.New("status", "must be upcoming, completed or cancelled")
	}
	event.Status = status

	if event.Photo == "" {
		event.Photo = DefaultPhoto
	} else if err := validatePhoto(event.Photo); err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}
	event.ID = id

	created, err := s.repo.Create(ctx, event)
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor, "event.create", created.ID, audit.StatusSuccess, nil)
	return created, nil
}

// Update applies the present fields of patch. Any authenticated caller may
// update; edits by someone other than the organizer are audited as such.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, patch Patch) (*Event, error) {
	id = ids.Normalize(id)
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch, err = s.cleanPatch(patch)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return existing, nil
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if patch.Photo.Set && existing.Photo != updated.Photo {
		s.removePhoto(ctx, existing.Photo)
	}
	var details map[string]string
	if actor.UserID != existing.Organizer.ID {
		details = map[string]string{"organizer": existing.Organizer.ID}
	}
	s.record(ctx, actor, "event.update", id, audit.StatusSuccess, details)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	return s.repo.GetByID(ctx, ids.Normalize(id))
}

func (s *Service) List(ctx context.Context) ([]Event, error) {
	return s.repo.List(ctx)
}

// Delete removes the event together with its registrations.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	id = ids.Normalize(id)
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(existing.Organizer.ID) {
		s.record(ctx, actor, "event.delete", id, audit.StatusFailure, map[string]string{"reason": "forbidden"})
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.removePhoto(ctx, existing.Photo)
	s.record(ctx, actor, "event.delete", id, audit.StatusSuccess, nil)
	return nil
}

func (s *Service) cleanPatch(patch Patch) (Patch, error) {
	if patch.Name.Set {
		patch.Name.Value = sanitize.Text(patch.Name.Value)
		if err := requireText("name", patch.Name.Value, maxNameLength); err != nil {
			return patch, err
		}
	}
	if patch.Description.Set {
		patch.Description.Value = sanitize.Multiline(patch.Description.Value)
		if err := requireText("description", patch.Description.Value, maxDescriptionLength); err != nil {
			return patch, err
		}
	}
	if patch.Location.Set {
		patch.Location.Value = sanitize.Text(patch.Location.Value)
		if err := requireText("location", patch.Location.Value, maxLocationLength); err != nil {
			return patch, err
		}
	}
	if patch.Date.Set {
		patch.Date.Value = patch.Date.Value.UTC()
		if err := s.validateDate(patch.Date.Value); err != nil {
			return patch, err
		}
	}
	if patch.Price.Set {
		if err := validatePrice(patch.Price.Value); err != nil {
			return patch, err
		}
	}
	if patch.Status.Set {
		status, err := ParseStatus(string(patch.Status.Value))
		if err != nil {
			return patch, validation.New("status", "must be upcoming, completed or cancelled")
		}
		patch.Status.Value = status
	}
	if patch.Photo.Set {
		patch.Photo.Value = strings.TrimSpace(patch.Photo.Value)
		if patch.Photo.Value == "" {
			patch.Photo = Optional[string]{}
		} else if err := validatePhoto(patch.Photo.Value); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func (s *Service) validateDate(date time.Time) error {
	if date.IsZero() {
		return validation.New("date", "is required")
	}
	if !date.After(s.now()) {
		return validation.New("date", "must be in the future")
	}
	return nil
}

func (s *Service) removePhoto(ctx context.Context, ref string) {
	if s.photos == nil || ref == "" || ref == DefaultPhoto {
		return
	}
	if err := s.photos.Remove(ctx, ref); err != nil {
		s.logger.Warn().Err(err).Str("photo", ref).Msg("remove event photo")
	}
}

func (s *Service) record(ctx context.Context, actor auth.Actor, action, id, status string, details map[string]string) {
	s.audit.Log(ctx, audit.Entry{
		Action:       action,
		Actor:        actor.UserID,
		ActorRole:    string(actor.Role),
		ResourceType: "event",
		ResourceID:   id,
		Status:       status,
		Details:      details,
	})
}

func requireText(field, value string, max int) error {
	if value == "" {
		return validation.New(field, "is required")
	}
	if len([]rune(value)) > max {
		return validation.New(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}

func validatePrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return validation.New("price", "must be a number")
	}
	if price < 0 {
		return validation.New("price", "must not be negative")
	}
	if price > maxPrice {
		return validation.New("price", "is too large")
	}
	return nil
}

// validatePhoto accepts stored upload paths and absolute http(s) URLs.
func validatePhoto(ref string) error {
	if strings.HasPrefix(ref, "/uploads/") && !strings.Contains(ref, "..") {
		return nil
	}
	return validation.ValidateURL(ref, "eventPhoto")
}
