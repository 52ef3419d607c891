package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("event not found")
	ErrForbidden = errors.New("not authorized to modify this event")
)

// DefaultPhoto is used when an event is created without a photo.
const DefaultPhoto = "https://via.placeholder.com/400x300?text=Event+Image"

// Status is the lifecycle state of an event.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(value string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case "", StatusUpcoming:
		return StatusUpcoming, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown status %q", value)
	}
}

// Person is the expanded view of a user referenced by an event or registration.
type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Event is an event with its organizer and attendee set expanded. Attendees are
// derived from active registrations.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Status      Status    `json:"status"`
	Price       float64   `json:"price"`
	Photo       string    `json:"eventPhoto"`
	Organizer   Person    `json:"organizer"`
	Attendees   []Person  `json:"attendees"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Patch carries the fields of a partial update. Absent fields keep their stored value.
type Patch struct {
	Name        Optional[string]
	Description Optional[string]
	Date        Optional[time.Time]
	Location    Optional[string]
	Status      Optional[Status]
	Price       Optional[float64]
	Photo       Optional[string]
}

// Empty reports whether no field is present.
func (p Patch) Empty() bool {
	return !p.Name.Set && !p.Description.Set && !p.Date.Set && !p.Location.Set &&
		!p.Status.Set && !p.Price.Set && !p.Photo.Set
}

type Repository interface {
	Create(ctx context.Context, event Event) (*Event, error)
	// Update applies the present fields of patch and returns the expanded event.
	Update(ctx context.Context, id string, patch Patch) (*Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context) ([]Event, error)
	Delete(ctx context.Context, id string) error
}
