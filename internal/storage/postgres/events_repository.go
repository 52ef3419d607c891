package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/jackc/pgx/v5"
)

type EventRepository struct {
	conn conn
}

const eventSelect = `
SELECT e.id, e.name, e.description, e.starts_at, e.location, e.status, e.price, e.photo,
       e.created_at, e.updated_at, o.id, o.name, o.email
  FROM events e
  JOIN users o ON o.id = e.organizer_id`

func (r *EventRepository) Create(ctx context.Context, event events.Event) (*events.Event, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	_, err := r.conn.db.Exec(ctx, `
INSERT INTO events (id, name, description, starts_at, location, status, price, photo, organizer_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.Name, event.Description, event.Date, event.Location,
		string(event.Status), event.Price, event.Photo, event.Organizer.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("create event: organizer %s: %w", event.Organizer.ID, events.ErrNotFound)
		}
		return nil, fmt.Errorf("create event: %w", err)
	}
	return r.get(ctx, r.conn.db, event.ID)
}

// Update writes only the fields present in patch.
func (r *EventRepository) Update(ctx context.Context, id string, patch events.Patch) (*events.Event, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var status *string
	if patch.Status.Set {
		value := string(patch.Status.Value)
		status = &value
	}

	tag, err := r.conn.db.Exec(ctx, `
UPDATE events
   SET name        = COALESCE($2, name),
       description = COALESCE($3, description),
       starts_at   = COALESCE($4, starts_at),
       location    = COALESCE($5, location),
       status      = COALESCE($6, status),
       price       = COALESCE($7, price),
       photo       = COALESCE($8, photo),
       updated_at  = now()
 WHERE id = $1`,
		id, patch.Name.Ptr(), patch.Description.Ptr(), patch.Date.Ptr(), patch.Location.Ptr(),
		status, patch.Price.Ptr(), patch.Photo.Ptr(),
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, events.ErrNotFound
	}
	return r.get(ctx, r.conn.db, id)
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()
	return r.get(ctx, r.conn.db, id)
}

// List returns every event ordered by date, each with its attendees.
func (r *EventRepository) List(ctx context.Context) ([]events.Event, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.db.Query(ctx, eventSelect+` ORDER BY e.starts_at ASC, e.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	list := []events.Event{}
	index := map[string]int{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		index[event.ID] = len(list)
		list = append(list, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(list) == 0 {
		return list, nil
	}

	ids := make([]string, 0, len(list))
	for _, event := range list {
		ids = append(ids, event.ID)
	}
	attendees, err := loadAttendees(ctx, r.conn.db, ids)
	if err != nil {
		return nil, err
	}
	for eventID, people := range attendees {
		list[index[eventID]].Attendees = people
	}
	return list, nil
}

// Delete removes the event; registrations cascade.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) get(ctx context.Context, q queryer, id string) (*events.Event, error) {
	event, err := scanEvent(q.QueryRow(ctx, eventSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}

	attendees, err := loadAttendees(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	if people, ok := attendees[id]; ok {
		event.Attendees = people
	}
	return event, nil
}

// loadAttendees derives attendee sets from the registrations ledger.
func loadAttendees(ctx context.Context, q queryer, eventIDs []string) (map[string][]events.Person, error) {
	rows, err := q.Query(ctx, `
SELECT r.event_id, u.id, u.name, u.email
  FROM registrations r
  JOIN users u ON u.id = r.user_id
 WHERE r.event_id = ANY($1)
 ORDER BY r.created_at ASC, r.id ASC`, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	defer rows.Close()

	out := map[string][]events.Person{}
	for rows.Next() {
		var (
			eventID string
			person  events.Person
		)
		if err := rows.Scan(&eventID, &person.ID, &person.Name, &person.Email); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out[eventID] = append(out[eventID], person)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load attendees: %w", err)
	}
	return out, nil
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var (
		event  events.Event
		status string
	)
	if err := row.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.Date,
		&event.Location,
		&status,
		&event.Price,
		&event.Photo,
		&event.CreatedAt,
		&event.UpdatedAt,
		&event.Organizer.ID,
		&event.Organizer.Name,
		&event.Organizer.Email,
	); err != nil {
		return nil, err
	}
	event.Status = events.Status(status)
	event.Date = event.Date.UTC()
	event.Attendees = []events.Person{}
	return &event, nil
}
