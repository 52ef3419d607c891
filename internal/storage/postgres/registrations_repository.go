package postgres

import (
	"context"
	"fmt"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/jackc/pgx/v5"
)

type RegistrationRepository struct {
	conn conn
}

const registrationSelect = `
SELECT r.id, r.event_id, r.created_at, r.updated_at, u.id, u.name, u.email
  FROM registrations r
  JOIN users u ON u.id = r.user_id`

// Create locks the event row for share and inserts the pair in one transaction.
// The (event_id, user_id) unique constraint decides concurrent duplicates.
func (r *RegistrationRepository) Create(ctx context.Context, id, eventID, userID string) (*registrations.Registration, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	var created *registrations.Registration
	err := r.conn.inTx(ctx, func(tx pgx.Tx) error {
		var locked string
		if err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR SHARE`, eventID).Scan(&locked); err != nil {
			if isNoRows(err) {
				return events.ErrNotFound
			}
			return fmt.Errorf("lock event: %w", err)
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO registrations (id, event_id, user_id)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, user_id) DO NOTHING`, id, eventID, userID)
		if err != nil {
			switch {
			case isUniqueViolation(err):
				return registrations.ErrAlreadyRegistered
			case isForeignKeyViolation(err):
				return users.ErrNotFound
			}
			return fmt.Errorf("insert registration: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return registrations.ErrAlreadyRegistered
		}

		created, err = scanRegistration(tx.QueryRow(ctx, registrationSelect+` WHERE r.id = $1`, id))
		if err != nil {
			return fmt.Errorf("load registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*registrations.Registration, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	registration, err := scanRegistration(r.conn.db.QueryRow(ctx, registrationSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return registration, nil
}

func (r *RegistrationRepository) FindForUser(ctx context.Context, eventID, userID string) (*registrations.Registration, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	registration, err := scanRegistration(r.conn.db.QueryRow(ctx,
		registrationSelect+` WHERE r.event_id = $1 AND r.user_id = $2`, eventID, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, registrations.ErrNotFound
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return registration, nil
}

func (r *RegistrationRepository) ListForEvent(ctx context.Context, eventID string) ([]registrations.Registration, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.db.Query(ctx, registrationSelect+` WHERE r.event_id = $1 ORDER BY r.created_at ASC, r.id ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	list := []registrations.Registration{}
	for rows.Next() {
		registration, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		list = append(list, *registration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return list, nil
}

func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	tag, err := r.conn.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registrations.ErrNotFound
	}
	return nil
}

func scanRegistration(row pgx.Row) (*registrations.Registration, error) {
	var registration registrations.Registration
	if err := row.Scan(
		&registration.ID,
		&registration.EventID,
		&registration.CreatedAt,
		&registration.UpdatedAt,
		&registration.User.ID,
		&registration.User.Name,
		&registration.User.Email,
	); err != nil {
		return nil, err
	}
	return &registration, nil
}
