// ABOUTME: Local event store operations
// ABOUTME: Handles per-user CRUD for events the user owns outright
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// EventStore persists events whose system of record is this engine. Events
// with origin "google" are never written here; only the local/synced subset is.
type EventStore struct {
	db *sql.DB
}

func NewEventStore(database *sql.DB) *EventStore {
	return &EventStore{db: database}
}

func (s *EventStore) Create(ctx context.Context, userID string, event *models.Event) error {
	if event.Origin == models.OriginGoogle {
		return fmt.Errorf("refusing to persist provider-only event %q", event.ID)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Origin == "" {
		event.Origin = models.OriginLocal
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_events (id, user_id, title, date, time, all_day, category, description,
			created_by, created_by_name, origin, remote_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, userID, event.Title, event.Date, event.Time, event.AllDay, event.Category,
		event.Description, event.CreatedBy, event.CreatedByName, string(event.Origin),
		event.RemoteID, event.CreatedAt, event.UpdatedAt)

	return err
}

func (s *EventStore) Get(ctx context.Context, userID, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, date, time, all_day, category, description,
			created_by, created_by_name, origin, remote_id, created_at, updated_at
		FROM local_events WHERE user_id = ? AND id = ?
	`, userID, id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (s *EventStore) List(ctx context.Context, userID string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, date, time, all_day, category, description,
			created_by, created_by_name, origin, remote_id, created_at, updated_at
		FROM local_events
		WHERE user_id = ?
		ORDER BY date ASC, time ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}

	return events, rows.Err()
}

func (s *EventStore) Update(ctx context.Context, userID string, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE local_events
		SET title = ?, date = ?, time = ?, all_day = ?, category = ?, description = ?,
			origin = ?, remote_id = ?, updated_at = ?
		WHERE user_id = ? AND id = ?
	`, event.Title, event.Date, event.Time, event.AllDay, event.Category, event.Description,
		string(event.Origin), event.RemoteID, event.UpdatedAt, userID, event.ID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM local_events WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	event := &models.Event{}
	var eventTime, description, createdBy, createdByName, remoteID sql.NullString
	var origin string

	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Date,
		&eventTime,
		&event.AllDay,
		&event.Category,
		&description,
		&createdBy,
		&createdByName,
		&origin,
		&remoteID,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Time = eventTime.String
	event.Description = description.String
	event.CreatedBy = createdBy.String
	event.CreatedByName = createdByName.String
	event.Origin = models.Origin(origin)
	event.RemoteID = remoteID.String

	return event, nil
}
