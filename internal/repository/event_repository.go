package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/metropolis-api/internal/models"
)

// ErrDuplicateExternalID is returned when another event already carries the external calendar id.
var ErrDuplicateExternalID = errors.New("external calendar id already in use")

const uniqueViolation = "23505"

const eventColumns = "id, name, description, term_id, organization_id, start_date, end_date, schedule_format, is_instructional, is_public, should_announce, external_calendar_id, created_at, updated_at"

// EventRepository persists calendar events.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// List returns events matching the filter ordered by start.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	base := "FROM events WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.End != nil {
		conditions = append(conditions, fmt.Sprintf("start_date < $%d", len(args)+1))
		args = append(args, *filter.End)
	}
	if filter.Start != nil {
		conditions = append(conditions, fmt.Sprintf("end_date > $%d", len(args)+1))
		args = append(args, *filter.Start)
	}
	if filter.PublicOnly {
		conditions = append(conditions, "is_public = TRUE")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY start_date ASC LIMIT %d OFFSET %d", eventColumns, base, size, (page-1)*size)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// ListOverlapping returns every event of the term whose [start, end) span intersects [from, to).
func (r *EventRepository) ListOverlapping(ctx context.Context, termID string, from, to time.Time) ([]models.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE term_id = $1 AND start_date < $3 AND end_date > $2 ORDER BY start_date"
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, termID, from, to); err != nil {
		return nil, fmt.Errorf("list overlapping events: %w", err)
	}
	return events, nil
}

// FindByID loads an event.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := "SELECT " + eventColumns + " FROM events WHERE id = $1"
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// Create inserts an event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, name, description, term_id, organization_id, start_date, end_date, schedule_format, is_instructional, is_public, should_announce, external_calendar_id, created_at, updated_at)
VALUES (:id, :name, :description, :term_id, :organization_id, :start_date, :end_date, :schedule_format, :is_instructional, :is_public, :should_announce, :external_calendar_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return eventWriteError("create event", err)
	}
	return nil
}

// Update modifies an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE events SET name = :name, description = :description, term_id = :term_id, organization_id = :organization_id,
start_date = :start_date, end_date = :end_date, schedule_format = :schedule_format, is_instructional = :is_instructional,
is_public = :is_public, should_announce = :should_announce, external_calendar_id = :external_calendar_id, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return eventWriteError("update event", err)
	}
	return nil
}

// Delete removes an event.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func eventWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrDuplicateExternalID)
	}
	return fmt.Errorf("%s: %w", op, err)
}
