package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/metropolis-api/internal/models"
)

// ErrTermOverlap is returned when a term write would overlap another term's range.
var ErrTermOverlap = errors.New("term range overlaps an existing term")

const termColumns = "id, name, description, timetable_format, start_date, end_date, is_frozen, created_at, updated_at"

// TermRepository handles persistence for terms.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository instantiates a term repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// List returns terms matching provided filters.
func (r *TermRepository) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	base := "FROM terms WHERE 1=1"
	var args []interface{}

	if filter.TimetableFormat != "" {
		base += fmt.Sprintf(" AND timetable_format = $%d", len(args)+1)
		args = append(args, filter.TimetableFormat)
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"start_date": true,
		"end_date":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", termColumns, base, sortBy, order, size, offset)

	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list terms: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count terms: %w", err)
	}

	return terms, total, nil
}

// FindByID loads a term by identifier.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	query := "SELECT " + termColumns + " FROM terms WHERE id = $1"
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}

// ListCovering returns the terms whose [start_date, end_date) range contains day. At most two rows are read,
// which is enough for callers to detect a misconfiguration.
func (r *TermRepository) ListCovering(ctx context.Context, day time.Time) ([]models.Term, error) {
	query := "SELECT " + termColumns + " FROM terms WHERE start_date <= $1 AND end_date > $1 ORDER BY start_date LIMIT 2"
	var terms []models.Term
	if err := r.db.SelectContext(ctx, &terms, query, day.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("list covering terms: %w", err)
	}
	return terms, nil
}

// Create inserts a term after checking, under a table lock, that its range is free.
func (r *TermRepository) Create(ctx context.Context, term *models.Term) error {
	if term.ID == "" {
		term.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if term.CreatedAt.IsZero() {
		term.CreatedAt = now
	}
	term.UpdatedAt = now

	const query = `INSERT INTO terms (id, name, description, timetable_format, start_date, end_date, is_frozen, created_at, updated_at) VALUES (:id, :name, :description, :timetable_format, :start_date, :end_date, :is_frozen, :created_at, :updated_at)`
	return r.writeExclusive(ctx, term, query, "create term")
}

// Update modifies a term after checking, under a table lock, that its new range is free.
func (r *TermRepository) Update(ctx context.Context, term *models.Term) error {
	term.UpdatedAt = time.Now().UTC()
	const query = `UPDATE terms SET name = :name, description = :description, timetable_format = :timetable_format, start_date = :start_date, end_date = :end_date, is_frozen = :is_frozen, updated_at = :updated_at WHERE id = :id`
	return r.writeExclusive(ctx, term, query, "update term")
}

func (r *TermRepository) writeExclusive(ctx context.Context, term *models.Term, query, op string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `LOCK TABLE terms IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return fmt.Errorf("lock terms: %w", err)
	}

	var clash string
	switch qerr := tx.GetContext(ctx, &clash, `SELECT id FROM terms WHERE start_date < $2 AND end_date > $1 AND id <> $3 LIMIT 1`,
		term.StartDate.Format("2006-01-02"), term.EndDate.Format("2006-01-02"), term.ID); {
	case qerr == nil:
		return ErrTermOverlap
	case !errors.Is(qerr, sql.ErrNoRows):
		return fmt.Errorf("check term overlap: %w", qerr)
	}

	if _, err = tx.NamedExecContext(ctx, query, term); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", op, err)
	}
	return nil
}

// Delete removes a term permanently. Courses, events and timetables cascade.
func (r *TermRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM terms WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete term: %w", err)
	}
	return nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
