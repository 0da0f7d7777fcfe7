package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/metropolis-api/internal/models"
)

// TimetableRepository persists student course selections.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// FindByOwnerAndTerm loads the owner's timetable for a term with its courses.
func (r *TimetableRepository) FindByOwnerAndTerm(ctx context.Context, ownerID, termID string) (*models.Timetable, error) {
	const query = `SELECT id, owner_id, term_id, created_at, updated_at FROM timetables WHERE owner_id = $1 AND term_id = $2`
	var tt models.Timetable
	if err := r.db.GetContext(ctx, &tt, query, ownerID, termID); err != nil {
		return nil, err
	}

	const coursesQuery = `SELECT c.id, c.code, c.term_id, c.position, c.description, c.submitter_id, c.created_at, c.updated_at
FROM courses c JOIN timetable_courses tc ON tc.course_id = c.id
WHERE tc.timetable_id = $1 ORDER BY c.position, c.code`
	if err := r.db.SelectContext(ctx, &tt.Courses, coursesQuery, tt.ID); err != nil {
		return nil, fmt.Errorf("list timetable courses: %w", err)
	}
	return &tt, nil
}

// Replace stores the owner's selection for the term, creating the timetable on first use.
func (r *TimetableRepository) Replace(ctx context.Context, ownerID, termID string, courseIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	var id string
	const upsert = `INSERT INTO timetables (id, owner_id, term_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (owner_id, term_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
RETURNING id`
	if err = tx.GetContext(ctx, &id, upsert, uuid.NewString(), ownerID, termID, now); err != nil {
		return fmt.Errorf("upsert timetable: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM timetable_courses WHERE timetable_id = $1`, id); err != nil {
		return fmt.Errorf("clear timetable courses: %w", err)
	}
	for _, courseID := range courseIDs {
		if _, err = tx.ExecContext(ctx, `INSERT INTO timetable_courses (timetable_id, course_id) VALUES ($1, $2)`, id, courseID); err != nil {
			return fmt.Errorf("add timetable course: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable tx: %w", err)
	}
	return nil
}
