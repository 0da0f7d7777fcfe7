package models

import "time"

// Course is a course offering within a term.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	TermID      string    `db:"term_id" json:"term_id"`
	Position    int       `db:"position" json:"position"`
	Description string    `db:"description" json:"description"`
	SubmitterID *string   `db:"submitter_id" json:"submitter_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Timetable is a student's course selection for one term.
type Timetable struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	Courses   []Course  `db:"-" json:"courses"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
