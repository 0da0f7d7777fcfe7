package models

import "time"

// Term is a date range [StartDate, EndDate) running one timetable format.
type Term struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	TimetableFormat string    `db:"timetable_format" json:"timetable_format"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	IsFrozen        bool      `db:"is_frozen" json:"is_frozen"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Covers reports whether the calendar date of day lies within the term.
func (t Term) Covers(day time.Time) bool {
	d := dateOf(day)
	return !d.Before(dateOf(t.StartDate)) && d.Before(dateOf(t.EndDate))
}

// Overlaps reports whether [start, end) shares a calendar date with the term. Ranges that only touch do not overlap.
func (t Term) Overlaps(start, end time.Time) bool {
	return dateOf(t.StartDate).Before(dateOf(end)) && dateOf(start).Before(dateOf(t.EndDate))
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	TimetableFormat string
	Page            int
	PageSize        int
	SortBy          string
	SortOrder       string
}
