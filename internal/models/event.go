package models

import "time"

// Event is a dated entry on the school calendar. IsInstructional is derived from the schedule variant it names.
type Event struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	Description        string    `db:"description" json:"description"`
	TermID             string    `db:"term_id" json:"term_id"`
	OrganizationID     string    `db:"organization_id" json:"organization_id"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	ScheduleFormat     string    `db:"schedule_format" json:"schedule_format"`
	IsInstructional    bool      `db:"is_instructional" json:"is_instructional"`
	IsPublic           bool      `db:"is_public" json:"is_public"`
	ShouldAnnounce     bool      `db:"should_announce" json:"should_announce"`
	ExternalCalendarID *string   `db:"external_calendar_id" json:"external_calendar_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// EventFilter narrows down events.
type EventFilter struct {
	TermID     string
	Start      *time.Time
	End        *time.Time
	PublicOnly bool
	Page       int
	PageSize   int
}
