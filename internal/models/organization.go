package models

import "time"

// Organization is a club or council. The owner counts as an exec.
type Organization struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Slug          string    `db:"slug" json:"slug"`
	OwnerID       *string   `db:"owner_id" json:"owner_id,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	ExecIDs       []string  `db:"-" json:"exec_ids"`
	SupervisorIDs []string  `db:"-" json:"supervisor_ids"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsExec reports whether userID owns or executes the organization.
func (o *Organization) IsExec(userID string) bool {
	if o.OwnerID != nil && *o.OwnerID == userID {
		return true
	}
	return contains(o.ExecIDs, userID)
}

// IsSupervisor reports whether userID supervises the organization.
func (o *Organization) IsSupervisor(userID string) bool {
	return contains(o.SupervisorIDs, userID)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
