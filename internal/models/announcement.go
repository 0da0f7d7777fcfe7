package models

import (
	"time"

	"github.com/lib/pq"
)

// AnnouncementStatus is the moderation state of an announcement.
type AnnouncementStatus string

const (
	AnnouncementStatusDraft    AnnouncementStatus = "draft"
	AnnouncementStatusPending  AnnouncementStatus = "pending"
	AnnouncementStatusApproved AnnouncementStatus = "approved"
	AnnouncementStatusRejected AnnouncementStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s AnnouncementStatus) Valid() bool {
	switch s {
	case AnnouncementStatusDraft, AnnouncementStatusPending, AnnouncementStatusApproved, AnnouncementStatusRejected:
		return true
	}
	return false
}

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID              string             `db:"id" json:"id"`
	OrganizationID  string             `db:"organization_id" json:"organization_id"`
	AuthorID        *string            `db:"author_id" json:"author_id,omitempty"`
	SupervisorID    *string            `db:"supervisor_id" json:"supervisor_id,omitempty"`
	Title           string             `db:"title" json:"title"`
	Body            string             `db:"body" json:"body"`
	Tags            pq.StringArray     `db:"tags" json:"tags"`
	ShowAfter       time.Time          `db:"show_after" json:"show_after"`
	IsPublic        bool               `db:"is_public" json:"is_public"`
	Status          AnnouncementStatus `db:"status" json:"status"`
	RejectionReason string             `db:"rejection_reason" json:"rejection_reason"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	// OrganizationIDs restricts results; nil means every organization.
	OrganizationIDs []string
	Status          AnnouncementStatus
	Page            int
	PageSize        int
}

// FeedFilter selects the public feed.
type FeedFilter struct {
	Now      time.Time
	Page     int
	PageSize int
}
