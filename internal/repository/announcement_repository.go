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

// ErrStaleStatus is returned when an announcement changed status since it was read.
var ErrStaleStatus = errors.New("announcement status changed concurrently")

const announcementColumns = "id, organization_id, author_id, supervisor_id, title, body, tags, show_after, is_public, status, rejection_reason, created_at, updated_at"

// AnnouncementRepository provides persistence for announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements for the moderation views.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	var where []string
	var args []interface{}

	if filter.OrganizationIDs != nil {
		where = append(where, fmt.Sprintf("organization_id = ANY($%d)", len(args)+1))
		args = append(args, pqStringArray(filter.OrganizationIDs))
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	return r.page(ctx, where, args, "updated_at DESC", filter.Page, filter.PageSize)
}

// Feed returns approved public announcements already past their show_after time.
func (r *AnnouncementRepository) Feed(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, int, error) {
	where := []string{"status = $1", "is_public = TRUE", "show_after <= $2"}
	args := []interface{}{models.AnnouncementStatusApproved, filter.Now}
	return r.page(ctx, where, args, "show_after DESC", filter.Page, filter.PageSize)
}

func (r *AnnouncementRepository) page(ctx context.Context, where []string, args []interface{}, order string, page, size int) ([]models.Announcement, int, error) {
	base := "FROM announcements"
	if len(where) > 0 {
		base += " WHERE " + strings.Join(where, " AND ")
	}
	page, size = normalisePage(page, size)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", announcementColumns, base, order, size, (page-1)*size)
	var announcements []models.Announcement
	if err := r.db.SelectContext(ctx, &announcements, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return announcements, total, nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := "SELECT " + announcementColumns + " FROM announcements WHERE id = $1"
	var announcement models.Announcement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	if announcement.Tags == nil {
		announcement.Tags = pq.StringArray{}
	}
	announcement.UpdatedAt = now
	query := `INSERT INTO announcements (id, organization_id, author_id, supervisor_id, title, body, tags, show_after, is_public, status, rejection_reason, created_at, updated_at)
VALUES (:id, :organization_id, :author_id, :supervisor_id, :title, :body, :tags, :show_after, :is_public, :status, :rejection_reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// UpdateIfStatus writes the announcement only if its stored status still equals expected.
// ErrStaleStatus is returned when another writer got there first.
func (r *AnnouncementRepository) UpdateIfStatus(ctx context.Context, announcement *models.Announcement, expected models.AnnouncementStatus) error {
	announcement.UpdatedAt = time.Now().UTC()
	if announcement.Tags == nil {
		announcement.Tags = pq.StringArray{}
	}
	const query = `UPDATE announcements SET title = $1, body = $2, tags = $3, show_after = $4, is_public = $5, status = $6,
rejection_reason = $7, supervisor_id = $8, updated_at = $9
WHERE id = $10 AND status = $11`
	res, err := r.db.ExecContext(ctx, query,
		announcement.Title, announcement.Body, announcement.Tags, announcement.ShowAfter, announcement.IsPublic,
		announcement.Status, announcement.RejectionReason, announcement.SupervisorID, announcement.UpdatedAt,
		announcement.ID, expected)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update announcement rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleStatus
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM announcements WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

// pqStringArray helper ensures we pass string arrays consistently.
func pqStringArray(values []string) interface{} {
	return pq.Array(values)
}
