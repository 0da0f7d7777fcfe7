package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/metropolis-api/internal/models"
)

// OrganizationRepository reads organizations and their staff.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// FindByID loads an organization together with its exec and supervisor ids.
func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	const query = `SELECT id, name, slug, owner_id, is_active, created_at, updated_at FROM organizations WHERE id = $1`
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}

	if err := r.db.SelectContext(ctx, &org.ExecIDs, `SELECT user_id FROM organization_execs WHERE organization_id = $1 ORDER BY user_id`, id); err != nil {
		return nil, fmt.Errorf("list organization execs: %w", err)
	}
	if err := r.db.SelectContext(ctx, &org.SupervisorIDs, `SELECT user_id FROM organization_supervisors WHERE organization_id = $1 ORDER BY user_id`, id); err != nil {
		return nil, fmt.Errorf("list organization supervisors: %w", err)
	}
	return &org, nil
}

// ListStaffedBy returns ids of active organizations the user owns, executes or supervises.
func (r *OrganizationRepository) ListStaffedBy(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT o.id FROM organizations o
WHERE o.is_active = TRUE AND (
	o.owner_id = $1
	OR EXISTS (SELECT 1 FROM organization_execs e WHERE e.organization_id = o.id AND e.user_id = $1)
	OR EXISTS (SELECT 1 FROM organization_supervisors s WHERE s.organization_id = o.id AND s.user_id = $1)
)
ORDER BY o.id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID); err != nil {
		return nil, fmt.Errorf("list staffed organizations: %w", err)
	}
	return ids, nil
}
