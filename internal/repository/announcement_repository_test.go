package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/internal/models"
)

var announcementRowColumns = []string{"id", "organization_id", "author_id", "supervisor_id", "title", "body", "tags", "show_after", "is_public", "status", "rejection_reason", "created_at", "updated_at"}

func TestAnnouncementUpdateIfStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	a := &models.Announcement{ID: "a1", Title: "Bake sale", Status: models.AnnouncementStatusPending}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $10 AND status = $11")).
		WithArgs("Bake sale", "", sqlmock.AnyArg(), sqlmock.AnyArg(), false, models.AnnouncementStatusPending, "", sqlmock.AnyArg(), sqlmock.AnyArg(), "a1", models.AnnouncementStatusDraft).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateIfStatus(context.Background(), a, models.AnnouncementStatusDraft))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementUpdateIfStatusDetectsRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectExec("UPDATE announcements SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateIfStatus(context.Background(), &models.Announcement{ID: "a1"}, models.AnnouncementStatusDraft)
	assert.True(t, errors.Is(err, ErrStaleStatus))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementFeed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(announcementRowColumns).
		AddRow("a1", "o1", "u1", "s1", "Bake sale", "Friday", "{food,fundraiser}", now, true, "approved", "", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM announcements WHERE status = $1 AND is_public = TRUE AND show_after <= $2 ORDER BY show_after DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.AnnouncementStatusApproved, now).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM announcements WHERE status = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.Feed(context.Background(), models.FeedFilter{Now: now})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"food", "fundraiser"}, []string(items[0].Tags))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementListScopesOrganizations(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM announcements WHERE organization_id = ANY($1) AND status = $2 ORDER BY updated_at DESC")).
		WillReturnRows(sqlmock.NewRows(announcementRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM announcements WHERE organization_id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), models.AnnouncementFilter{OrganizationIDs: []string{"o1"}, Status: models.AnnouncementStatusPending})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementCreateDefaultsTags(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAnnouncementRepository(db)

	mock.ExpectExec("INSERT INTO announcements").WillReturnResult(sqlmock.NewResult(1, 1))

	a := &models.Announcement{OrganizationID: "o1", Title: "Hi", Status: models.AnnouncementStatusDraft}
	require.NoError(t, repo.Create(context.Background(), a))
	assert.NotNil(t, a.Tags)
	assert.NotEmpty(t, a.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
