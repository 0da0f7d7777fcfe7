package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/repository"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

func newTermService(t *testing.T, repo *stubTermRepo) *TermService {
	return NewTermService(repo, builtinFormats(t), nil, zap.NewNop())
}

func TestTermCreateDefaultsToFrozen(t *testing.T) {
	repo := &stubTermRepo{}
	svc := newTermService(t, repo)

	term, err := svc.Create(context.Background(), TermRequest{
		Name: " Fall 2024 ", TimetableFormat: "pre-2020", StartDate: "2024-09-03", EndDate: "2025-01-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "Fall 2024", term.Name)
	assert.True(t, term.IsFrozen)
	assert.Equal(t, day(2024, 9, 3), term.StartDate)
	require.Len(t, repo.created, 1)
}

func TestTermCreateRejectsDateOrder(t *testing.T) {
	repo := &stubTermRepo{}
	svc := newTermService(t, repo)

	_, err := svc.Create(context.Background(), TermRequest{
		Name: "Bad", TimetableFormat: "pre-2020", StartDate: "2024-09-03", EndDate: "2024-09-03",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "start_date")
	assert.Contains(t, appErr.Fields, "end_date")
	assert.Empty(t, repo.created)
}

func TestTermCreateRejectsUnknownFormat(t *testing.T) {
	svc := newTermService(t, &stubTermRepo{})

	_, err := svc.Create(context.Background(), TermRequest{
		Name: "Bad", TimetableFormat: "nope", StartDate: "2024-09-03", EndDate: "2024-10-03",
	})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "timetable_format")
}

func TestTermCreateMapsOverlapToValidation(t *testing.T) {
	svc := newTermService(t, &stubTermRepo{writeErr: repository.ErrTermOverlap})

	_, err := svc.Create(context.Background(), TermRequest{
		Name: "Spring", TimetableFormat: "pre-2020", StartDate: "2024-12-01", EndDate: "2025-06-30",
	})
	appErr := appErrors.FromError(err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, appErr.Fields, "start_date")
	assert.Contains(t, appErr.Fields, "end_date")
}

func TestTermCreateAllowsAdjacentRanges(t *testing.T) {
	fall := models.Term{ID: "fall", Name: "Fall", TimetableFormat: "pre-2020", StartDate: day(2024, 9, 3), EndDate: day(2025, 1, 31)}
	repo := &stubTermRepo{terms: map[string]*models.Term{"fall": &fall}}
	svc := newTermService(t, repo)
	ctx := context.Background()

	spring, err := svc.Create(ctx, TermRequest{
		Name: "Spring", TimetableFormat: "pre-2020", StartDate: "2025-01-31", EndDate: "2025-06-27",
	})
	require.NoError(t, err)
	assert.Equal(t, day(2025, 1, 31), spring.StartDate)

	_, err = svc.Create(ctx, TermRequest{
		Name: "Summer", TimetableFormat: "pre-2020", StartDate: "2025-06-26", EndDate: "2025-08-29",
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestTermCreateMissingFieldsNamesThem(t *testing.T) {
	svc := newTermService(t, &stubTermRepo{})

	_, err := svc.Create(context.Background(), TermRequest{TimetableFormat: "pre-2020", StartDate: "2024-12-01"})
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Fields, "name")
	assert.Contains(t, appErr.Fields, "end_date")
}

func TestTermGetCurrent(t *testing.T) {
	fall := models.Term{ID: "fall", StartDate: day(2024, 9, 3), EndDate: day(2025, 1, 31)}
	repo := &stubTermRepo{terms: map[string]*models.Term{"fall": &fall}}
	svc := newTermService(t, repo)

	term, err := svc.GetCurrent(context.Background(), day(2024, 10, 1))
	require.NoError(t, err)
	require.NotNil(t, term)
	assert.Equal(t, "fall", term.ID)

	term, err = svc.GetCurrent(context.Background(), day(2025, 1, 31))
	require.NoError(t, err)
	assert.Nil(t, term)
}

func TestTermGetCurrentDetectsMisconfiguration(t *testing.T) {
	repo := &stubTermRepo{covering: []models.Term{{ID: "a"}, {ID: "b"}}}
	svc := newTermService(t, repo)

	_, err := svc.GetCurrent(context.Background(), day(2024, 10, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrMisconfiguredTerm))
}

func TestTermUpdateAndDelete(t *testing.T) {
	fall := models.Term{ID: "fall", Name: "Fall", TimetableFormat: "pre-2020", StartDate: day(2024, 9, 3), EndDate: day(2025, 1, 31), IsFrozen: true}
	repo := &stubTermRepo{terms: map[string]*models.Term{"fall": &fall}}
	svc := newTermService(t, repo)

	updated, err := svc.Update(context.Background(), "fall", TermRequest{
		Name: "Fall", TimetableFormat: "week", StartDate: "2024-09-03", EndDate: "2025-01-31", IsFrozen: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, "week", updated.TimetableFormat)
	assert.False(t, updated.IsFrozen)

	require.NoError(t, svc.Delete(context.Background(), "fall"))
	_, err = svc.Get(context.Background(), "fall")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
