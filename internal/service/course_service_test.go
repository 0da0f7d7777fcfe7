package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

func newCourseFixture(t *testing.T) (*CourseService, *stubCourseRepo, *stubTermRepo) {
	t.Helper()
	terms := &stubTermRepo{terms: map[string]*models.Term{
		"open":   {ID: "open", TimetableFormat: "pre-2020", StartDate: day(2024, 9, 3), EndDate: day(2025, 1, 31)},
		"frozen": {ID: "frozen", TimetableFormat: "pre-2020", StartDate: day(2025, 2, 3), EndDate: day(2025, 6, 27), IsFrozen: true},
	}}
	formats := builtinFormats(t)
	repo := &stubCourseRepo{courses: map[string]*models.Course{}}
	return NewCourseService(repo, NewTermService(terms, formats, nil, zap.NewNop()), formats, nil, zap.NewNop()), repo, terms
}

var submitter = models.Actor{UserID: "u1", Role: models.RoleStudent}

func TestCourseCreateNormalisesCode(t *testing.T) {
	svc, _, _ := newCourseFixture(t)

	course, err := svc.Create(context.Background(), submitter, "open", CourseRequest{Code: " mhf4u ", Position: 2})
	require.NoError(t, err)
	assert.Equal(t, "MHF4U", course.Code)
	require.NotNil(t, course.SubmitterID)
	assert.Equal(t, "u1", *course.SubmitterID)
}

func TestCourseCreateRejectsFrozenTermAndBadPosition(t *testing.T) {
	svc, _, _ := newCourseFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, submitter, "frozen", CourseRequest{Code: "ENG4U", Position: 1})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))

	_, err = svc.Create(ctx, submitter, "open", CourseRequest{Code: "ENG4U", Position: 7})
	assert.Contains(t, appErrors.FromError(err).Fields, "position")
}

func TestCourseCreateDuplicateCodeConflicts(t *testing.T) {
	svc, _, _ := newCourseFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, submitter, "open", CourseRequest{Code: "ENG4U", Position: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, submitter, "open", CourseRequest{Code: "eng4u", Position: 3})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCourseEditsRestrictedToSubmitterOrAdmin(t *testing.T) {
	svc, _, _ := newCourseFixture(t)
	ctx := context.Background()
	course, err := svc.Create(ctx, submitter, "open", CourseRequest{Code: "SPH4U", Position: 4})
	require.NoError(t, err)

	other := models.Actor{UserID: "u2", Role: models.RoleStudent}
	_, err = svc.Update(ctx, other, course.ID, CourseRequest{Code: "SPH4U", Position: 3})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Update(ctx, submitter, course.ID, CourseRequest{Code: "SPH4U", Position: 3, Description: "Physics"})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Position)

	admin := models.Actor{UserID: "a1", Role: models.RoleAdmin}
	require.NoError(t, svc.Delete(ctx, admin, course.ID))

	courses, err := svc.ListByTerm(ctx, "open")
	require.NoError(t, err)
	assert.Empty(t, courses)
}

func TestTimetableReplaceEnforcesTermAndLimit(t *testing.T) {
	_, courses, terms := newCourseFixture(t)
	formats := builtinFormats(t)
	termSvc := NewTermService(terms, formats, nil, zap.NewNop())
	for _, c := range []models.Course{
		{ID: "c1", Code: "A", TermID: "open", Position: 1},
		{ID: "c2", Code: "B", TermID: "open", Position: 2},
		{ID: "c3", Code: "C", TermID: "open", Position: 3},
		{ID: "c4", Code: "D", TermID: "open", Position: 4},
		{ID: "c5", Code: "E", TermID: "open", Position: 1},
		{ID: "x1", Code: "F", TermID: "frozen", Position: 1},
	} {
		c := c
		courses.courses[c.ID] = &c
	}
	tables := &stubTimetableRepo{courses: courses}
	svc := NewTimetableService(tables, courses, termSvc, formats, nil, zap.NewNop())
	ctx := context.Background()

	empty, err := svc.Get(ctx, "u1", "open")
	require.NoError(t, err)
	assert.Empty(t, empty.Courses)

	tt, err := svc.Replace(ctx, "u1", "open", TimetableRequest{CourseIDs: []string{"c1", "c2", "c1"}})
	require.NoError(t, err)
	assert.Len(t, tt.Courses, 2)

	_, err = svc.Replace(ctx, "u1", "open", TimetableRequest{CourseIDs: []string{"c1", "c2", "c3", "c4", "c5"}})
	assert.Contains(t, appErrors.FromError(err).Fields, "course_ids")

	_, err = svc.Replace(ctx, "u1", "open", TimetableRequest{CourseIDs: []string{"c1", "x1"}})
	assert.Contains(t, appErrors.FromError(err).Fields, "course_ids")

	_, err = svc.Replace(ctx, "u1", "open", TimetableRequest{CourseIDs: []string{"missing"}})
	assert.Contains(t, appErrors.FromError(err).Fields, "course_ids")
}
