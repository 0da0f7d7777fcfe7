package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type timetableRepository interface {
	FindByOwnerAndTerm(ctx context.Context, ownerID, termID string) (*models.Timetable, error)
	Replace(ctx context.Context, ownerID, termID string, courseIDs []string) error
}

type courseFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Course, error)
}

// TimetableRequest replaces the caller's course selection for a term.
type TimetableRequest struct {
	CourseIDs []string `json:"course_ids" validate:"dive,required"`
}

// TimetableService stores each user's course selection per term.
type TimetableService struct {
	repo      timetableRepository
	courses   courseFinder
	terms     termLookup
	formats   *timetable.Registry
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService creates the timetable service.
func NewTimetableService(repo timetableRepository, courses courseFinder, terms termLookup, formats *timetable.Registry,
	validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, courses: courses, terms: terms, formats: formats, validator: validate, logger: logger}
}

// Get returns the owner's timetable for the term. An owner without one gets an empty selection.
func (s *TimetableService) Get(ctx context.Context, ownerID, termID string) (*models.Timetable, error) {
	if _, err := s.terms.Get(ctx, termID); err != nil {
		return nil, err
	}
	tt, err := s.repo.FindByOwnerAndTerm(ctx, ownerID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.Timetable{OwnerID: ownerID, TermID: termID, Courses: []models.Course{}}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if tt.Courses == nil {
		tt.Courses = []models.Course{}
	}
	return tt, nil
}

// Replace stores a new selection. All courses must belong to the term and stay within the format's limit.
func (s *TimetableService) Replace(ctx context.Context, ownerID, termID string, req TimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid timetable payload")
	}
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return nil, err
	}
	format, err := s.formats.Get(term.TimetableFormat)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "term uses an unknown timetable format")
	}

	ids := dedupe(req.CourseIDs)
	if format.CoursesMax > 0 && len(ids) > format.CoursesMax {
		return nil, appErrors.Invalid("too many courses", map[string]string{
			"course_ids": fmt.Sprintf("at most %d courses allowed", format.CoursesMax),
		})
	}

	found, err := s.courses.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	inTerm := make(map[string]bool, len(found))
	for _, c := range found {
		inTerm[c.ID] = c.TermID == term.ID
	}
	for _, id := range ids {
		if !inTerm[id] {
			return nil, appErrors.Invalid("unknown course", map[string]string{
				"course_ids": "course " + id + " is not offered in this term",
			})
		}
	}

	if err := s.repo.Replace(ctx, ownerID, term.ID, ids); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	return s.Get(ctx, ownerID, term.ID)
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
