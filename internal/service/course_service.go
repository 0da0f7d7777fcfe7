package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type courseRepository interface {
	ListByTerm(ctx context.Context, termID string) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, termID, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CourseRequest is the payload for submitting or editing a course.
type CourseRequest struct {
	Code        string `json:"code" validate:"required,max=20"`
	Position    int    `json:"position"`
	Description string `json:"description" validate:"max=500"`
}

// CourseService maintains the course catalogue of each term.
type CourseService struct {
	repo      courseRepository
	terms     termLookup
	formats   *timetable.Registry
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates the course service.
func NewCourseService(repo courseRepository, terms termLookup, formats *timetable.Registry, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, terms: terms, formats: formats, validator: validate, logger: logger}
}

// ListByTerm returns the courses of a term.
func (s *CourseService) ListByTerm(ctx context.Context, termID string) ([]models.Course, error) {
	if _, err := s.terms.Get(ctx, termID); err != nil {
		return nil, err
	}
	courses, err := s.repo.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// Create submits a course to an unfrozen term.
func (s *CourseService) Create(ctx context.Context, actor models.Actor, termID string, req CourseRequest) (*models.Course, error) {
	term, err := s.writableTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	course := &models.Course{TermID: term.ID}
	if actor.UserID != "" {
		submitter := actor.UserID
		course.SubmitterID = &submitter
	}
	if err := s.apply(ctx, term, course, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update edits a course. Only its submitter or an administrator may do so.
func (s *CourseService) Update(ctx context.Context, actor models.Actor, id string, req CourseRequest) (*models.Course, error) {
	course, term, err := s.editable(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, term, course, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course.
func (s *CourseService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if _, _, err := s.editable(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) editable(ctx context.Context, actor models.Actor, id string) (*models.Course, *models.Term, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	admin := actor.IsSuperuser() || actor.Role == models.RoleAdmin
	if !admin && (course.SubmitterID == nil || *course.SubmitterID != actor.UserID) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter may change this course")
	}
	term, err := s.writableTerm(ctx, course.TermID)
	if err != nil {
		return nil, nil, err
	}
	return course, term, nil
}

func (s *CourseService) writableTerm(ctx context.Context, termID string) (*models.Term, error) {
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return nil, err
	}
	if term.IsFrozen {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "term courses are frozen")
	}
	return term, nil
}

func (s *CourseService) apply(ctx context.Context, term *models.Term, course *models.Course, req CourseRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return invalidPayload(err, "invalid course payload")
	}
	format, err := s.formats.Get(term.TimetableFormat)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "term uses an unknown timetable format")
	}
	if !format.HasPosition(req.Position) {
		return appErrors.Invalid("invalid position", map[string]string{
			"position": fmt.Sprintf("must be one of %v", format.Positions),
		})
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	exists, err := s.repo.ExistsByCode(ctx, term.ID, code, course.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "course "+code+" already exists in this term")
	}

	course.Code = code
	course.Position = req.Position
	course.Description = req.Description
	return nil
}
