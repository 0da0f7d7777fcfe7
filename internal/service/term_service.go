package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/repository"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error)
	FindByID(ctx context.Context, id string) (*models.Term, error)
	ListCovering(ctx context.Context, day time.Time) ([]models.Term, error)
	Create(ctx context.Context, term *models.Term) error
	Update(ctx context.Context, term *models.Term) error
	Delete(ctx context.Context, id string) error
}

// TermRequest is the payload for creating or replacing a term.
type TermRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	Description     string `json:"description"`
	TimetableFormat string `json:"timetable_format" validate:"required"`
	StartDate       string `json:"start_date" validate:"required"`
	EndDate         string `json:"end_date" validate:"required"`
	IsFrozen        *bool  `json:"is_frozen"`
}

// TermService is the registry of terms: it guarantees that at most one term covers any date.
type TermService struct {
	repo      termRepository
	formats   *timetable.Registry
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService creates a new term service instance.
func NewTermService(repo termRepository, formats *timetable.Registry, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, formats: formats, validator: validate, logger: logger}
}

// List returns paginated terms.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.Term, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	return terms, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a term by ID.
func (s *TermService) Get(ctx context.Context, id string) (*models.Term, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// GetCurrent returns the term covering day, or nil when no term does.
// Two covering terms mean overlapping rows were written outside this service.
func (s *TermService) GetCurrent(ctx context.Context, day time.Time) (*models.Term, error) {
	terms, err := s.repo.ListCovering(ctx, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return &terms[0], nil
	default:
		ids := make([]string, 0, len(terms))
		for _, t := range terms {
			ids = append(ids, t.ID)
		}
		s.logger.Error("multiple terms cover date",
			zap.String("date", day.Format(dateLayout)), zap.Strings("term_ids", ids))
		return nil, appErrors.Clone(appErrors.ErrMisconfiguredTerm, "multiple terms cover "+day.Format(dateLayout))
	}
}

// Create adds a new term. The overlap check and insert run under one table lock.
func (s *TermService) Create(ctx context.Context, req TermRequest) (*models.Term, error) {
	term := &models.Term{IsFrozen: true}
	if err := s.apply(term, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, s.writeError(err, "failed to create term")
	}
	s.logger.Info("term created", zap.String("term_id", term.ID), zap.String("format", term.TimetableFormat))
	return term, nil
}

// Update replaces the mutable fields of a term.
func (s *TermService) Update(ctx context.Context, id string, req TermRequest) (*models.Term, error) {
	term, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(term, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, term); err != nil {
		return nil, s.writeError(err, "failed to update term")
	}
	return term, nil
}

// Delete removes a term together with its courses, events and timetables.
func (s *TermService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}

func (s *TermService) apply(term *models.Term, req TermRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return invalidPayload(err, "invalid term payload")
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return err
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return appErrors.Invalid("start_date must be before end_date", map[string]string{
			"start_date": "must be before end_date",
			"end_date":   "must be after start_date",
		})
	}
	format := strings.TrimSpace(req.TimetableFormat)
	if s.formats != nil {
		if _, err := s.formats.Get(format); err != nil {
			return appErrors.Invalid("unknown timetable format", map[string]string{"timetable_format": "unknown format " + format})
		}
	}

	term.Name = strings.TrimSpace(req.Name)
	term.Description = req.Description
	term.TimetableFormat = format
	term.StartDate = start
	term.EndDate = end
	if req.IsFrozen != nil {
		term.IsFrozen = *req.IsFrozen
	}
	return nil
}

func (s *TermService) writeError(err error, message string) error {
	if errors.Is(err, repository.ErrTermOverlap) {
		return appErrors.Invalid("term overlaps an existing term", map[string]string{
			"start_date": "overlaps an existing term",
			"end_date":   "overlaps an existing term",
		})
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
