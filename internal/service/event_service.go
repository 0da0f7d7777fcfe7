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

// LateStartVariant is the schedule variant used by late start days.
const LateStartVariant = "late-start"

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

type scheduleInvalidator interface {
	InvalidateTerm(ctx context.Context, termID string)
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateTerm(context.Context, string) {}

// EventRequest is the payload for creating or replacing an event.
type EventRequest struct {
	Name               string    `json:"name" validate:"required,max=200"`
	Description        string    `json:"description"`
	TermID             string    `json:"term_id" validate:"required"`
	OrganizationID     string    `json:"organization_id" validate:"required"`
	StartDate          time.Time `json:"start_date" validate:"required"`
	EndDate            time.Time `json:"end_date" validate:"required"`
	ScheduleFormat     string    `json:"schedule_format"`
	IsPublic           *bool     `json:"is_public"`
	ShouldAnnounce     bool      `json:"should_announce"`
	ExternalCalendarID *string   `json:"external_calendar_id"`
}

// EventService manages calendar events. Every write re-derives is_instructional from the event's variant.
type EventService struct {
	repo         eventRepository
	terms        termLookup
	formats      *timetable.Registry
	schedules    scheduleInvalidator
	validator    *validator.Validate
	logger       *zap.Logger
	loc          *time.Location
	lateStartOrg string
}

// NewEventService creates the event service.
func NewEventService(repo eventRepository, terms termLookup, formats *timetable.Registry, schedules scheduleInvalidator,
	validate *validator.Validate, logger *zap.Logger, loc *time.Location, lateStartOrg string) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if schedules == nil {
		schedules = noopInvalidator{}
	}
	return &EventService{
		repo:         repo,
		terms:        terms,
		formats:      formats,
		schedules:    schedules,
		validator:    validate,
		logger:       logger,
		loc:          loc,
		lateStartOrg: lateStartOrg,
	}
}

// List returns events matching the filter.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, nil, appErrors.Invalid("invalid range", map[string]string{"end": "must not be before start"})
	}
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	return events, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns one event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// GetVisible returns the event, hiding private events from anonymous callers.
func (s *EventService) GetVisible(ctx context.Context, id string, publicOnly bool) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if publicOnly && !event.IsPublic {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

// Create stores a new event.
func (s *EventService) Create(ctx context.Context, req EventRequest) (*models.Event, error) {
	event := &models.Event{IsPublic: true}
	if err := s.apply(ctx, event, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, eventWriteError(err, "failed to create event")
	}
	s.schedules.InvalidateTerm(ctx, event.TermID)
	return event, nil
}

// Update replaces an event.
func (s *EventService) Update(ctx context.Context, id string, req EventRequest) (*models.Event, error) {
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousTerm := event.TermID
	if err := s.apply(ctx, event, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, eventWriteError(err, "failed to update event")
	}
	s.schedules.InvalidateTerm(ctx, event.TermID)
	if previousTerm != event.TermID {
		s.schedules.InvalidateTerm(ctx, previousTerm)
	}
	return event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, id string) error {
	event, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.schedules.InvalidateTerm(ctx, event.TermID)
	return nil
}

// CreateLateStart marks day as a late start in the term covering it. The event is a one second marker at
// 10:00 local time so that only that date picks up the late-start variant.
func (s *EventService) CreateLateStart(ctx context.Context, day time.Time) (*models.Event, error) {
	if s.lateStartOrg == "" {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "late start organization is not configured")
	}
	term, err := s.terms.GetCurrent(ctx, day)
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no term covers "+day.Format(dateLayout))
	}

	start := time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, s.loc)
	return s.Create(ctx, EventRequest{
		Name:           "Late Start",
		TermID:         term.ID,
		OrganizationID: s.lateStartOrg,
		StartDate:      start,
		EndDate:        start.Add(time.Second),
		ScheduleFormat: LateStartVariant,
	})
}

func (s *EventService) apply(ctx context.Context, event *models.Event, req EventRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return invalidPayload(err, "invalid event payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return appErrors.Invalid("start_date must be before end_date", map[string]string{
			"start_date": "must be before end_date",
			"end_date":   "must be after start_date",
		})
	}

	term, err := s.terms.Get(ctx, req.TermID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return appErrors.Invalid("unknown term", map[string]string{"term_id": "term does not exist"})
		}
		return err
	}
	format, err := s.formats.Get(term.TimetableFormat)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "term uses an unknown timetable format")
	}

	variantName := strings.TrimSpace(req.ScheduleFormat)
	if variantName == "" {
		variantName = timetable.DefaultVariant
	}
	variant, ok := format.Variant(variantName)
	if !ok {
		return appErrors.Invalid("unknown schedule format", map[string]string{
			"schedule_format": "must be one of " + strings.Join(format.VariantNames(), ", "),
		})
	}

	event.Name = strings.TrimSpace(req.Name)
	event.Description = req.Description
	event.TermID = term.ID
	event.OrganizationID = req.OrganizationID
	event.StartDate = req.StartDate
	event.EndDate = req.EndDate
	event.ScheduleFormat = variant.Name
	event.IsInstructional = variant.Instructional()
	event.ShouldAnnounce = req.ShouldAnnounce
	event.ExternalCalendarID = req.ExternalCalendarID
	if req.IsPublic != nil {
		event.IsPublic = *req.IsPublic
	}
	return nil
}

func eventWriteError(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicateExternalID) {
		return appErrors.Clone(appErrors.ErrConflict, "another event already uses this external calendar id")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
