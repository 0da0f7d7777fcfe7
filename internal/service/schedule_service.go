package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type termLookup interface {
	Get(ctx context.Context, id string) (*models.Term, error)
	GetCurrent(ctx context.Context, day time.Time) (*models.Term, error)
}

type scheduleEventRepository interface {
	ListOverlapping(ctx context.Context, termID string, from, to time.Time) ([]models.Event, error)
}

type timetableReader interface {
	FindByOwnerAndTerm(ctx context.Context, ownerID, termID string) (*models.Timetable, error)
}

// ScheduleOptions tunes schedule computation.
type ScheduleOptions struct {
	Location       *time.Location
	StrictVariants bool
	MaxRangeDays   int
}

// PersonalPeriod is a period annotated with the caller's courses taught in it.
type PersonalPeriod struct {
	timetable.Period
	Courses []models.Course `json:"courses"`
}

// PersonalDay is a day schedule for one user.
type PersonalDay struct {
	TermID     string           `json:"term_id"`
	Date       string           `json:"date"`
	CycleDay   int              `json:"cycle_day"`
	CycleLabel string           `json:"cycle_label"`
	Variant    string           `json:"variant"`
	Periods    []PersonalPeriod `json:"periods"`
}

// ScheduleService computes day numbers and day schedules for terms.
type ScheduleService struct {
	terms      termLookup
	events     scheduleEventRepository
	timetables timetableReader
	formats    *timetable.Registry
	cache      *CacheService
	metrics    *MetricsService
	opts       ScheduleOptions
	logger     *zap.Logger
}

// NewScheduleService wires the scheduler.
func NewScheduleService(terms termLookup, events scheduleEventRepository, timetables timetableReader, formats *timetable.Registry,
	cache *CacheService, metrics *MetricsService, opts ScheduleOptions, logger *zap.Logger) *ScheduleService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxRangeDays <= 0 {
		opts.MaxRangeDays = 62
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		terms:      terms,
		events:     events,
		timetables: timetables,
		formats:    formats,
		cache:      cache,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
	}
}

// Location returns the zone schedules are expressed in.
func (s *ScheduleService) Location() *time.Location {
	return s.opts.Location
}

// Today returns the current calendar date in the schedule zone.
func (s *ScheduleService) Today() time.Time {
	now := time.Now().In(s.opts.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// DaySchedule returns the schedule of day in the term, or nil when there is none.
func (s *ScheduleService) DaySchedule(ctx context.Context, termID string, day time.Time) (*timetable.Day, error) {
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return nil, err
	}
	return s.dayForTerm(ctx, term, day)
}

// DayNumber returns the cycle day of day in the term. ok is false when the date has no schedule.
func (s *ScheduleService) DayNumber(ctx context.Context, termID string, day time.Time) (n int, ok bool, err error) {
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return 0, false, err
	}
	cal, err := s.calendar(ctx, term, day)
	if err != nil {
		return 0, false, err
	}
	n, ok, err = cal.DayNumber(day)
	if err != nil {
		return 0, false, s.computeError(err)
	}
	return n, ok, nil
}

// CurrentDaySchedule resolves the term covering day and computes its schedule.
// Both results are nil when no term covers the date.
func (s *ScheduleService) CurrentDaySchedule(ctx context.Context, day time.Time) (*models.Term, *timetable.Day, error) {
	term, err := s.terms.GetCurrent(ctx, day)
	if err != nil || term == nil {
		return nil, nil, err
	}
	schedule, err := s.dayForTerm(ctx, term, day)
	if err != nil {
		return nil, nil, err
	}
	return term, schedule, nil
}

// Range returns the schedules of every date in [from, to] that has one.
func (s *ScheduleService) Range(ctx context.Context, termID string, from, to time.Time) ([]timetable.Day, error) {
	if to.Before(from) {
		return nil, appErrors.Invalid("invalid range", map[string]string{"to": "must not be before from"})
	}
	span := int(to.Sub(from).Hours()/24) + 1
	if span > s.opts.MaxRangeDays {
		return nil, appErrors.Invalid("range too long", map[string]string{
			"to": fmt.Sprintf("range may cover at most %d days", s.opts.MaxRangeDays),
		})
	}
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return nil, err
	}
	cal, err := s.calendar(ctx, term, to)
	if err != nil {
		return nil, err
	}

	days := make([]timetable.Day, 0, span)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day, err := cal.Day(d)
		if err != nil {
			return nil, s.computeError(err)
		}
		if day != nil {
			days = append(days, *day)
		}
	}
	return days, nil
}

// PersonalSchedule returns the caller's schedule for day with their timetable courses placed in each period.
func (s *ScheduleService) PersonalSchedule(ctx context.Context, userID string, day time.Time) (*PersonalDay, error) {
	term, schedule, err := s.CurrentDaySchedule(ctx, day)
	if err != nil || schedule == nil {
		return nil, err
	}

	var courses []models.Course
	if s.timetables != nil {
		tt, err := s.timetables.FindByOwnerAndTerm(ctx, userID, term.ID)
		switch {
		case err == nil:
			courses = tt.Courses
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
		}
	}

	out := &PersonalDay{
		TermID:     term.ID,
		Date:       schedule.Date,
		CycleDay:   schedule.CycleDay,
		CycleLabel: schedule.CycleLabel,
		Variant:    schedule.Variant,
		Periods:    make([]PersonalPeriod, 0, len(schedule.Periods)),
	}
	for _, p := range schedule.Periods {
		pp := PersonalPeriod{Period: p, Courses: []models.Course{}}
		for _, c := range courses {
			if containsInt(p.Positions, c.Position) {
				pp.Courses = append(pp.Courses, c)
			}
		}
		out.Periods = append(out.Periods, pp)
	}
	return out, nil
}

// InvalidateTerm drops memoised schedules of a term.
func (s *ScheduleService) InvalidateTerm(ctx context.Context, termID string) {
	if err := s.cache.InvalidateTerm(ctx, termID); err != nil {
		s.logger.Warn("failed to invalidate schedules", zap.String("term_id", termID), zap.Error(err))
	}
}

func (s *ScheduleService) dayForTerm(ctx context.Context, term *models.Term, day time.Time) (*timetable.Day, error) {
	if cached, ok := s.cache.Day(ctx, term.ID, day); ok {
		s.metrics.RecordSchedule("cached")
		return cached, nil
	}

	cal, err := s.calendar(ctx, term, day)
	if err != nil {
		s.metrics.RecordSchedule("error")
		return nil, err
	}
	schedule, err := cal.Day(day)
	if err != nil {
		s.metrics.RecordSchedule("error")
		return nil, s.computeError(err)
	}
	if schedule == nil {
		s.metrics.RecordSchedule("no_schedule")
	} else {
		s.metrics.RecordSchedule("computed")
	}
	s.cache.StoreDay(ctx, term.ID, day, schedule)
	return schedule, nil
}

// calendar loads the events from the term start through the end of until, which is all a walk to until needs.
func (s *ScheduleService) calendar(ctx context.Context, term *models.Term, until time.Time) (*timetable.Calendar, error) {
	format, err := s.formats.Get(term.TimetableFormat)
	if err != nil {
		s.logger.Error("term references unknown timetable format",
			zap.String("term_id", term.ID), zap.String("format", term.TimetableFormat))
		return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "term uses an unknown timetable format")
	}

	loc := s.opts.Location
	from := time.Date(term.StartDate.Year(), term.StartDate.Month(), term.StartDate.Day(), 0, 0, 0, 0, loc)
	to := time.Date(until.Year(), until.Month(), until.Day()+1, 0, 0, 0, 0, loc)
	events, err := s.events.ListOverlapping(ctx, term.ID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}

	spans := make([]timetable.EventSpan, 0, len(events))
	for _, e := range events {
		spans = append(spans, timetable.EventSpan{
			Start:          e.StartDate,
			End:            e.EndDate,
			ScheduleFormat: e.ScheduleFormat,
			Instructional:  e.IsInstructional,
		})
	}
	return timetable.NewCalendar(format, term.StartDate, term.EndDate, loc, spans, timetable.StrictVariants(s.opts.StrictVariants)), nil
}

func (s *ScheduleService) computeError(err error) error {
	var cfgErr *timetable.ConfigError
	if errors.As(err, &cfgErr) {
		s.logger.Error("timetable configuration error", zap.Strings("problems", cfgErr.Problems))
		return appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, appErrors.ErrConfig.Message)
	}
	return appErrors.FromError(err)
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
