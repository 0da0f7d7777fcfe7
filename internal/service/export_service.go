package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/timetable"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
	"github.com/noah-isme/metropolis-api/pkg/export"
)

type scheduleRanger interface {
	Range(ctx context.Context, termID string, from, to time.Time) ([]timetable.Day, error)
}

// ExportFile is a rendered document ready to be downloaded.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

var scheduleHeaders = []string{"Date", "Cycle", "Variant", "Period", "Time", "Positions", "Course label"}

// ExportService renders day schedules into downloadable documents.
type ExportService struct {
	schedules scheduleRanger
	terms     termLookup
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(schedules scheduleRanger, terms termLookup, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{schedules: schedules, terms: terms, logger: logger}
}

// ScheduleExport renders every period of the term between from and to inclusive.
func (s *ExportService) ScheduleExport(ctx context.Context, termID string, from, to time.Time, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Invalid("unsupported export format", map[string]string{"format": "must be csv or pdf"})
	}
	term, err := s.terms.Get(ctx, termID)
	if err != nil {
		return nil, err
	}
	days, err := s.schedules.Range(ctx, termID, from, to)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Title:   fmt.Sprintf("%s schedule %s to %s", term.Name, from.Format(dateLayout), to.Format(dateLayout)),
		Headers: scheduleHeaders,
	}
	for _, day := range days {
		for _, p := range day.Periods {
			data.Rows = append(data.Rows, map[string]string{
				"Date":         day.Date,
				"Cycle":        day.CycleLabel,
				"Variant":      day.Variant,
				"Period":       p.Label,
				"Time":         p.TimeLabel,
				"Positions":    joinInts(p.Positions),
				"Course label": p.CourseLabel,
			})
		}
	}

	body, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("schedule exported", zap.String("term_id", termID), zap.Int("days", len(days)), zap.String("format", renderer.Extension()))
	return &ExportFile{
		Filename:    fmt.Sprintf("schedule-%s-%s-%s.%s", slug(term.Name), from.Format(dateLayout), to.Format(dateLayout), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, " ")
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
