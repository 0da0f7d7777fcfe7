package timetable

import (
	"fmt"
	"time"

	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

// EventSpan is the slice of an event the scheduler depends on.
type EventSpan struct {
	Start          time.Time
	End            time.Time
	ScheduleFormat string
	Instructional  bool
}

func (e EventSpan) overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && e.End.After(from)
}

// Period is one materialised slot of a day schedule.
type Period struct {
	Label       string    `json:"label"`
	TimeLabel   string    `json:"time_label"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Positions   []int     `json:"positions"`
	CourseLabel string    `json:"course_label"`
}

// Day is the computed schedule of an instructional date.
type Day struct {
	Date       string   `json:"date"`
	CycleDay   int      `json:"cycle_day"`
	CycleLabel string   `json:"cycle_label"`
	Variant    string   `json:"variant"`
	Periods    []Period `json:"periods"`
}

// Option tunes a Calendar.
type Option func(*Calendar)

// StrictVariants makes two different non-default variants on one date an error instead of a tie-break.
func StrictVariants(strict bool) Option {
	return func(c *Calendar) { c.strict = strict }
}

// Calendar answers scheduling questions for one term. Dates are read by their calendar fields
// (year, month, day); the clock part and zone of a date argument are ignored.
type Calendar struct {
	format   *Format
	loc      *time.Location
	start    time.Time
	end      time.Time
	events   []EventSpan
	closures []EventSpan
	strict   bool
}

// NewCalendar builds a calendar for a term spanning [termStart, termEnd).
func NewCalendar(format *Format, termStart, termEnd time.Time, loc *time.Location, events []EventSpan, opts ...Option) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &Calendar{
		format: format,
		loc:    loc,
		start:  civil(termStart, loc),
		end:    civil(termEnd, loc),
		events: events,
	}
	for _, e := range events {
		if !e.Instructional {
			c.closures = append(c.closures, e)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func civil(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func (c *Calendar) window(day time.Time) (time.Time, time.Time) {
	from := civil(day, c.loc)
	return from, from.AddDate(0, 0, 1)
}

// Contains reports whether day falls in [start, end) of the term.
func (c *Calendar) Contains(day time.Time) bool {
	d := civil(day, c.loc)
	return !d.Before(c.start) && d.Before(c.end)
}

// IsInstructional reports whether classes run on day: a weekday with no closure event touching it.
func (c *Calendar) IsInstructional(day time.Time) bool {
	from, to := c.window(day)
	if wd := from.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	for _, e := range c.closures {
		if e.overlaps(from, to) {
			return false
		}
	}
	return true
}

// DayNumber returns the cycle day of day. ok is false outside the term and on non-instructional dates.
func (c *Calendar) DayNumber(day time.Time) (n int, ok bool, err error) {
	if !c.Contains(day) || !c.IsInstructional(day) {
		return 0, false, nil
	}

	switch c.format.DayNumMethod {
	case MethodCalendarDays:
		if c.format.Cycle.Length != 2 {
			return 0, false, &ConfigError{Problems: []string{
				fmt.Sprintf("format %q: calendar_days numbering requires a cycle length of 2", c.format.Name),
			}}
		}
		if civil(day, c.loc).Day()%2 == 0 {
			return 2, true, nil
		}
		return 1, true, nil
	default:
		return c.consecutive(civil(day, c.loc)), true, nil
	}
}

type isoWeek struct{ year, week int }

func (c *Calendar) consecutive(target time.Time) int {
	ticks := make(map[interface{}]struct{})
	for d := c.start; !d.After(target); d = d.AddDate(0, 0, 1) {
		if !c.IsInstructional(d) {
			continue
		}
		if c.format.Cycle.Unit == UnitWeek {
			y, w := d.ISOWeek()
			ticks[isoWeek{y, w}] = struct{}{}
			continue
		}
		ticks[d.Format("2006-01-02")] = struct{}{}
	}
	return (len(ticks)-1)%c.format.Cycle.Length + 1
}

// Variant resolves the schedule variant in force on day. Later declared variants win when several events
// name different ones, unless the calendar is strict.
func (c *Calendar) Variant(day time.Time) (string, error) {
	from, to := c.window(day)
	named := make(map[string]struct{})
	for _, e := range c.events {
		if e.overlaps(from, to) {
			named[e.ScheduleFormat] = struct{}{}
		}
	}

	var matches, overrides []string
	for i := len(c.format.Variants) - 1; i >= 0; i-- {
		name := c.format.Variants[i].Name
		if _, ok := named[name]; !ok {
			continue
		}
		matches = append(matches, name)
		if name != DefaultVariant {
			overrides = append(overrides, name)
		}
	}

	switch {
	case len(matches) == 0:
		return DefaultVariant, nil
	case len(overrides) > 1 && c.strict:
		return "", appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("conflicting schedule variants on %s: %v", from.Format("2006-01-02"), overrides))
	default:
		return matches[0], nil
	}
}

// Day computes the full schedule for day. A nil Day with a nil error means there is no schedule.
func (c *Calendar) Day(day time.Time) (*Day, error) {
	n, ok, err := c.DayNumber(day)
	if err != nil || !ok {
		return nil, err
	}

	name, err := c.Variant(day)
	if err != nil {
		return nil, err
	}
	variant, found := c.format.Variant(name)
	if !found {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("format %q: variant %q missing", c.format.Name, name)}}
	}

	date := civil(day, c.loc)
	cycleLabel := fmt.Sprintf("%s %d", c.format.Cycle.Unit.Title(), n)
	out := &Day{
		Date:       date.Format("2006-01-02"),
		CycleDay:   n,
		CycleLabel: cycleLabel,
		Variant:    name,
		Periods:    make([]Period, 0, len(variant.Slots)),
	}
	for _, slot := range variant.Slots {
		out.Periods = append(out.Periods, Period{
			Label:       slot.Label,
			TimeLabel:   slot.TimeLabel,
			Start:       slot.Start.On(date, c.loc),
			End:         slot.End.On(date, c.loc),
			Positions:   append([]int(nil), slot.Positions[n-1]...),
			CourseLabel: cycleLabel + " " + slot.Label,
		})
	}
	return out, nil
}
