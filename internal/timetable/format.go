package timetable

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CycleUnit is the granularity a rotation advances by.
type CycleUnit string

const (
	UnitDay  CycleUnit = "day"
	UnitWeek CycleUnit = "week"
)

// Title renders the unit the way it appears in schedule labels.
func (u CycleUnit) Title() string {
	switch u {
	case UnitWeek:
		return "Week"
	default:
		return "Day"
	}
}

// DayNumMethod selects how the cycle day number of a date is derived.
type DayNumMethod string

const (
	MethodConsecutive  DayNumMethod = "consecutive"
	MethodCalendarDays DayNumMethod = "calendar_days"
)

// DefaultVariant is used when no event on a date names another variant.
const DefaultVariant = "default"

// Clock is a wall-clock offset within a day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24 hour notation.
func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q", raw)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Kitchen renders the clock as "08:45 AM".
func (c Clock) Kitchen() string {
	return time.Date(2000, 1, 1, c.Hour, c.Minute, 0, 0, time.UTC).Format("03:04 PM")
}

// Before reports whether c is strictly earlier than o.
func (c Clock) Before(o Clock) bool {
	return c.Hour*60+c.Minute < o.Hour*60+o.Minute
}

// On anchors the clock to the calendar date of day in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// MarshalJSON implements json.Marshaler.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Slot is one period of a schedule variant. Positions holds, per cycle day, the course positions taught in it.
type Slot struct {
	Label     string  `json:"label"`
	TimeLabel string  `json:"time_label"`
	Start     Clock   `json:"start"`
	End       Clock   `json:"end"`
	Positions [][]int `json:"positions"`
}

// Variant is a named list of slots. A variant without slots marks a day without classes.
type Variant struct {
	Name  string `json:"name"`
	Slots []Slot `json:"slots"`
}

// Instructional reports whether school runs under this variant.
func (v Variant) Instructional() bool {
	return len(v.Slots) > 0
}

// Cycle describes the rotation length.
type Cycle struct {
	Length int       `json:"length"`
	Unit   CycleUnit `json:"unit"`
}

// Choice is one answer to the course placement question.
type Choice struct {
	Value int    `json:"value" mapstructure:"value"`
	Label string `json:"label" mapstructure:"label"`
}

// Question is asked when a course is submitted to find its position.
type Question struct {
	Prompt  string   `json:"prompt" mapstructure:"prompt"`
	Choices []Choice `json:"choices" mapstructure:"choices"`
}

// Format is a validated rotation schedule definition. Values are immutable once loaded.
type Format struct {
	Name         string       `json:"name"`
	Variants     []Variant    `json:"variants"`
	Positions    []int        `json:"positions"`
	Cycle        Cycle        `json:"cycle"`
	DayNumMethod DayNumMethod `json:"day_num_method"`
	CoursesMax   int          `json:"courses_max"`
	Question     Question     `json:"question"`
}

// Variant looks up a variant by name.
func (f *Format) Variant(name string) (*Variant, bool) {
	for i := range f.Variants {
		if f.Variants[i].Name == name {
			return &f.Variants[i], true
		}
	}
	return nil, false
}

// VariantNames lists variant names in declaration order.
func (f *Format) VariantNames() []string {
	names := make([]string, 0, len(f.Variants))
	for _, v := range f.Variants {
		names = append(names, v.Name)
	}
	return names
}

// HasPosition reports whether p is a declared course position.
func (f *Format) HasPosition(p int) bool {
	for _, pos := range f.Positions {
		if pos == p {
			return true
		}
	}
	return false
}
