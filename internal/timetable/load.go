package timetable

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

// Definition is the raw, unvalidated shape of a format as written in configuration files.
type Definition struct {
	Name         string              `mapstructure:"name"`
	Variants     []VariantDefinition `mapstructure:"variants"`
	Positions    []int               `mapstructure:"positions"`
	CycleLength  int                 `mapstructure:"cycle_length"`
	CycleUnit    string              `mapstructure:"cycle_unit"`
	DayNumMethod string              `mapstructure:"day_num_method"`
	CoursesMax   int                 `mapstructure:"courses_max"`
	Question     Question            `mapstructure:"question"`
}

// VariantDefinition is the raw shape of a schedule variant.
type VariantDefinition struct {
	Name  string           `mapstructure:"name"`
	Slots []SlotDefinition `mapstructure:"slots"`
}

// SlotDefinition is the raw shape of a period slot. Start and End use "HH:MM".
type SlotDefinition struct {
	Label     string  `mapstructure:"label"`
	TimeLabel string  `mapstructure:"time_label"`
	Start     string  `mapstructure:"start"`
	End       string  `mapstructure:"end"`
	Positions [][]int `mapstructure:"positions"`
}

// ConfigError lists every problem found while validating format definitions.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid timetable formats: " + strings.Join(e.Problems, "; ")
}

// Unwrap lets callers match the error against appErrors.ErrConfig.
func (e *ConfigError) Unwrap() error {
	return appErrors.ErrConfig
}

// Registry is the read-only set of loaded formats.
type Registry struct {
	formats map[string]*Format
	order   []string
}

// Get returns the named format.
func (r *Registry) Get(name string) (*Format, error) {
	if f, ok := r.formats[name]; ok {
		return f, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("timetable format %q not found", name))
}

// Names lists format names in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Formats lists every format in declaration order.
func (r *Registry) Formats() []*Format {
	out := make([]*Format, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.formats[name])
	}
	return out
}

// LoadFile reads a formats file (yaml, json or toml) with a top level "formats" list.
func LoadFile(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read timetable formats: %w", err)
	}

	var file struct {
		Formats []Definition `mapstructure:"formats"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode timetable formats: %w", err)
	}
	return Load(file.Formats)
}

// Load validates every definition. Nothing is returned unless all of them are valid.
func Load(defs []Definition) (*Registry, error) {
	var problems []string
	reg := &Registry{formats: make(map[string]*Format, len(defs))}

	if len(defs) == 0 {
		return nil, &ConfigError{Problems: []string{"no formats defined"}}
	}

	for i, def := range defs {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			problems = append(problems, fmt.Sprintf("format #%d: name is required", i+1))
			continue
		}
		if _, dup := reg.formats[name]; dup {
			problems = append(problems, fmt.Sprintf("format %q: declared more than once", name))
			continue
		}

		format, errs := compile(name, def)
		problems = append(problems, errs...)
		if len(errs) == 0 {
			reg.formats[name] = format
			reg.order = append(reg.order, name)
		}
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return reg, nil
}

func compile(name string, def Definition) (*Format, []string) {
	var problems []string
	fail := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf("format %q: ", name)+fmt.Sprintf(format, args...))
	}

	f := &Format{
		Name:         name,
		Cycle:        Cycle{Length: def.CycleLength, Unit: CycleUnit(strings.ToLower(def.CycleUnit))},
		DayNumMethod: DayNumMethod(def.DayNumMethod),
		CoursesMax:   def.CoursesMax,
		Question:     def.Question,
	}

	if f.Cycle.Length < 1 {
		fail("cycle length must be positive, got %d", def.CycleLength)
	}
	if f.Cycle.Unit != UnitDay && f.Cycle.Unit != UnitWeek {
		fail("cycle unit must be %q or %q, got %q", UnitDay, UnitWeek, def.CycleUnit)
	}
	switch f.DayNumMethod {
	case "":
		f.DayNumMethod = MethodConsecutive
	case MethodConsecutive:
	case MethodCalendarDays:
		if f.Cycle.Length != 2 {
			fail("calendar_days numbering requires a cycle length of 2, got %d", f.Cycle.Length)
		}
	default:
		fail("unknown day_num_method %q", def.DayNumMethod)
	}
	if f.CoursesMax < 1 {
		fail("courses_max must be positive, got %d", def.CoursesMax)
	}

	positions := make(map[int]struct{}, len(def.Positions))
	for _, p := range def.Positions {
		positions[p] = struct{}{}
	}
	if len(positions) == 0 {
		fail("at least one position is required")
	}
	for p := range positions {
		f.Positions = append(f.Positions, p)
	}
	sort.Ints(f.Positions)

	if len(def.Variants) == 0 {
		fail("at least one schedule variant is required")
	}

	seen := make(map[string]struct{}, len(def.Variants))
	for vi, vd := range def.Variants {
		vname := strings.TrimSpace(vd.Name)
		if vname == "" {
			fail("variant #%d: name is required", vi+1)
			continue
		}
		if _, dup := seen[vname]; dup {
			fail("variant %q: declared more than once", vname)
			continue
		}
		seen[vname] = struct{}{}

		variant := Variant{Name: vname, Slots: make([]Slot, 0, len(vd.Slots))}
		for si, sd := range vd.Slots {
			where := fmt.Sprintf("variant %q slot %d", vname, si+1)
			slot := Slot{Label: sd.Label, TimeLabel: sd.TimeLabel}

			if strings.TrimSpace(sd.Label) == "" {
				fail("%s: label is required", where)
			}
			start, startErr := ParseClock(sd.Start)
			end, endErr := ParseClock(sd.End)
			switch {
			case startErr != nil:
				fail("%s: %v", where, startErr)
			case endErr != nil:
				fail("%s: %v", where, endErr)
			case !start.Before(end):
				fail("%s: start %s is not before end %s", where, start, end)
			}
			slot.Start, slot.End = start, end
			if slot.TimeLabel == "" {
				slot.TimeLabel = start.Kitchen() + " - " + end.Kitchen()
			}

			if f.Cycle.Length > 0 && len(sd.Positions) != f.Cycle.Length {
				fail("%s: has positions for %d cycle days, want %d", where, len(sd.Positions), f.Cycle.Length)
			}
			for day, set := range sd.Positions {
				for _, p := range set {
					if _, ok := positions[p]; !ok {
						fail("%s: cycle day %d references undeclared position %d", where, day+1, p)
					}
				}
				slot.Positions = append(slot.Positions, append([]int(nil), set...))
			}
			variant.Slots = append(variant.Slots, slot)
		}
		f.Variants = append(f.Variants, variant)
	}

	if dv, ok := f.Variant(DefaultVariant); !ok {
		fail("a %q variant is required", DefaultVariant)
	} else if !dv.Instructional() {
		fail("the %q variant must define at least one slot", DefaultVariant)
	}

	return f, problems
}
