package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type memoryCache struct {
	entries map[string][]byte
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = map[string][]byte{}
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type scheduleFixture struct {
	terms   *stubTermRepo
	events  *stubEventRepo
	courses *stubCourseRepo
	tables  *stubTimetableRepo
	cache   *memoryCache
	svc     *ScheduleService
}

func newScheduleFixture(t *testing.T, opts ScheduleOptions) *scheduleFixture {
	t.Helper()
	fall := models.Term{ID: "fall", Name: "Fall", TimetableFormat: "pre-2020", StartDate: day(2024, 9, 3), EndDate: day(2025, 1, 31)}
	f := &scheduleFixture{
		terms:   &stubTermRepo{terms: map[string]*models.Term{"fall": &fall}},
		events:  &stubEventRepo{events: map[string]*models.Event{}},
		courses: &stubCourseRepo{courses: map[string]*models.Course{}},
		cache:   &memoryCache{},
	}
	f.tables = &stubTimetableRepo{courses: f.courses}
	formats := builtinFormats(t)
	terms := NewTermService(f.terms, formats, nil, zap.NewNop())
	cache := NewCacheService(f.cache, nil, time.Hour, zap.NewNop(), true)
	f.svc = NewScheduleService(terms, f.events, f.tables, formats, cache, nil, opts, zap.NewNop())
	return f
}

func TestDayNumberCountsSchoolDaysFromTermStart(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})
	ctx := context.Background()

	cases := map[time.Time]int{
		day(2024, 9, 3):  1,
		day(2024, 9, 4):  2,
		day(2024, 9, 6):  2,
		day(2024, 9, 9):  1,
		day(2024, 9, 10): 2,
	}
	for d, want := range cases {
		n, ok, err := f.svc.DayNumber(ctx, "fall", d)
		require.NoError(t, err)
		assert.True(t, ok, d.Format(dateLayout))
		assert.Equal(t, want, n, d.Format(dateLayout))
	}

	_, ok, err := f.svc.DayNumber(ctx, "fall", day(2024, 9, 7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDayScheduleSkipsClosures(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})
	f.events.events["closed"] = &models.Event{
		ID: "closed", TermID: "fall", ScheduleFormat: "no-school",
		StartDate: day(2024, 9, 4), EndDate: day(2024, 9, 5),
	}
	ctx := context.Background()

	closed, err := f.svc.DaySchedule(ctx, "fall", day(2024, 9, 4))
	require.NoError(t, err)
	assert.Nil(t, closed)

	next, err := f.svc.DaySchedule(ctx, "fall", day(2024, 9, 5))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.CycleDay)
	assert.Equal(t, "2024-09-05", next.Date)
	require.Len(t, next.Periods, 4)
	assert.Equal(t, []int{4}, next.Periods[2].Positions)
}

func TestDayScheduleIsMemoisedUntilInvalidated(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})
	ctx := context.Background()

	_, err := f.svc.DaySchedule(ctx, "fall", day(2024, 9, 3))
	require.NoError(t, err)
	_, err = f.svc.DaySchedule(ctx, "fall", day(2024, 9, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, f.events.queries)

	f.svc.InvalidateTerm(ctx, "fall")
	_, err = f.svc.DaySchedule(ctx, "fall", day(2024, 9, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, f.events.queries)
}

func TestRangeReturnsOnlyScheduledDays(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})

	days, err := f.svc.Range(context.Background(), "fall", day(2024, 9, 6), day(2024, 9, 9))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2024-09-06", days[0].Date)
	assert.Equal(t, "2024-09-09", days[1].Date)
	assert.Equal(t, 1, days[1].CycleDay)
}

func TestRangeRejectsLongAndReversedSpans(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{MaxRangeDays: 7})
	ctx := context.Background()

	_, err := f.svc.Range(ctx, "fall", day(2024, 9, 3), day(2024, 9, 30))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.Range(ctx, "fall", day(2024, 9, 9), day(2024, 9, 3))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCurrentDayScheduleWithoutTerm(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})

	term, schedule, err := f.svc.CurrentDaySchedule(context.Background(), day(2025, 7, 1))
	require.NoError(t, err)
	assert.Nil(t, term)
	assert.Nil(t, schedule)
}

func TestPersonalSchedulePlacesCoursesByPosition(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})
	f.courses.courses["c3"] = &models.Course{ID: "c3", Code: "MATH", TermID: "fall", Position: 3}
	f.courses.courses["c1"] = &models.Course{ID: "c1", Code: "ENG", TermID: "fall", Position: 1}
	f.tables.selected = map[string][]string{"u1/fall": {"c1", "c3"}}

	personal, err := f.svc.PersonalSchedule(context.Background(), "u1", day(2024, 9, 4))
	require.NoError(t, err)
	require.NotNil(t, personal)
	assert.Equal(t, 2, personal.CycleDay)
	require.Len(t, personal.Periods, 4)
	require.Len(t, personal.Periods[0].Courses, 1)
	assert.Equal(t, "ENG", personal.Periods[0].Courses[0].Code)
	assert.Empty(t, personal.Periods[2].Courses)
	require.Len(t, personal.Periods[3].Courses, 1)
	assert.Equal(t, "MATH", personal.Periods[3].Courses[0].Code)
}

func TestPersonalScheduleWithoutTimetable(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})

	personal, err := f.svc.PersonalSchedule(context.Background(), "nobody", day(2024, 9, 3))
	require.NoError(t, err)
	require.NotNil(t, personal)
	for _, p := range personal.Periods {
		assert.Empty(t, p.Courses)
	}
}

func TestScheduleUnknownFormatIsConfigError(t *testing.T) {
	f := newScheduleFixture(t, ScheduleOptions{})
	f.terms.terms["fall"].TimetableFormat = "retired"

	_, err := f.svc.DaySchedule(context.Background(), "fall", day(2024, 9, 3))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConfig.Code, appErrors.FromError(err).Code)
}
