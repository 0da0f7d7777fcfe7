package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/repository"
	"github.com/noah-isme/metropolis-api/internal/timetable"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func builtinFormats(t *testing.T) *timetable.Registry {
	t.Helper()
	reg, err := timetable.Load(timetable.Defaults())
	require.NoError(t, err)
	return reg
}

type stubTermRepo struct {
	terms    map[string]*models.Term
	covering []models.Term
	writeErr error
	created  []*models.Term
}

func (s *stubTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	var out []models.Term
	for _, t := range s.terms {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (s *stubTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := s.terms[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubTermRepo) ListCovering(ctx context.Context, d time.Time) ([]models.Term, error) {
	if s.covering != nil {
		return s.covering, nil
	}
	var out []models.Term
	for _, t := range s.terms {
		if t.Covers(d) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *stubTermRepo) overlapping(term *models.Term) bool {
	for id, existing := range s.terms {
		if id != term.ID && existing.Overlaps(term.StartDate, term.EndDate) {
			return true
		}
	}
	return false
}

func (s *stubTermRepo) Create(ctx context.Context, term *models.Term) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.overlapping(term) {
		return repository.ErrTermOverlap
	}
	if term.ID == "" {
		term.ID = "term-new"
	}
	s.created = append(s.created, term)
	if s.terms == nil {
		s.terms = map[string]*models.Term{}
	}
	cp := *term
	s.terms[term.ID] = &cp
	return nil
}

func (s *stubTermRepo) Update(ctx context.Context, term *models.Term) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.overlapping(term) {
		return repository.ErrTermOverlap
	}
	cp := *term
	s.terms[term.ID] = &cp
	return nil
}

func (s *stubTermRepo) Delete(ctx context.Context, id string) error {
	delete(s.terms, id)
	return nil
}

type stubEventRepo struct {
	events   map[string]*models.Event
	queries  int
	writeErr error
}

func (s *stubEventRepo) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var out []models.Event
	for _, e := range s.events {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (s *stubEventRepo) ListOverlapping(ctx context.Context, termID string, from, to time.Time) ([]models.Event, error) {
	s.queries++
	var out []models.Event
	for _, e := range s.events {
		if e.TermID == termID && e.StartDate.Before(to) && e.EndDate.After(from) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *stubEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	if e, ok := s.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubEventRepo) Create(ctx context.Context, event *models.Event) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.events == nil {
		s.events = map[string]*models.Event{}
	}
	if event.ID == "" {
		event.ID = "event-" + event.StartDate.Format("20060102150405")
	}
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *stubEventRepo) Update(ctx context.Context, event *models.Event) error {
	cp := *event
	s.events[event.ID] = &cp
	return nil
}

func (s *stubEventRepo) Delete(ctx context.Context, id string) error {
	delete(s.events, id)
	return nil
}

type recordingInvalidator struct {
	terms []string
}

func (r *recordingInvalidator) InvalidateTerm(ctx context.Context, termID string) {
	r.terms = append(r.terms, termID)
}

type stubCourseRepo struct {
	courses map[string]*models.Course
}

func (s *stubCourseRepo) ListByTerm(ctx context.Context, termID string) ([]models.Course, error) {
	var out []models.Course
	for _, c := range s.courses {
		if c.TermID == termID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubCourseRepo) FindByIDs(ctx context.Context, ids []string) ([]models.Course, error) {
	var out []models.Course
	for _, id := range ids {
		if c, ok := s.courses[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubCourseRepo) ExistsByCode(ctx context.Context, termID, code, excludeID string) (bool, error) {
	for _, c := range s.courses {
		if c.TermID == termID && c.Code == code && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if s.courses == nil {
		s.courses = map[string]*models.Course{}
	}
	if course.ID == "" {
		course.ID = "course-" + course.Code
	}
	cp := *course
	s.courses[course.ID] = &cp
	return nil
}

func (s *stubCourseRepo) Update(ctx context.Context, course *models.Course) error {
	cp := *course
	s.courses[course.ID] = &cp
	return nil
}

func (s *stubCourseRepo) Delete(ctx context.Context, id string) error {
	delete(s.courses, id)
	return nil
}

type stubTimetableRepo struct {
	courses  *stubCourseRepo
	selected map[string][]string
}

func (s *stubTimetableRepo) FindByOwnerAndTerm(ctx context.Context, ownerID, termID string) (*models.Timetable, error) {
	ids, ok := s.selected[ownerID+"/"+termID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	courses, _ := s.courses.FindByIDs(ctx, ids)
	return &models.Timetable{ID: "tt", OwnerID: ownerID, TermID: termID, Courses: courses}, nil
}

func (s *stubTimetableRepo) Replace(ctx context.Context, ownerID, termID string, courseIDs []string) error {
	if s.selected == nil {
		s.selected = map[string][]string{}
	}
	s.selected[ownerID+"/"+termID] = courseIDs
	return nil
}

type stubOrgRepo struct {
	orgs map[string]*models.Organization
}

func (s *stubOrgRepo) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	if o, ok := s.orgs[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubOrgRepo) ListStaffedBy(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	for id, o := range s.orgs {
		if o.IsActive && (o.IsExec(userID) || o.IsSupervisor(userID)) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type stubAnnouncementRepo struct {
	items map[string]*models.Announcement
	// raceTo, when set, changes the stored status right before a compare-and-set write.
	raceTo  models.AnnouncementStatus
	updates int
	filters []models.AnnouncementFilter
}

func (s *stubAnnouncementRepo) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	s.filters = append(s.filters, filter)
	var out []models.Announcement
	for _, a := range s.items {
		if filter.OrganizationIDs != nil && !containsString(filter.OrganizationIDs, a.OrganizationID) {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (s *stubAnnouncementRepo) Feed(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, int, error) {
	var out []models.Announcement
	for _, a := range s.items {
		if a.Status == models.AnnouncementStatusApproved && a.IsPublic && !a.ShowAfter.After(filter.Now) {
			out = append(out, *a)
		}
	}
	return out, len(out), nil
}

func (s *stubAnnouncementRepo) GetByID(ctx context.Context, id string) (*models.Announcement, error) {
	if a, ok := s.items[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAnnouncementRepo) Create(ctx context.Context, a *models.Announcement) error {
	if s.items == nil {
		s.items = map[string]*models.Announcement{}
	}
	if a.ID == "" {
		a.ID = "ann-new"
	}
	cp := *a
	s.items[a.ID] = &cp
	return nil
}

func (s *stubAnnouncementRepo) UpdateIfStatus(ctx context.Context, a *models.Announcement, expected models.AnnouncementStatus) error {
	stored := s.items[a.ID]
	if s.raceTo != "" {
		stored.Status = s.raceTo
	}
	if stored.Status != expected {
		return repository.ErrStaleStatus
	}
	s.updates++
	cp := *a
	s.items[a.ID] = &cp
	return nil
}

func (s *stubAnnouncementRepo) Delete(ctx context.Context, id string) error {
	delete(s.items, id)
	return nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	requested []string
	approved  []string
}

func (n *recordingNotifier) NotifySupervisors(ctx context.Context, a models.Announcement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, a.ID)
}

func (n *recordingNotifier) AnnouncementApproved(ctx context.Context, a models.Announcement) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, a.ID)
}

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[key]++
	return s.counts[key], nil
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func statusPtr(s models.AnnouncementStatus) *models.AnnouncementStatus { return &s }
