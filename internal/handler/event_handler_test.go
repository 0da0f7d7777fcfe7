package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type eventCatalogMock struct {
	event      models.Event
	publicOnly []bool
	filter     models.EventFilter
}

func (m *eventCatalogMock) List(_ context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	m.filter = filter
	return []models.Event{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (m *eventCatalogMock) GetVisible(_ context.Context, id string, publicOnly bool) (*models.Event, error) {
	m.publicOnly = append(m.publicOnly, publicOnly)
	if id != m.event.ID || (publicOnly && !m.event.IsPublic) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	event := m.event
	return &event, nil
}

func (m *eventCatalogMock) Create(context.Context, service.EventRequest) (*models.Event, error) {
	return &m.event, nil
}

func (m *eventCatalogMock) Update(context.Context, string, service.EventRequest) (*models.Event, error) {
	return &m.event, nil
}

func (m *eventCatalogMock) Delete(context.Context, string) error { return nil }

func (m *eventCatalogMock) CreateLateStart(context.Context, time.Time) (*models.Event, error) {
	return &m.event, nil
}

func TestEventHandlerGetHidesPrivateEventsFromAnonymousCallers(t *testing.T) {
	svc := &eventCatalogMock{event: models.Event{ID: "a1", Name: "Staff meeting", IsPublic: false}}
	h := NewEventHandler(svc, nil)

	w, c := announcementRequest(http.MethodGet, "/events/a1", "", nil)
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, c = announcementRequest(http.MethodGet, "/events/a1", "", execClaims)
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Staff meeting")
	assert.Equal(t, []bool{true, false}, svc.publicOnly)
}

func TestEventHandlerListScopesAnonymousCallers(t *testing.T) {
	svc := &eventCatalogMock{}
	h := NewEventHandler(svc, nil)

	w, c := announcementRequest(http.MethodGet, "/events?term_id=fall&end=2024-09-30", "", nil)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.filter.PublicOnly)
	assert.Equal(t, "fall", svc.filter.TermID)
	require.NotNil(t, svc.filter.End)
	assert.Equal(t, time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), svc.filter.End.UTC())
}
