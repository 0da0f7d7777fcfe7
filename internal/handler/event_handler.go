package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

type eventCatalog interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error)
	GetVisible(ctx context.Context, id string, publicOnly bool) (*models.Event, error)
	Create(ctx context.Context, req service.EventRequest) (*models.Event, error)
	Update(ctx context.Context, id string, req service.EventRequest) (*models.Event, error)
	Delete(ctx context.Context, id string) error
	CreateLateStart(ctx context.Context, day time.Time) (*models.Event, error)
}

// EventHandler exposes calendar events.
type EventHandler struct {
	service   eventCatalog
	schedules *service.ScheduleService
}

// NewEventHandler constructs an event handler.
func NewEventHandler(svc eventCatalog, schedules *service.ScheduleService) *EventHandler {
	return &EventHandler{service: svc, schedules: schedules}
}

// LateStartRequest names the date that starts late.
type LateStartRequest struct {
	Date string `json:"date"`
}

// List godoc
// @Summary List events
// @Description Anonymous callers only see public events.
// @Tags Events
// @Produce json
// @Param term_id query string false "Term ID"
// @Param start query string false "YYYY-MM-DD"
// @Param end query string false "YYYY-MM-DD"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.EventFilter{
		TermID:     c.Query("term_id"),
		PublicOnly: claimsFromContext(c) == nil,
		Page:       page,
		PageSize:   size,
	}
	if raw := c.Query("start"); raw != "" {
		start, err := service.ParseDate("start", raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		filter.Start = &start
	}
	if raw := c.Query("end"); raw != "" {
		end, err := service.ParseDate("end", raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		end = end.Add(24 * time.Hour)
		filter.End = &end
	}

	events, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Get godoc
// @Summary Get event
// @Description Private events are not found for anonymous callers.
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id} [get]
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.service.GetVisible(c.Request.Context(), c.Param("id"), claimsFromContext(c) == nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Create godoc
// @Summary Create event
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.EventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events [post]
func (h *EventHandler) Create(c *gin.Context) {
	var req service.EventRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	event, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// Update godoc
// @Summary Replace event
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Param payload body service.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /events/{id} [put]
func (h *EventHandler) Update(c *gin.Context) {
	var req service.EventRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	event, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// Delete godoc
// @Summary Delete event
// @Tags Events
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204
// @Router /events/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// LateStart godoc
// @Summary Mark a late start
// @Tags Events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body LateStartRequest false "Date, defaults to today"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /events/late-start [post]
func (h *EventHandler) LateStart(c *gin.Context) {
	var req LateStartRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid payload") {
		return
	}
	day := h.schedules.Today()
	if req.Date != "" {
		parsed, err := service.ParseDate("date", req.Date)
		if err != nil {
			response.Error(c, err)
			return
		}
		day = parsed
	}
	event, err := h.service.CreateLateStart(c.Request.Context(), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}
