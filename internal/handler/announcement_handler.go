package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/service"
	"github.com/noah-isme/metropolis-api/pkg/response"
)

type announcementModerator interface {
	List(ctx context.Context, actor models.Actor, status models.AnnouncementStatus, page, size int) ([]service.AnnouncementView, *models.Pagination, error)
	Feed(ctx context.Context, page, size int) ([]service.PublicAnnouncement, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*service.AnnouncementView, error)
	FieldsFor(ctx context.Context, actor models.Actor, id string) (*service.AnnouncementFields, error)
	Create(ctx context.Context, actor models.Actor, req service.CreateAnnouncementRequest) (*service.AnnouncementView, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateAnnouncementRequest) (*service.AnnouncementView, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	ResendApproval(ctx context.Context, actor models.Actor, id string) error
}

// AnnouncementHandler exposes announcement moderation.
type AnnouncementHandler struct {
	service announcementModerator
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(svc announcementModerator) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc}
}

// List godoc
// @Summary List moderated announcements
// @Description Announcements of organizations the caller staffs, masked per role.
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param status query string false "draft, pending, approved or rejected"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), actor, models.AnnouncementStatus(c.Query("status")), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Feed godoc
// @Summary Public announcement feed
// @Tags Announcements
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /announcements/feed [get]
func (h *AnnouncementHandler) Feed(c *gin.Context) {
	page, size := pageParams(c)
	items, pagination, err := h.service.Feed(c.Request.Context(), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get announcement
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	view, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Fields godoc
// @Summary Fields the caller may see and edit
// @Tags Announcements
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id}/fields [get]
func (h *AnnouncementHandler) Fields(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	fields, err := h.service.FieldsFor(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fields, nil)
}

// Create godoc
// @Summary Create announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateAnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateAnnouncementRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	view, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Update godoc
// @Summary Update announcement
// @Description Only fields present in the body are written. Status changes follow the moderation rules.
// @Tags Announcements
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Param payload body service.UpdateAnnouncementRequest true "Changed fields"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateAnnouncementRequest
	if !bindJSON(c, &req, "invalid payload") {
		return
	}
	view, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Delete godoc
// @Summary Delete announcement
// @Tags Announcements
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 204
// @Failure 412 {object} response.Envelope
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResendApproval godoc
// @Summary Re-send the approval request
// @Tags Announcements
// @Security BearerAuth
// @Param id path string true "Announcement ID"
// @Success 202 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /announcements/{id}/resend-approval [post]
func (h *AnnouncementHandler) ResendApproval(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.ResendApproval(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"queued": true}, nil)
}
