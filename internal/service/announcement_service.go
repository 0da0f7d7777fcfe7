package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/internal/repository"
	appErrors "github.com/noah-isme/metropolis-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	Feed(ctx context.Context, filter models.FeedFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	UpdateIfStatus(ctx context.Context, announcement *models.Announcement, expected models.AnnouncementStatus) error
	Delete(ctx context.Context, id string) error
}

type organizationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
	ListStaffedBy(ctx context.Context, userID string) ([]string, error)
}

type announcementNotifier interface {
	NotifySupervisors(ctx context.Context, announcement models.Announcement)
	AnnouncementApproved(ctx context.Context, announcement models.Announcement)
}

type noopNotifier struct{}

func (noopNotifier) NotifySupervisors(context.Context, models.Announcement)    {}
func (noopNotifier) AnnouncementApproved(context.Context, models.Announcement) {}

// AnnouncementOptions configures moderation.
type AnnouncementOptions struct {
	AllowApprovedResubmit bool
	ResendLimit           int
	ResendWindow          time.Duration
}

// CreateAnnouncementRequest describes a new announcement.
type CreateAnnouncementRequest struct {
	OrganizationID string                     `json:"organization_id" validate:"required"`
	Title          string                     `json:"title" validate:"required,max=200"`
	Body           string                     `json:"body" validate:"max=10000"`
	Tags           []string                   `json:"tags" validate:"omitempty,max=10,dive,required,max=50"`
	ShowAfter      *time.Time                 `json:"show_after"`
	IsPublic       *bool                      `json:"is_public"`
	Status         *models.AnnouncementStatus `json:"status"`
}

// UpdateAnnouncementRequest carries the fields a caller wants to write. Absent fields are left alone.
type UpdateAnnouncementRequest struct {
	Title           *string                    `json:"title" validate:"omitempty,min=1,max=200"`
	Body            *string                    `json:"body" validate:"omitempty,max=10000"`
	Tags            []string                   `json:"tags" validate:"omitempty,max=10,dive,required,max=50"`
	ShowAfter       *time.Time                 `json:"show_after"`
	IsPublic        *bool                      `json:"is_public"`
	Status          *models.AnnouncementStatus `json:"status"`
	RejectionReason *string                    `json:"rejection_reason" validate:"omitempty,max=1000"`
}

// AnnouncementView is an announcement masked for one caller. Invisible fields are omitted.
type AnnouncementView struct {
	ID              string                     `json:"id"`
	OrganizationID  *string                    `json:"organization_id,omitempty"`
	AuthorID        *string                    `json:"author_id,omitempty"`
	Title           *string                    `json:"title,omitempty"`
	Body            *string                    `json:"body,omitempty"`
	Tags            *[]string                  `json:"tags,omitempty"`
	ShowAfter       *time.Time                 `json:"show_after,omitempty"`
	IsPublic        *bool                      `json:"is_public,omitempty"`
	Status          *models.AnnouncementStatus `json:"status,omitempty"`
	RejectionReason *string                    `json:"rejection_reason,omitempty"`
	SupervisorID    *string                    `json:"supervisor_id,omitempty"`
	Role            ModerationRole             `json:"role"`
	Editable        FieldSet                   `json:"editable"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// PublicAnnouncement is the feed representation.
type PublicAnnouncement struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Tags           []string  `json:"tags"`
	ShowAfter      time.Time `json:"show_after"`
}

// AnnouncementFields is the answer to "what may I see and change here".
type AnnouncementFields struct {
	Role   ModerationRole            `json:"role"`
	Status models.AnnouncementStatus `json:"status"`
	FieldPolicy
}

// AnnouncementService runs the moderation state machine.
type AnnouncementService struct {
	repo      announcementRepository
	orgs      organizationRepository
	notifier  announcementNotifier
	counter   CounterRepository
	metrics   *MetricsService
	policy    AnnouncementPolicy
	opts      AnnouncementOptions
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, orgs organizationRepository, notifier announcementNotifier, counter CounterRepository,
	metrics *MetricsService, opts AnnouncementOptions, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if opts.ResendLimit <= 0 {
		opts.ResendLimit = 2
	}
	if opts.ResendWindow <= 0 {
		opts.ResendWindow = time.Hour
	}
	return &AnnouncementService{
		repo:      repo,
		orgs:      orgs,
		notifier:  notifier,
		counter:   counter,
		metrics:   metrics,
		policy:    AnnouncementPolicy{AllowApprovedResubmit: opts.AllowApprovedResubmit},
		opts:      opts,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the moderation policy in force.
func (s *AnnouncementService) Policy() AnnouncementPolicy {
	return s.policy
}

// List returns the announcements of organizations the actor staffs, masked per role. Superusers see all.
func (s *AnnouncementService) List(ctx context.Context, actor models.Actor, status models.AnnouncementStatus, page, size int) ([]AnnouncementView, *models.Pagination, error) {
	if status != "" && !status.Valid() {
		return nil, nil, appErrors.Invalid("invalid status", map[string]string{"status": "unknown status"})
	}
	filter := models.AnnouncementFilter{Status: status, Page: page, PageSize: size}
	if !actor.IsSuperuser() {
		ids, err := s.orgs.ListStaffedBy(ctx, actor.UserID)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organizations")
		}
		if len(ids) == 0 {
			return []AnnouncementView{}, pagination(page, size, 0), nil
		}
		filter.OrganizationIDs = ids
	}

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}

	orgs := make(map[string]*models.Organization)
	views := make([]AnnouncementView, 0, len(rows))
	for i := range rows {
		org, ok := orgs[rows[i].OrganizationID]
		if !ok {
			org, err = s.organization(ctx, rows[i].OrganizationID)
			if err != nil {
				return nil, nil, err
			}
			orgs[rows[i].OrganizationID] = org
		}
		views = append(views, s.view(&rows[i], ModerationRoleFor(actor, org)))
	}
	return views, pagination(page, size, total), nil
}

// Feed returns approved public announcements whose show_after has passed.
func (s *AnnouncementService) Feed(ctx context.Context, page, size int) ([]PublicAnnouncement, *models.Pagination, error) {
	rows, total, err := s.repo.Feed(ctx, models.FeedFilter{Now: s.now(), Page: page, PageSize: size})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feed")
	}
	out := make([]PublicAnnouncement, 0, len(rows))
	for _, a := range rows {
		tags := []string(a.Tags)
		if tags == nil {
			tags = []string{}
		}
		out = append(out, PublicAnnouncement{
			ID:             a.ID,
			OrganizationID: a.OrganizationID,
			Title:          a.Title,
			Body:           a.Body,
			Tags:           tags,
			ShowAfter:      a.ShowAfter,
		})
	}
	return out, pagination(page, size, total), nil
}

// Get returns the announcement masked for the actor. Callers without any role get NOT_FOUND.
func (s *AnnouncementService) Get(ctx context.Context, actor models.Actor, id string) (*AnnouncementView, error) {
	a, role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if role == RoleNone {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	view := s.view(a, role)
	return &view, nil
}

// FieldsFor reports the actor's field policy for an announcement.
func (s *AnnouncementService) FieldsFor(ctx context.Context, actor models.Actor, id string) (*AnnouncementFields, error) {
	a, role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if role == RoleNone {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	return &AnnouncementFields{Role: role, Status: a.Status, FieldPolicy: s.policy.FieldsFor(role, a.Status)}, nil
}

// View masks an announcement for a role.
func (s *AnnouncementService) View(role ModerationRole, a *models.Announcement) AnnouncementView {
	return s.view(a, role)
}

// Create stores a new announcement authored by the actor.
func (s *AnnouncementService) Create(ctx context.Context, actor models.Actor, req CreateAnnouncementRequest) (*AnnouncementView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid announcement payload")
	}
	org, err := s.orgs.FindByID(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Invalid("unknown organization", map[string]string{"organization_id": "organization does not exist"})
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	role := ModerationRoleFor(actor, org)
	if role == RoleNone {
		return nil, appErrors.Denied("you may not post for this organization", string(FieldOrganization))
	}

	requested := models.AnnouncementStatusDraft
	if req.Status != nil {
		requested = *req.Status
	}
	if !requested.Valid() {
		return nil, appErrors.Invalid("invalid status", map[string]string{"status": "unknown status"})
	}

	a := &models.Announcement{
		OrganizationID: org.ID,
		Title:          strings.TrimSpace(req.Title),
		Body:           req.Body,
		Tags:           normaliseTags(req.Tags),
		ShowAfter:      s.now(),
		IsPublic:       true,
	}
	if actor.UserID != "" {
		author := actor.UserID
		a.AuthorID = &author
	}
	if req.ShowAfter != nil {
		a.ShowAfter = req.ShowAfter.UTC()
	}
	if req.IsPublic != nil {
		a.IsPublic = *req.IsPublic
	}

	notify := false
	switch {
	case role == RoleExec:
		if requested == models.AnnouncementStatusDraft {
			a.Status = models.AnnouncementStatusDraft
		} else {
			a.Status = models.AnnouncementStatusPending
			notify = true
		}
	case requested == models.AnnouncementStatusRejected:
		return nil, appErrors.Invalid("new announcements cannot be rejected", map[string]string{"status": "must be draft, pending or approved"})
	default:
		a.Status = requested
		if requested == models.AnnouncementStatusApproved {
			a.SupervisorID = a.AuthorID
		}
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.metrics.RecordTransition("new", string(a.Status))
	s.afterSave(ctx, a, "", notify)

	view := s.view(a, role)
	return &view, nil
}

// Update applies a save through the state machine. Every check runs before the compare-and-set write,
// so a rejected save changes nothing and notifies nobody.
func (s *AnnouncementService) Update(ctx context.Context, actor models.Actor, id string, req UpdateAnnouncementRequest) (*AnnouncementView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, invalidPayload(err, "invalid announcement payload")
	}
	a, role, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if role == RoleNone {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not edit this announcement")
	}

	current := a.Status
	policy := s.policy.FieldsFor(role, current)
	changed := changedFields(a, req)

	requested := current
	if req.Status != nil {
		requested = *req.Status
	}
	if !requested.Valid() {
		return nil, appErrors.Invalid("invalid status", map[string]string{"status": "unknown status"})
	}
	if changed.Has(FieldRejectionReason) && requested != models.AnnouncementStatusRejected &&
		strings.TrimSpace(*req.RejectionReason) != "" {
		return nil, appErrors.Invalid("rejection_reason requires status rejected", map[string]string{
			"rejection_reason": "only allowed when status is rejected",
		})
	}

	var denied []string
	for _, f := range changed.List() {
		if !policy.Editable.Has(f) {
			denied = append(denied, string(f))
		}
	}
	if len(denied) > 0 {
		return nil, appErrors.Denied(fmt.Sprintf("cannot change %s while %s", strings.Join(denied, ", "), current), denied...)
	}
	// An empty save on a rejected announcement resubmits it; anywhere else it writes nothing.
	if changed == 0 && (current != models.AnnouncementStatusRejected || !policy.Editable.Has(FieldStatus)) {
		view := s.view(a, role)
		return &view, nil
	}

	next := *a
	applyContent(&next, req)

	notify := false
	switch {
	case role == RoleSuperuser:
		if err := s.decide(&next, actor, requested, req); err != nil {
			return nil, err
		}
	case role.IsSupervisor() && (current == models.AnnouncementStatusPending || !role.IsExec()):
		if !supervisorMayMove(current, requested) {
			return nil, appErrors.Invalid("invalid transition", map[string]string{
				"status": fmt.Sprintf("cannot move from %s to %s", current, requested),
			})
		}
		if err := s.decide(&next, actor, requested, req); err != nil {
			return nil, err
		}
	default:
		if requested == models.AnnouncementStatusDraft {
			next.Status = models.AnnouncementStatusDraft
		} else {
			next.Status = models.AnnouncementStatusPending
			notify = role == RoleExec
		}
		next.RejectionReason = ""
	}

	if err := s.repo.UpdateIfStatus(ctx, &next, current); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "announcement was modified concurrently, reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	if next.Status != current {
		s.metrics.RecordTransition(string(current), string(next.Status))
	}
	s.afterSave(ctx, &next, current, notify)

	view := s.view(&next, role)
	return &view, nil
}

// decide applies a supervisor style status decision.
func (s *AnnouncementService) decide(next *models.Announcement, actor models.Actor, requested models.AnnouncementStatus, req UpdateAnnouncementRequest) error {
	reason := next.RejectionReason
	if req.RejectionReason != nil {
		reason = strings.TrimSpace(*req.RejectionReason)
	}
	reasonWritten := req.RejectionReason != nil && strings.TrimSpace(*req.RejectionReason) != ""

	switch requested {
	case models.AnnouncementStatusRejected:
		if reason == "" {
			return appErrors.Invalid("a rejection needs a reason", map[string]string{"rejection_reason": "required when rejecting"})
		}
	default:
		if reasonWritten {
			return appErrors.Invalid("rejection_reason requires status rejected", map[string]string{
				"rejection_reason": "only allowed when status is rejected",
			})
		}
		reason = ""
	}

	next.Status = requested
	next.RejectionReason = reason
	if (requested == models.AnnouncementStatusApproved || requested == models.AnnouncementStatusRejected) && actor.UserID != "" {
		supervisor := actor.UserID
		next.SupervisorID = &supervisor
	}
	return nil
}

// Delete removes a draft. Only its authoring side or a superuser may delete.
func (s *AnnouncementService) Delete(ctx context.Context, actor models.Actor, id string) error {
	a, role, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	switch {
	case role == RoleSuperuser:
	case role.IsExec():
		if a.Status != models.AnnouncementStatusDraft {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "only drafts can be deleted")
		}
	default:
		return appErrors.Clone(appErrors.ErrForbidden, "you may not delete this announcement")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

// ResendApproval re-sends the supervisor review request of a pending announcement, a few times per window.
func (s *AnnouncementService) ResendApproval(ctx context.Context, actor models.Actor, id string) error {
	a, role, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if role != RoleSuperuser && !role.IsExec() {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not request approval for this announcement")
	}
	if a.Status != models.AnnouncementStatusPending {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "announcement is not awaiting approval")
	}

	if s.counter != nil {
		count, err := s.counter.Incr(ctx, "resend-approval:"+a.ID, s.opts.ResendWindow)
		switch {
		case err != nil:
			s.logger.Warn("resend rate limit unavailable", zap.String("announcement_id", a.ID), zap.Error(err))
		case count > int64(s.opts.ResendLimit):
			return appErrors.Clone(appErrors.ErrTooManyRequests,
				fmt.Sprintf("approval may be re-sent at most %d times per %s", s.opts.ResendLimit, s.opts.ResendWindow))
		}
	}
	s.notifier.NotifySupervisors(ctx, *a)
	return nil
}

func (s *AnnouncementService) afterSave(ctx context.Context, a *models.Announcement, previous models.AnnouncementStatus, notify bool) {
	if notify {
		s.notifier.NotifySupervisors(ctx, *a)
	}
	if a.Status == models.AnnouncementStatusApproved && previous != models.AnnouncementStatusApproved {
		s.notifier.AnnouncementApproved(ctx, *a)
	}
}

func (s *AnnouncementService) load(ctx context.Context, actor models.Actor, id string) (*models.Announcement, ModerationRole, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, RoleNone, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, RoleNone, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	org, err := s.organization(ctx, a.OrganizationID)
	if err != nil {
		return nil, RoleNone, err
	}
	return a, ModerationRoleFor(actor, org), nil
}

func (s *AnnouncementService) organization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.orgs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load organization")
	}
	return org, nil
}

func (s *AnnouncementService) view(a *models.Announcement, role ModerationRole) AnnouncementView {
	policy := s.policy.FieldsFor(role, a.Status)
	v := AnnouncementView{
		ID:        a.ID,
		Role:      role,
		Editable:  policy.Editable,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	visible := policy.Visible
	if visible.Has(FieldOrganization) {
		org := a.OrganizationID
		v.OrganizationID = &org
	}
	if visible.Has(FieldAuthor) {
		v.AuthorID = a.AuthorID
	}
	if visible.Has(FieldTitle) {
		title := a.Title
		v.Title = &title
	}
	if visible.Has(FieldBody) {
		body := a.Body
		v.Body = &body
	}
	if visible.Has(FieldTags) {
		tags := append([]string{}, a.Tags...)
		v.Tags = &tags
	}
	if visible.Has(FieldShowAfter) {
		showAfter := a.ShowAfter
		v.ShowAfter = &showAfter
	}
	if visible.Has(FieldIsPublic) {
		public := a.IsPublic
		v.IsPublic = &public
	}
	if visible.Has(FieldStatus) {
		status := a.Status
		v.Status = &status
	}
	if visible.Has(FieldRejectionReason) && a.RejectionReason != "" {
		reason := a.RejectionReason
		v.RejectionReason = &reason
	}
	if visible.Has(FieldSupervisor) {
		v.SupervisorID = a.SupervisorID
	}
	return v
}

// changedFields lists the fields a request would actually change.
func changedFields(a *models.Announcement, req UpdateAnnouncementRequest) FieldSet {
	var set FieldSet
	if req.Title != nil && strings.TrimSpace(*req.Title) != a.Title {
		set |= fieldsOf(FieldTitle)
	}
	if req.Body != nil && *req.Body != a.Body {
		set |= fieldsOf(FieldBody)
	}
	if req.Tags != nil && !equalStrings(normaliseTags(req.Tags), a.Tags) {
		set |= fieldsOf(FieldTags)
	}
	if req.ShowAfter != nil && !req.ShowAfter.Equal(a.ShowAfter) {
		set |= fieldsOf(FieldShowAfter)
	}
	if req.IsPublic != nil && *req.IsPublic != a.IsPublic {
		set |= fieldsOf(FieldIsPublic)
	}
	if req.Status != nil && *req.Status != a.Status {
		set |= fieldsOf(FieldStatus)
	}
	if req.RejectionReason != nil && strings.TrimSpace(*req.RejectionReason) != a.RejectionReason {
		set |= fieldsOf(FieldRejectionReason)
	}
	return set
}

func applyContent(a *models.Announcement, req UpdateAnnouncementRequest) {
	if req.Title != nil {
		a.Title = strings.TrimSpace(*req.Title)
	}
	if req.Body != nil {
		a.Body = *req.Body
	}
	if req.Tags != nil {
		a.Tags = normaliseTags(req.Tags)
	}
	if req.ShowAfter != nil {
		a.ShowAfter = req.ShowAfter.UTC()
	}
	if req.IsPublic != nil {
		a.IsPublic = *req.IsPublic
	}
}

func normaliseTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
