package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/pkg/broker"
	"github.com/noah-isme/metropolis-api/pkg/jobs"
	"github.com/noah-isme/metropolis-api/pkg/mail"
	"github.com/noah-isme/metropolis-api/pkg/middleware/requestid"
)

const (
	jobApprovalRequest = "approval-request"
	jobApproved        = "announcement-approved"

	// RoutingAnnouncementApproved is the broker routing key of approval broadcasts.
	RoutingAnnouncementApproved = "announcement.approved"
)

type supervisorDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
}

type emailDirectory interface {
	ListActiveEmails(ctx context.Context, ids []string) ([]string, error)
}

// NotificationOptions configures outbound notifications.
type NotificationOptions struct {
	SiteURL    string
	BCC        []string
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	// DisableMail skips approval request mail. Approval broadcasts are still published.
	DisableMail bool
}

// ApprovedEvent is the broker payload published when an announcement is approved.
type ApprovedEvent struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	Tags           []string  `json:"tags"`
	ShowAfter      time.Time `json:"show_after"`
	IsPublic       bool      `json:"is_public"`
}

// NotificationService delivers moderation side effects off the request path.
type NotificationService struct {
	orgs      supervisorDirectory
	users     emailDirectory
	sender    mail.Sender
	publisher broker.Publisher
	metrics   *MetricsService
	opts      NotificationOptions
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewNotificationService builds the service and its worker queue. Call Start before use.
func NewNotificationService(orgs supervisorDirectory, users emailDirectory, sender mail.Sender, publisher broker.Publisher,
	metrics *MetricsService, opts NotificationOptions, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = broker.NewNoopPublisher(logger)
	}
	if sender == nil {
		sender = mail.NewLogSender(logger)
	}
	s := &NotificationService{
		orgs:      orgs,
		users:     users,
		sender:    sender,
		publisher: publisher,
		metrics:   metrics,
		opts:      opts,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    opts.Workers,
		BufferSize: 256,
		MaxRetries: opts.MaxRetries,
		RetryDelay: opts.RetryDelay,
		Logger:     logger,
		OnGiveUp: func(job jobs.Job, err error) {
			s.metrics.RecordNotification(job.Type, false)
		},
	})
	return s
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for in-flight deliveries. Jobs still queued are dropped.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifySupervisors queues an approval request mail to the organization's supervisors.
func (s *NotificationService) NotifySupervisors(ctx context.Context, announcement models.Announcement) {
	if s.opts.DisableMail {
		s.logger.Debug("approval mail disabled", zap.String("announcement_id", announcement.ID))
		return
	}
	s.enqueue(ctx, jobApprovalRequest, announcement)
}

// AnnouncementApproved queues the approval broadcast.
func (s *NotificationService) AnnouncementApproved(ctx context.Context, announcement models.Announcement) {
	s.enqueue(ctx, jobApproved, announcement)
}

func (s *NotificationService) enqueue(ctx context.Context, kind string, announcement models.Announcement) {
	job := jobs.Job{
		ID:      fmt.Sprintf("%s:%s:%d", kind, announcement.ID, time.Now().UnixNano()),
		Type:    kind,
		Payload: announcement,
	}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.RecordNotification(kind, false)
		s.logger.Warn("notification dropped",
			zap.String("type", kind),
			zap.String("announcement_id", announcement.ID),
			zap.String("request_id", requestid.FromContext(ctx)),
			zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	announcement, ok := job.Payload.(models.Announcement)
	if !ok {
		return jobs.Permanent(fmt.Errorf("unexpected payload %T", job.Payload))
	}
	var err error
	switch job.Type {
	case jobApprovalRequest:
		err = s.sendApprovalRequest(ctx, announcement)
	case jobApproved:
		err = s.publishApproved(ctx, announcement)
	default:
		err = jobs.Permanent(fmt.Errorf("unknown job type %q", job.Type))
	}
	if err == nil {
		s.metrics.RecordNotification(job.Type, true)
	}
	return err
}

func (s *NotificationService) sendApprovalRequest(ctx context.Context, a models.Announcement) error {
	org, err := s.orgs.FindByID(ctx, a.OrganizationID)
	if err != nil {
		return fmt.Errorf("load organization %s: %w", a.OrganizationID, err)
	}
	if len(org.SupervisorIDs) == 0 {
		return jobs.Permanent(fmt.Errorf("organization %s has no supervisors", org.ID))
	}
	emails, err := s.users.ListActiveEmails(ctx, org.SupervisorIDs)
	if err != nil {
		return fmt.Errorf("load supervisor emails: %w", err)
	}
	if len(emails) == 0 {
		return jobs.Permanent(errors.New("no active supervisor has an email address"))
	}

	msg := ApprovalRequestMessage(s.opts.SiteURL, org.Name, a)
	msg.To = emails
	msg.Bcc = s.opts.BCC
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send approval request: %w", err)
	}
	s.logger.Info("approval request sent", zap.String("announcement_id", a.ID), zap.Int("recipients", len(emails)))
	return nil
}

func (s *NotificationService) publishApproved(ctx context.Context, a models.Announcement) error {
	tags := []string(a.Tags)
	if tags == nil {
		tags = []string{}
	}
	payload, err := json.Marshal(ApprovedEvent{
		ID:             a.ID,
		OrganizationID: a.OrganizationID,
		Title:          a.Title,
		Tags:           tags,
		ShowAfter:      a.ShowAfter,
		IsPublic:       a.IsPublic,
	})
	if err != nil {
		return jobs.Permanent(err)
	}
	return s.publisher.Publish(ctx, RoutingAnnouncementApproved, payload)
}

// ApprovalRequestMessage renders the review request mail without recipients.
func ApprovalRequestMessage(siteURL, orgName string, a models.Announcement) mail.Message {
	link := strings.TrimRight(siteURL, "/") + "/announcements/" + a.ID
	subject := fmt.Sprintf("Approval requested: %s", a.Title)
	text := fmt.Sprintf("%s submitted an announcement for your approval.\n\nTitle: %s\n\n%s\n\nReview it at %s\n",
		orgName, a.Title, a.Body, link)
	markup := fmt.Sprintf(`<p><strong>%s</strong> submitted an announcement for your approval.</p><p><strong>%s</strong></p><p><a href="%s">Review announcement</a></p>`,
		html.EscapeString(orgName), html.EscapeString(a.Title), link)
	return mail.Message{Subject: subject, Text: text, HTML: markup}
}
