package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/metropolis-api/internal/models"
	"github.com/noah-isme/metropolis-api/pkg/jobs"
	"github.com/noah-isme/metropolis-api/pkg/mail"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, routingKey)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

type stubEmailDirectory struct {
	emails map[string]string
}

func (d stubEmailDirectory) ListActiveEmails(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if email, ok := d.emails[id]; ok {
			out = append(out, email)
		}
	}
	return out, nil
}

func newNotificationFixture() (*NotificationService, *stubOrgRepo, *recordingSender, *recordingPublisher) {
	orgs := &stubOrgRepo{orgs: map[string]*models.Organization{
		"club":  {ID: "club", Name: "Chess <Club>", IsActive: true, SupervisorIDs: []string{"s1", "s2"}},
		"empty": {ID: "empty", Name: "Empty", IsActive: true},
	}}
	users := stubEmailDirectory{emails: map[string]string{"s1": "s1@example.com", "s2": "s2@example.com"}}
	sender := &recordingSender{}
	publisher := &recordingPublisher{}
	svc := NewNotificationService(orgs, users, sender, publisher, nil, NotificationOptions{
		SiteURL:    "https://metropolis.example/",
		BCC:        []string{"audit@example.com"},
		Workers:    1,
		RetryDelay: time.Millisecond,
	}, zap.NewNop())
	return svc, orgs, sender, publisher
}

func TestApprovalRequestMessage(t *testing.T) {
	msg := ApprovalRequestMessage("https://metropolis.example/", "Chess <Club>", models.Announcement{ID: "a1", Title: "Tryouts & more", Body: "Friday"})

	assert.Equal(t, "Approval requested: Tryouts & more", msg.Subject)
	assert.Contains(t, msg.Text, "https://metropolis.example/announcements/a1")
	assert.Contains(t, msg.Text, "Friday")
	assert.Contains(t, msg.HTML, "Chess &lt;Club&gt;")
	assert.Contains(t, msg.HTML, "Tryouts &amp; more")
	assert.Empty(t, msg.To)
}

func TestHandleApprovalRequestMailsSupervisors(t *testing.T) {
	svc, _, sender, _ := newNotificationFixture()

	err := svc.handle(context.Background(), jobs.Job{
		Type:    jobApprovalRequest,
		Payload: models.Announcement{ID: "a1", OrganizationID: "club", Title: "Tryouts"},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.ElementsMatch(t, []string{"s1@example.com", "s2@example.com"}, sender.sent[0].To)
	assert.Equal(t, []string{"audit@example.com"}, sender.sent[0].Bcc)
}

func TestHandleApprovalRequestWithoutSupervisors(t *testing.T) {
	svc, _, sender, _ := newNotificationFixture()

	err := svc.handle(context.Background(), jobs.Job{
		Type:    jobApprovalRequest,
		Payload: models.Announcement{ID: "a1", OrganizationID: "empty"},
	})
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestHandleApprovalRequestPropagatesSendFailure(t *testing.T) {
	svc, _, sender, _ := newNotificationFixture()
	sender.err = mail.ErrUnavailable

	err := svc.handle(context.Background(), jobs.Job{
		Type:    jobApprovalRequest,
		Payload: models.Announcement{ID: "a1", OrganizationID: "club"},
	})
	assert.True(t, errors.Is(err, mail.ErrUnavailable))
}

func TestHandleApprovedPublishesEvent(t *testing.T) {
	svc, _, _, publisher := newNotificationFixture()

	err := svc.handle(context.Background(), jobs.Job{
		Type:    jobApproved,
		Payload: models.Announcement{ID: "a1", OrganizationID: "club", Title: "Tryouts", IsPublic: true},
	})
	require.NoError(t, err)
	require.Equal(t, []string{RoutingAnnouncementApproved}, publisher.keys)

	var event ApprovedEvent
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &event))
	assert.Equal(t, "a1", event.ID)
	assert.Equal(t, []string{}, event.Tags)
	assert.True(t, event.IsPublic)
}

func TestHandleRejectsUnknownJobs(t *testing.T) {
	svc, _, _, _ := newNotificationFixture()

	assert.Error(t, svc.handle(context.Background(), jobs.Job{Type: "other", Payload: models.Announcement{}}))
	assert.Error(t, svc.handle(context.Background(), jobs.Job{Type: jobApproved, Payload: "nope"}))
}

func TestNotifySupervisorsRunsInBackground(t *testing.T) {
	svc, _, sender, _ := newNotificationFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	svc.NotifySupervisors(ctx, models.Announcement{ID: "a1", OrganizationID: "club", Title: "Tryouts"})

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDisabledMailStillBroadcastsApprovals(t *testing.T) {
	sender := &recordingSender{}
	publisher := &recordingPublisher{}
	svc := NewNotificationService(&stubOrgRepo{}, stubEmailDirectory{}, sender, publisher, nil, NotificationOptions{
		Workers:     1,
		RetryDelay:  time.Millisecond,
		DisableMail: true,
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	approved := models.Announcement{ID: "a1", OrganizationID: "club", Title: "Tryouts", IsPublic: true}
	svc.NotifySupervisors(ctx, approved)
	svc.AnnouncementApproved(ctx, approved)

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, sender.count())
}
