package mail

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGridSenderBuildsRequest(t *testing.T) {
	s := NewSendGridSender("key", "Metropolis", "no-reply@example.com", BreakerConfig{}, nil)

	var captured rest.Request
	s.api = func(req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: http.StatusAccepted}, nil
	}

	err := s.Send(context.Background(), Message{
		To:      []string{"sup@example.com"},
		Bcc:     []string{"audit@example.com"},
		Subject: "Announcement pending approval",
		Text:    "please review",
	})
	require.NoError(t, err)
	assert.Equal(t, rest.Post, captured.Method)
	body := string(captured.Body)
	assert.True(t, strings.Contains(body, "[Metropolis] Announcement pending approval"))
	assert.True(t, strings.Contains(body, "audit@example.com"))
	assert.Equal(t, "Bearer key", captured.Headers["Authorization"])
}

func TestSendGridSenderOpensCircuit(t *testing.T) {
	s := NewSendGridSender("key", "Metropolis", "no-reply@example.com", BreakerConfig{FailureThreshold: 2}, nil)
	calls := 0
	s.api = func(rest.Request) (*rest.Response, error) {
		calls++
		return &rest.Response{StatusCode: http.StatusInternalServerError, Body: "boom"}, nil
	}

	msg := Message{To: []string{"sup@example.com"}, Subject: "x"}
	assert.Error(t, s.Send(context.Background(), msg))
	assert.Error(t, s.Send(context.Background(), msg))

	err := s.Send(context.Background(), msg)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, 2, calls)
}

func TestSendWithoutRecipientsIsNoop(t *testing.T) {
	s := NewSendGridSender("key", "Metropolis", "no-reply@example.com", BreakerConfig{}, nil)
	s.api = func(rest.Request) (*rest.Response, error) {
		t.Fatal("provider should not be called")
		return nil, nil
	}
	assert.NoError(t, s.Send(context.Background(), Message{Subject: "x"}))
	assert.NoError(t, NewLogSender(nil).Send(context.Background(), Message{Subject: "x"}))
}
