package mail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// ErrUnavailable is returned while the circuit to the mail provider is open.
var ErrUnavailable = errors.New("mail provider unavailable")

// Message is a single outbound email.
type Message struct {
	To      []string
	Bcc     []string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BreakerConfig tunes the circuit breaker around the provider.
type BreakerConfig struct {
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	breaker    *gobreaker.CircuitBreaker[any]
	logger     *zap.Logger
	api        func(rest.Request) (*rest.Response, error)
}

// NewSendGridSender builds a sender. appName prefixes every subject.
func NewSendGridSender(key, appName, fromAddress string, cfg BreakerConfig, logger *zap.Logger) *SendGridSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	s := &SendGridSender{
		key:        key,
		from:       sgmail.NewEmail(appName, fromAddress),
		subjPrefix: "[" + appName + "] ",
		logger:     logger,
		api:        sendgrid.API,
	}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "sendgrid",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// Send delivers msg unless the breaker is open.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 && len(msg.Bcc) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.breaker.Execute(func() (any, error) {
		req := sendgrid.GetRequest(s.key, endpoint, host)
		req.Method = http.MethodPost
		req.Body = sgmail.GetRequestBody(s.prepare(msg))

		res, err := s.api(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("sendgrid responded %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	s.logger.Debug("mail sent", zap.String("subject", msg.Subject), zap.Int("recipients", len(msg.To)+len(msg.Bcc)))
	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgmail.NewEmail("", bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

// LogSender only logs messages. It is used when no provider key is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a logging sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("mail not sent, no provider configured",
		zap.Strings("to", msg.To),
		zap.Int("bcc", len(msg.Bcc)),
		zap.String("subject", msg.Subject),
	)
	return nil
}
