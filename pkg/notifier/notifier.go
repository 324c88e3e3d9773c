package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wanderline/auth-api/pkg/config"
	"github.com/wanderline/auth-api/pkg/jobs"
)

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, bodyHTML string) error
}

// Message is the payload carried through the job queue.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Service dispatches security notices asynchronously. Enqueue never blocks
// and delivery failures are logged, not surfaced, so the auth flow does not
// depend on mail availability.
type Service struct {
	mailer Mailer
	queue  *jobs.Queue
	logger *zap.Logger
}

// New wires a mailer behind a background queue.
func New(mailer Mailer, cfg config.NotifyConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{mailer: mailer, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers: cfg.Workers,
		Logger:  logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *Service) Stop() {
	s.queue.Stop()
}

// SendEmail queues an email for delivery. Fire-and-forget.
func (s *Service) SendEmail(to, subject, bodyHTML string) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "email",
		Payload: Message{To: to, Subject: subject, Body: bodyHTML},
	})
	if err != nil {
		s.logger.Warn("dropping notification", zap.String("to", to), zap.Error(err))
	}
}

func (s *Service) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(Message)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	return s.mailer.Send(ctx, msg.To, msg.Subject, msg.Body)
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg config.NotifyConfig
}

// NewSMTPMailer builds a mailer from config.
func NewSMTPMailer(cfg config.NotifyConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message synchronously.
func (m *SMTPMailer) Send(_ context.Context, to, subject, bodyHTML string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)

	var auth smtp.Auth
	if m.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(bodyHTML)

	return smtp.SendMail(addr, auth, m.cfg.FromAddress, []string{to}, []byte(b.String()))
}

// NopMailer drops messages; used when notifications are disabled.
type NopMailer struct{}

// Send discards the message.
func (NopMailer) Send(context.Context, string, string, string) error { return nil }
