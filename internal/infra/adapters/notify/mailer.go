package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/config"
	"lms-billing/internal/infra/metrics"
	red "lms-billing/internal/infra/redis"
	"lms-billing/internal/infra/worker"
)

// Sender delivers one rendered email.
type Sender interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

type mailQueue interface {
	Push(ctx context.Context, job red.EmailJob) error
	Pop(ctx context.Context, timeout time.Duration) (*red.EmailJob, error)
	PushFailed(ctx context.Context, job red.EmailJob, cause error) error
	Len(ctx context.Context) (int64, error)
}

// Mailer drains the email queue on a worker pool. Failed sends are
// requeued until maxTries, then parked on the failed list.
type Mailer struct {
	queue    mailQueue
	sender   Sender
	pool     *worker.Pool
	maxTries int
	popWait  time.Duration
	logger   *zerolog.Logger
}

func NewMailer(queue mailQueue, sender Sender, workers, maxTries int, logger *zerolog.Logger) *Mailer {
	if maxTries <= 0 {
		maxTries = 3
	}
	l := logger.With().Str("component", "mailer").Logger()
	return &Mailer{
		queue:    queue,
		sender:   sender,
		pool:     worker.NewPool(workers, &l),
		maxTries: maxTries,
		popWait:  5 * time.Second,
		logger:   &l,
	}
}

// Run blocks until ctx is cancelled.
func (m *Mailer) Run(ctx context.Context) error {
	m.pool.Start(ctx)
	defer m.pool.Stop()
	m.logger.Info().Int("max_tries", m.maxTries).Msg("mailer started")

	for {
		if ctx.Err() != nil {
			m.logger.Info().Msg("mailer stopped")
			return nil
		}
		job, err := m.queue.Pop(ctx, m.popWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Error().Err(err).Msg("email queue pop failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			if n, err := m.queue.Len(ctx); err == nil {
				metrics.SetEmailQueueDepth(n)
			}
			continue
		}
		j := *job
		if err := m.pool.SubmitWait(ctx, func(ctx context.Context) error { return m.Deliver(ctx, j) }); err != nil {
			// put it back so it is not lost on shutdown
			_ = m.queue.Push(context.Background(), j)
		}
	}
}

// Deliver sends a single job and handles retry bookkeeping.
func (m *Mailer) Deliver(ctx context.Context, job red.EmailJob) error {
	err := m.sender.SendMail(ctx, job.To, job.Subject, job.Body)
	if err == nil {
		metrics.IncNotification("email", "sent")
		m.logger.Debug().Str("to", job.To).Str("subject", job.Subject).Msg("email sent")
		return nil
	}

	job.Tries++
	if job.Tries < m.maxTries {
		metrics.IncNotification("email", "retried")
		m.logger.Warn().Err(err).Str("to", job.To).Int("tries", job.Tries).Msg("email send failed, requeueing")
		return m.queue.Push(ctx, job)
	}
	metrics.IncNotification("email", "failed")
	m.logger.Error().Err(err).Str("to", job.To).Int("tries", job.Tries).Msg("email send failed permanently")
	return m.queue.PushFailed(ctx, job, err)
}

// SMTPSender sends HTML mail through an authenticated SMTP relay.
type SMTPSender struct {
	addr     string
	auth     smtp.Auth
	from     string
	fromName string
}

func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return &SMTPSender{
		addr:     cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		auth:     auth,
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (s *SMTPSender) SendMail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return smtp.SendMail(s.addr, s.auth, s.from, []string{to}, BuildMessage(s.from, s.fromName, to, subject, htmlBody))
}

// BuildMessage assembles RFC 5322 headers and an HTML body.
func BuildMessage(from, fromName, to, subject, htmlBody string) []byte {
	var b strings.Builder
	if fromName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", fromName), from)
	} else {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}
