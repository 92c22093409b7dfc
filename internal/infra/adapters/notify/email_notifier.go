package notify

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"time"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/infra/metrics"
	red "lms-billing/internal/infra/redis"
)

var _ adapter.Notifier = (*EmailNotifier)(nil)

type emailQueue interface {
	Push(ctx context.Context, job red.EmailJob) error
}

// EmailNotifier renders the enrollment email and queues it for the mailer.
type EmailNotifier struct {
	queue emailQueue
	now   func() time.Time
}

func NewEmailNotifier(queue emailQueue) *EmailNotifier {
	return &EmailNotifier{queue: queue, now: time.Now}
}

var enrollmentTmpl = template.Must(template.New("enrollment").Parse(`<p>Hello {{.Name}},</p>
{{range .Lines}}<p>{{.}}</p>
{{end}}<p><b>Course:</b> {{.CourseTitle}}</p>
<p><b>Access Expires:</b> {{.Expiry}}</p>
`))

// RenderBody produces the HTML body for n.
func RenderBody(n adapter.Notification) (string, error) {
	expiry := "N/A"
	if n.ExpiresAt != nil {
		if n.ExpiresAt.Equal(model.LifetimeExpiry) {
			expiry = "Lifetime"
		} else {
			expiry = n.ExpiresAt.UTC().Format("Jan 2, 2006")
		}
	}
	name := n.Name
	if name == "" {
		name = n.To
	}
	var buf bytes.Buffer
	err := enrollmentTmpl.Execute(&buf, struct {
		Name        string
		Lines       []string
		CourseTitle string
		Expiry      string
	}{name, n.Lines, n.CourseTitle, expiry})
	return buf.String(), err
}

func (e *EmailNotifier) Send(ctx context.Context, n adapter.Notification) error {
	if n.To == "" {
		return errors.New("notification has no recipient")
	}
	body, err := RenderBody(n)
	if err != nil {
		return err
	}
	job := red.EmailJob{To: n.To, Name: n.Name, Subject: n.Subject, Body: body, Created: e.now().UTC()}
	if err := e.queue.Push(ctx, job); err != nil {
		metrics.IncNotification("email", "failed")
		return err
	}
	metrics.IncNotification("email", "queued")
	return nil
}
