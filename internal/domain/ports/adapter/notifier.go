package adapter

import (
	"context"
	"time"
)

// Notification is a best-effort message to a student. Callers log Send
// failures and never fail the business operation on them.
type Notification struct {
	To          string
	Name        string
	Subject     string
	Lines       []string
	CourseTitle string
	ExpiresAt   *time.Time
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
