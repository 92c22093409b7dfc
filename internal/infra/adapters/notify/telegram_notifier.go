package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/infra/metrics"
)

var _ adapter.Notifier = (*TelegramOpsNotifier)(nil)

type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramOpsNotifier mirrors enrollment events into an operations chat.
type TelegramOpsNotifier struct {
	bot    botSender
	chatID int64
}

func NewTelegramOpsNotifier(token string, chatID int64) (*TelegramOpsNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TelegramOpsNotifier{bot: bot, chatID: chatID}, nil
}

// OpsMessage is the plain-text summary posted to the ops chat.
func OpsMessage(n adapter.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", n.Subject)
	fmt.Fprintf(&b, "Student: %s\n", n.To)
	if n.CourseTitle != "" {
		fmt.Fprintf(&b, "Course: %s\n", n.CourseTitle)
	}
	if n.ExpiresAt != nil {
		if n.ExpiresAt.Equal(model.LifetimeExpiry) {
			b.WriteString("Access: lifetime\n")
		} else {
			fmt.Fprintf(&b, "Access until: %s\n", n.ExpiresAt.UTC().Format("2006-01-02"))
		}
	}
	for _, l := range n.Lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *TelegramOpsNotifier) Send(ctx context.Context, n adapter.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, OpsMessage(n))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		metrics.IncNotification("telegram", "failed")
		return err
	}
	metrics.IncNotification("telegram", "sent")
	return nil
}
