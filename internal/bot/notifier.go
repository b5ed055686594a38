package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"deadline-planner/internal/service"
)

// messageSender is the part of *tgbotapi.BotAPI used to post messages.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier posts HTML messages to Telegram chats under a global rate limit.
// It implements service.Sender.
type Notifier struct {
	api     messageSender
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewNotifier(api messageSender, perSecond float64, log *zap.Logger) *Notifier {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		api:     api,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Send blocks until the limiter admits the message or ctx ends. Telegram
// refusals that retrying cannot fix are wrapped with service.ErrUndeliverable.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		return classify(err)
	case <-ctx.Done():
		return fmt.Errorf("send message: %w", ctx.Err())
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return fmt.Errorf("telegram %d %s: %w", apiErr.Code, apiErr.Message, service.ErrUndeliverable)
		}
		return fmt.Errorf("telegram %d %s: %w", apiErr.Code, apiErr.Message, err)
	}
	return fmt.Errorf("send message: %w", err)
}

var _ service.Sender = (*Notifier)(nil)
