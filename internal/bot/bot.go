package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"deadline-planner/internal/model"
	"deadline-planner/internal/service"
)

const listLimit = 20

// API is the subset of *tgbotapi.BotAPI the bot needs.
type API interface {
	messageSender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// PollTimeout is how long a getUpdates call waits for new messages.
const PollTimeout = 50 * time.Second

// pollClientTimeout outlasts a long poll so an idle poll is not an error.
const pollClientTimeout = PollTimeout + 10*time.Second

// NewAPI connects to Telegram with a bounded HTTP timeout. Use it for
// outgoing messages; NewPollingAPI serves the update loop.
func NewAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: timeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// NewPollingAPI connects with a client timeout longer than PollTimeout.
func NewPollingAPI(token string) (*tgbotapi.BotAPI, error) {
	return NewAPI(token, pollClientTimeout)
}

// Bot serves single-shot chat commands on top of the services.
type Bot struct {
	api        API
	users      *service.UserService
	tasks      *service.TaskService
	categories *service.CategoryService
	reminder   *service.ReminderService
	log        *zap.Logger
	now        func() time.Time
}

func New(api API, users *service.UserService, tasks *service.TaskService, categories *service.CategoryService, reminder *service.ReminderService, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		api:        api,
		users:      users,
		tasks:      tasks,
		categories: categories,
		reminder:   reminder,
		log:        log,
		now:        time.Now,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = int(PollTimeout / time.Second)
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		msg := update.Message
		if msg == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, msg); err != nil {
			b.log.Error("handle message", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
		}
	}
	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Я понимаю только команды. Загляни в /help.")
	}

	b.log.Debug("command",
		zap.Int64("from", msg.From.ID),
		zap.String("command", msg.Command()),
	)
	reply, err := b.handleCommand(ctx, msg)
	if err != nil {
		reply = b.describeError(err)
		if reply == "" {
			return err
		}
	}
	return b.sendText(msg.Chat.ID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	user, err := b.users.RegisterTelegram(ctx, msg.From.ID, msg.From.FirstName, msg.From.UserName)
	if err != nil {
		return "", err
	}
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		return startText(msg.From.FirstName), nil
	case "help":
		return helpText, nil
	case "new":
		return b.handleNew(ctx, user, args)
	case "tasks":
		return b.handleTasks(ctx, user, args)
	case "overdue":
		return b.handleOverdue(ctx, user)
	case "done":
		return b.handleTransition(ctx, user, args, b.tasks.Complete, "✅ Задача выполнена")
	case "cancel":
		return b.handleTransition(ctx, user, args, b.tasks.Cancel, "❌ Задача отменена")
	case "reopen":
		return b.handleTransition(ctx, user, args, b.tasks.Reopen, "🔄 Задача снова в работе")
	case "delete":
		return b.handleDelete(ctx, user, args)
	case "categories":
		return b.handleCategories(ctx)
	default:
		return "Команда не поддерживается. Загляни в /help.", nil
	}
}

func (b *Bot) handleNew(ctx context.Context, user *model.User, args string) (string, error) {
	title, deadline, err := parseNewTask(args, b.reminder.Location())
	if err != nil {
		return "", err
	}
	task, err := b.tasks.CreateTask(ctx, user.ID, service.TaskInput{Title: title, Deadline: deadline})
	if err != nil {
		return "", err
	}
	return "🆕 Задача создана\n\n" + b.reminder.TaskCard(task, b.now()), nil
}

func (b *Bot) handleTasks(ctx context.Context, user *model.User, args string) (string, error) {
	filter := strings.Fields(args)
	if len(filter) == 0 {
		filter = []string{"-" + string(model.StatusCompleted), "-" + string(model.StatusCancelled)}
	}
	tasks, err := b.tasks.ListTasks(ctx, user.ID, service.ListOptions{
		Status:  filter,
		OrderBy: "deadline",
		Limit:   listLimit,
	})
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "📭 Задач нет. Добавь первую: /new Купить молоко | 30.11.2025 18:00", nil
	}
	return b.renderList(fmt.Sprintf("📋 <b>Ваши задачи (%d)</b>", len(tasks)), tasks), nil
}

func (b *Bot) handleOverdue(ctx context.Context, user *model.User) (string, error) {
	tasks, err := b.tasks.ListOverdue(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "🎉 Просроченных задач нет.", nil
	}
	return b.renderList(fmt.Sprintf("⚠️ <b>Просрочено (%d)</b>", len(tasks)), tasks), nil
}

type transitionFunc func(ctx context.Context, ownerID uint, taskID string) (*model.Task, error)

func (b *Bot) handleTransition(ctx context.Context, user *model.User, args string, fn transitionFunc, done string) (string, error) {
	id, err := parseTaskID(args)
	if err != nil {
		return "", err
	}
	task, err := fn(ctx, user.ID, id)
	if err != nil {
		return "", err
	}
	return done + "\n\n" + b.reminder.TaskCard(task, b.now()), nil
}

func (b *Bot) handleDelete(ctx context.Context, user *model.User, args string) (string, error) {
	id, err := parseTaskID(args)
	if err != nil {
		return "", err
	}
	if err := b.tasks.DeleteTask(ctx, user.ID, id); err != nil {
		return "", err
	}
	return "🗑 Задача удалена.", nil
}

func (b *Bot) handleCategories(ctx context.Context) (string, error) {
	cats, err := b.categories.List(ctx, "")
	if err != nil {
		return "", err
	}
	if len(cats) == 0 {
		return "📂 Категорий пока нет.", nil
	}
	var sb strings.Builder
	sb.WriteString("📂 <b>Категории</b>\n")
	for _, c := range cats {
		sb.WriteString(fmt.Sprintf("🏷 %s · %d\n", html.EscapeString(c.Name), c.TasksCount))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (b *Bot) renderList(header string, tasks []model.Task) string {
	now := b.now()
	parts := make([]string, 0, len(tasks)+1)
	parts = append(parts, header)
	for i := range tasks {
		parts = append(parts, b.reminder.TaskCard(&tasks[i], now))
	}
	return strings.Join(parts, "\n\n")
}

// describeError turns business errors into replies. Other errors are
// logged and answered generically.
func (b *Bot) describeError(err error) string {
	var be *service.BusinessError
	if errors.As(err, &be) {
		switch be.Code {
		case service.CodeNotFound:
			return "🔍 Задача не найдена."
		case service.CodeValidation:
			return "⚠️ " + html.EscapeString(be.Message)
		case service.CodeConflict:
			return "⚠️ Такая запись уже есть."
		}
	}
	b.log.Error("command failed", zap.Error(err))
	return "😵 Что-то пошло не так, попробуй ещё раз позже."
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

const helpText = "ℹ️ <b>Подсказки</b>\n" +
	"• /new &lt;название&gt; | 30.11.2025 18:00 — новая задача, дедлайн необязателен\n" +
	"• /tasks — открытые задачи; фильтр: /tasks completed или /tasks -pending\n" +
	"• /overdue — просроченные задачи\n" +
	"• /done &lt;id&gt; — отметить выполненной\n" +
	"• /cancel &lt;id&gt; — отменить\n" +
	"• /reopen &lt;id&gt; — вернуть в работу\n" +
	"• /delete &lt;id&gt; — удалить\n" +
	"• /categories — категории и число задач\n\n" +
	"⏰ За час до дедлайна я пришлю напоминание."

func startText(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf("👋 Привет, %s!\n<b>Я слежу за дедлайнами и напомню о задачах вовремя.</b>\n\n%s",
		html.EscapeString(name), helpText)
}
