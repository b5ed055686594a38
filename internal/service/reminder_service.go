package service

import (
	"fmt"
	"html"
	"strings"
	"time"

	"deadline-planner/internal/model"
)

// DeadlineLayout is how deadlines are shown to users.
const DeadlineLayout = "02.01.2006 15:04"

// ReminderService composes the HTML texts sent to Telegram.
type ReminderService struct {
	loc *time.Location
}

func NewReminderService(loc *time.Location) *ReminderService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderService{loc: loc}
}

func (s *ReminderService) Location() *time.Location { return s.loc }

// DeadlineMessage builds the deadline reminder for task. Whether the task
// is overdue is decided at now, not stored.
func (s *ReminderService) DeadlineMessage(task *model.Task, now time.Time) string {
	var sb strings.Builder

	if task.IsOverdue(now) {
		sb.WriteString("⚠️ <b>ПРОСРОЧЕНА</b>\n\n")
	} else {
		sb.WriteString("⏰ <b>скоро дедлайн</b>\n\n")
	}

	sb.WriteString(fmt.Sprintf("📝 Задача: <b>%s</b>\n", escape(task.Title)))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("📄 Описание: %s\n", html.EscapeString(desc)))
	}
	if task.Deadline != nil {
		sb.WriteString(fmt.Sprintf("⏱ Дедлайн: %s\n", task.Deadline.In(s.loc).Format(DeadlineLayout)))
	}
	if names := task.CategoryNames(); len(names) > 0 {
		sb.WriteString(fmt.Sprintf("🏷 Категории: %s\n", escapeJoin(names)))
	}

	return sb.String()
}

var statusIcons = map[model.Status]string{
	model.StatusPending:    "⏳",
	model.StatusInProgress: "🔄",
	model.StatusCompleted:  "✅",
	model.StatusCancelled:  "❌",
}

var statusNames = map[model.Status]string{
	model.StatusPending:    "Ожидает",
	model.StatusInProgress: "В работе",
	model.StatusCompleted:  "Завершена",
	model.StatusCancelled:  "Отменена",
}

// TaskCard renders a task for list replies.
func (s *ReminderService) TaskCard(task *model.Task, now time.Time) string {
	var sb strings.Builder

	icon, ok := statusIcons[task.Status]
	if !ok {
		icon = "❓"
	}
	name, ok := statusNames[task.Status]
	if !ok {
		name = string(task.Status)
	}

	sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", icon, escape(task.Title)))
	sb.WriteString(fmt.Sprintf("Статус: %s\n", name))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n", html.EscapeString(desc)))
	}
	if names := task.CategoryNames(); len(names) > 0 {
		sb.WriteString(fmt.Sprintf("🏷 %s\n", escapeJoin(names)))
	}
	if task.Deadline != nil {
		sb.WriteString(fmt.Sprintf("⏰ До: %s\n", task.Deadline.In(s.loc).Format(DeadlineLayout)))
	}
	if task.IsOverdue(now) {
		sb.WriteString("⚠️ <b>ПРОСРОЧЕНА</b>\n")
	}
	sb.WriteString(fmt.Sprintf("🆔 <code>%s</code>", task.ID))

	return sb.String()
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

func escapeJoin(names []string) string {
	escaped := make([]string, 0, len(names))
	for _, n := range names {
		escaped = append(escaped, escape(n))
	}
	return strings.Join(escaped, ", ")
}
