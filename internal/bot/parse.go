package bot

import (
	"strings"
	"time"

	"deadline-planner/internal/model"
	"deadline-planner/internal/service"
)

const (
	deadlineLayout = "02.01.2006 15:04"
	dateLayout     = "02.01.2006"
)

// parseNewTask reads "<title> | <deadline>". The deadline is optional and
// interpreted in loc; a bare date means the end of that day.
func parseNewTask(args string, loc *time.Location) (string, *time.Time, error) {
	title, rawDeadline, _ := strings.Cut(args, "|")
	title = strings.TrimSpace(title)
	rawDeadline = strings.TrimSpace(rawDeadline)
	if title == "" {
		return "", nil, service.NewValidationError("title", "is required")
	}
	if rawDeadline == "" {
		return title, nil, nil
	}

	if t, err := time.ParseInLocation(deadlineLayout, rawDeadline, loc); err == nil {
		return title, &t, nil
	}
	if t, err := time.ParseInLocation(dateLayout, rawDeadline, loc); err == nil {
		y, m, d := t.Date()
		t = time.Date(y, m, d, 23, 59, 0, 0, loc)
		return title, &t, nil
	}
	return "", nil, service.NewValidationError("deadline", "expected 30.11.2025 18:00 or 30.11.2025")
}

func parseTaskID(args string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(args))
	if id == "" {
		return "", service.NewValidationError("id", "is required")
	}
	if !model.ValidID(id) {
		return "", service.NewValidationError("id", id+" is not a valid identifier")
	}
	return id, nil
}
