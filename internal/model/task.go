package model

import (
	"time"

	"gorm.io/gorm"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// ActiveStatuses are the statuses a reminder can still be sent for.
var ActiveStatuses = []Status{StatusPending, StatusInProgress}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the task is closed. Closed tasks are never overdue.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NotifyLeadTime is how long before the deadline a reminder becomes due.
const NotifyLeadTime = time.Hour

// Task represents a single item in the planner.
type Task struct {
	ID          string     `gorm:"primaryKey;size:26"`
	UserID      uint       `gorm:"not null;index:idx_tasks_user_status"`
	User        *User      `gorm:"constraint:OnDelete:CASCADE"`
	Title       string     `gorm:"size:255;not null"`
	Description string     `gorm:"type:text"`
	Status      Status     `gorm:"size:20;not null;default:'pending';index:idx_tasks_user_status"`
	Categories  []Category `gorm:"many2many:task_categories"`
	Deadline    *time.Time `gorm:"index"`

	NotificationSent bool `gorm:"not null;default:false"`
	// NotifyLeaseUntil and NotifyLeaseToken are held by a dispatcher while a
	// reminder is in flight. Only the token holder may latch or release it.
	NotifyLeaseUntil *time.Time
	NotifyLeaseToken *string `gorm:"size:36"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return nil
}

// IsOverdue is recomputed from now on every call and never stored.
func (t *Task) IsOverdue(now time.Time) bool {
	if t.Deadline == nil || t.Status.Terminal() {
		return false
	}
	return now.After(*t.Deadline)
}

// ShouldNotify decides whether a deadline reminder is due at now: the
// reminder has not been sent, a deadline exists, the task is still open and
// the deadline is at most NotifyLeadTime away or already passed.
func (t *Task) ShouldNotify(now time.Time) bool {
	if t.NotificationSent {
		return false
	}
	if t.Deadline == nil {
		return false
	}
	if t.Status.Terminal() {
		return false
	}
	return t.Deadline.Sub(now) <= NotifyLeadTime
}

// CategoryNames returns attached category names in their stored order.
func (t *Task) CategoryNames() []string {
	names := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		names = append(names, c.Name)
	}
	return names
}
