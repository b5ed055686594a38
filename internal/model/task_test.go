package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"deadline-planner/internal/model"
)

func at(t time.Time) *time.Time { return &t }

func TestTask_ShouldNotify(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		task model.Task
		want bool
	}{
		{
			name: "no deadline",
			task: model.Task{Status: model.StatusPending},
			want: false,
		},
		{
			name: "deadline exactly one hour away",
			task: model.Task{Status: model.StatusPending, Deadline: at(now.Add(time.Hour))},
			want: true,
		},
		{
			name: "deadline one hour and one second away",
			task: model.Task{Status: model.StatusPending, Deadline: at(now.Add(time.Hour + time.Second))},
			want: false,
		},
		{
			name: "deadline in thirty minutes, in progress",
			task: model.Task{Status: model.StatusInProgress, Deadline: at(now.Add(30 * time.Minute))},
			want: true,
		},
		{
			name: "deadline passed an hour ago",
			task: model.Task{Status: model.StatusPending, Deadline: at(now.Add(-time.Hour))},
			want: true,
		},
		{
			name: "deadline passed a year ago",
			task: model.Task{Status: model.StatusPending, Deadline: at(now.AddDate(-1, 0, 0))},
			want: true,
		},
		{
			name: "already notified",
			task: model.Task{Status: model.StatusPending, Deadline: at(now.Add(-time.Hour)), NotificationSent: true},
			want: false,
		},
		{
			name: "completed",
			task: model.Task{Status: model.StatusCompleted, Deadline: at(now.Add(-time.Hour))},
			want: false,
		},
		{
			name: "cancelled",
			task: model.Task{Status: model.StatusCancelled, Deadline: at(now.Add(10 * time.Minute))},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.task.ShouldNotify(now))
			// same input, same answer
			assert.Equal(t, tt.want, tt.task.ShouldNotify(now))
		})
	}
}

func TestTask_ShouldNotify_NeverForClosedOrUndatedTasks(t *testing.T) {
	now := time.Now()
	offsets := []time.Duration{-365 * 24 * time.Hour, -time.Hour, 0, time.Minute, time.Hour, 48 * time.Hour}

	for _, status := range model.Statuses {
		undated := model.Task{Status: status}
		assert.False(t, undated.ShouldNotify(now), "status %s without deadline", status)
		assert.False(t, undated.IsOverdue(now), "status %s without deadline", status)

		for _, off := range offsets {
			task := model.Task{Status: status, Deadline: at(now.Add(off))}
			if status.Terminal() {
				assert.False(t, task.ShouldNotify(now), "status %s offset %s", status, off)
				assert.False(t, task.IsOverdue(now), "status %s offset %s", status, off)
			}
			task.NotificationSent = true
			assert.False(t, task.ShouldNotify(now), "sent, status %s offset %s", status, off)
		}
	}
}

func TestTask_IsOverdue(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	pending := model.Task{Status: model.StatusPending, Deadline: at(now.Add(-time.Second))}
	assert.True(t, pending.IsOverdue(now))

	exact := model.Task{Status: model.StatusPending, Deadline: at(now)}
	assert.False(t, exact.IsOverdue(now), "deadline must be strictly in the past")

	future := model.Task{Status: model.StatusInProgress, Deadline: at(now.Add(time.Minute))}
	assert.False(t, future.IsOverdue(now))
}

func TestStatus(t *testing.T) {
	assert.True(t, model.StatusPending.Valid())
	assert.False(t, model.Status("done").Valid())
	assert.True(t, model.StatusCompleted.Terminal())
	assert.True(t, model.StatusCancelled.Terminal())
	assert.False(t, model.StatusInProgress.Terminal())
}

func TestNewID(t *testing.T) {
	a := model.NewID()
	b := model.NewID()

	assert.Len(t, a, model.IDLength)
	assert.True(t, model.ValidID(a))
	assert.Less(t, a, b, "identifiers must sort by creation order")
	assert.False(t, model.ValidID("not-a-ulid"))
}

func TestUser_ChatID(t *testing.T) {
	var nobody *model.User
	_, ok := nobody.ChatID()
	assert.False(t, ok)

	id := int64(42)
	u := &model.User{TelegramID: &id}
	chat, ok := u.ChatID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), chat)
}
