package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
	"deadline-planner/internal/service"
	"deadline-planner/internal/testutil"
)

var baseTime = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, chatID int64, text string) error {
	args := m.Called(ctx, chatID, text)
	return args.Error(0)
}

// env wires the services against a private database and a fixed clock.
type env struct {
	db         *gorm.DB
	clock      *testutil.Clock
	tasks      *repository.TaskRepository
	categories *repository.CategoryRepository
	sender     *mockSender
	reminder   *service.ReminderService
	taskSvc    *service.TaskService
	dispatcher *service.Dispatcher
	sweeper    *service.DeadlineSweeper
	owner      *model.User
}

func newEnv(t *testing.T, opts ...service.TaskServiceOption) *env {
	t.Helper()

	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	e := &env{
		db:         db,
		clock:      testutil.NewClock(baseTime),
		tasks:      repository.NewTaskRepository(db),
		categories: repository.NewCategoryRepository(db),
		sender:     &mockSender{},
		reminder:   service.NewReminderService(time.UTC),
	}

	opts = append([]service.TaskServiceOption{
		service.WithTaskClock(e.clock.Now),
		service.WithTaskLogger(log),
	}, opts...)
	e.taskSvc = service.NewTaskService(e.tasks, e.categories, opts...)

	e.dispatcher = service.NewDispatcher(e.tasks, e.sender, e.reminder,
		service.DispatcherConfig{
			SendTimeout:    time.Second,
			MaxAttempts:    3,
			Lease:          time.Minute,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		service.WithDispatcherClock(e.clock.Now),
		service.WithDispatcherLogger(log),
	)
	e.sweeper = service.NewDeadlineSweeper(e.tasks, e.dispatcher,
		service.WithSweepConcurrency(4),
		service.WithSweepClock(e.clock.Now),
		service.WithSweepLogger(log),
	)
	e.owner = testutil.CreateUser(t, db, 1001)
	return e
}

func (e *env) createTask(t *testing.T, title string, deadline *time.Time) *model.Task {
	t.Helper()

	task, err := e.taskSvc.CreateTask(context.Background(), e.owner.ID, service.TaskInput{
		Title:    title,
		Deadline: deadline,
	})
	require.NoError(t, err)
	return task
}

func (e *env) reload(t *testing.T, taskID string) *model.Task {
	t.Helper()

	task, err := e.tasks.Get(context.Background(), taskID)
	require.NoError(t, err)
	return task
}

// markSent latches the reminder flag the way a dispatcher does.
func (e *env) markSent(t *testing.T, taskID string) {
	t.Helper()

	ctx := context.Background()
	now := e.clock.Now()
	claimed, err := e.tasks.ClaimNotification(ctx, taskID, "test", now, now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)
	marked, err := e.tasks.MarkNotificationSent(ctx, taskID, "test")
	require.NoError(t, err)
	require.True(t, marked)
}

func at(d time.Duration) *time.Time {
	v := baseTime.Add(d)
	return &v
}
