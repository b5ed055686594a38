package service

import (
	"context"
	"time"

	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
)

// TaskStore is the task persistence used by the lifecycle controller.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, ownerID uint, taskID string) (*model.Task, error)
	List(ctx context.Context, filter repository.TaskFilter) ([]model.Task, error)
	UpdateFields(ctx context.Context, ownerID uint, taskID string, fields map[string]any) error
	ReplaceCategories(ctx context.Context, task *model.Task, cats []model.Category) error
	Delete(ctx context.Context, ownerID uint, taskID string) error
}

// NotificationStore is what the deadline sweep and the dispatcher need.
type NotificationStore interface {
	ListNotificationCandidates(ctx context.Context) ([]model.Task, error)
	Get(ctx context.Context, taskID string) (*model.Task, error)
	ClaimNotification(ctx context.Context, taskID, token string, now, until time.Time) (bool, error)
	RenewNotification(ctx context.Context, taskID, token string, until time.Time) (bool, error)
	MarkNotificationSent(ctx context.Context, taskID, token string) (bool, error)
	ReleaseNotification(ctx context.Context, taskID, token string) error
}

// RetentionStore purges old completed tasks.
type RetentionStore interface {
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CategoryStore is the category persistence.
type CategoryStore interface {
	Create(ctx context.Context, category *model.Category) error
	GetByID(ctx context.Context, id string) (*model.Category, error)
	FindByName(ctx context.Context, name string) (*model.Category, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Category, error)
	List(ctx context.Context, search string) ([]model.Category, error)
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
}

// CategoryResolver maps ids to existing categories, dropping unknown ones.
type CategoryResolver interface {
	FindByIDs(ctx context.Context, ids []string) ([]model.Category, error)
}

type UserStore interface {
	UpsertFromTelegram(ctx context.Context, telegramID int64, firstName, username string) (*model.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
}

var (
	_ TaskStore         = (*repository.TaskRepository)(nil)
	_ NotificationStore = (*repository.TaskRepository)(nil)
	_ RetentionStore    = (*repository.TaskRepository)(nil)
	_ CategoryStore     = (*repository.CategoryRepository)(nil)
	_ UserStore         = (*repository.UserRepository)(nil)
)
