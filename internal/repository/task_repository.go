package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deadline-planner/internal/model"
)

// TaskFilter narrows task queries. Zero values mean "no constraint".
type TaskFilter struct {
	OwnerID          *uint
	Statuses         []model.Status
	ExcludeStatuses  []model.Status
	CategoryID       string
	Search           string
	HasDeadline      *bool
	DeadlineBefore   *time.Time
	NotificationSent *bool

	// OrderBy is one of the keys of taskOrderings; empty means newest first.
	OrderBy string
	Limit   int
	Offset  int

	WithOwner bool
}

var taskOrderings = map[string]string{
	"created_at":  "tasks.created_at ASC, tasks.id ASC",
	"-created_at": "tasks.created_at DESC, tasks.id DESC",
	"deadline":    "tasks.deadline IS NULL, tasks.deadline ASC, tasks.id ASC",
	"-deadline":   "tasks.deadline IS NULL, tasks.deadline DESC, tasks.id DESC",
	"status":      "tasks.status ASC, tasks.id ASC",
	"-status":     "tasks.status DESC, tasks.id DESC",
}

// ValidTaskOrdering reports whether key can be used as TaskFilter.OrderBy.
func ValidTaskOrdering(key string) bool {
	_, ok := taskOrderings[key]
	return key == "" || ok
}

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	task.Deadline = utc(task.Deadline)
	if err := r.db.WithContext(ctx).Omit("User").Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", translate(err))
	}
	return nil
}

// FindByID returns the owner's task with its categories. Tasks of other
// owners are reported as ErrNotFound.
func (r *TaskRepository) FindByID(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Preload("Categories", orderCategories).
		Where("id = ? AND user_id = ?", taskID, ownerID).
		First(&task).Error
	if err != nil {
		return nil, fmt.Errorf("find task: %w", translate(err))
	}
	return &task, nil
}

// Get loads a task regardless of owner, together with its owner and
// categories.
func (r *TaskRepository) Get(ctx context.Context, taskID string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Categories", orderCategories).
		Where("id = ?", taskID).
		First(&task).Error
	if err != nil {
		return nil, fmt.Errorf("get task: %w", translate(err))
	}
	return &task, nil
}

func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{}).Scopes(filter.scope).Preload("Categories", orderCategories)
	if filter.WithOwner {
		q = q.Preload("User")
	}

	order, ok := taskOrderings[filter.OrderBy]
	if !ok {
		order = taskOrderings["-created_at"]
	}
	q = q.Order(order)

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var tasks []model.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListNotificationCandidates pre-filters tasks that may need a deadline
// reminder. Callers still have to evaluate Task.ShouldNotify.
func (r *TaskRepository) ListNotificationCandidates(ctx context.Context) ([]model.Task, error) {
	sent, dated := false, true
	return r.List(ctx, TaskFilter{
		Statuses:         model.ActiveStatuses,
		HasDeadline:      &dated,
		NotificationSent: &sent,
		OrderBy:          "deadline",
		WithOwner:        true,
	})
}

// UpdateFields applies column updates to the owner's task and bumps
// updated_at. Columns not listed are left untouched so concurrent writers of
// other columns (the reminder flag in particular) are not overwritten.
func (r *TaskRepository) UpdateFields(ctx context.Context, ownerID uint, taskID string, fields map[string]any) error {
	if d, ok := fields["deadline"].(*time.Time); ok {
		fields["deadline"] = utc(d)
	}
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", taskID, ownerID).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update task: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update task: %w", ErrNotFound)
	}
	return nil
}

// ReplaceCategories sets the task's categories to exactly cats.
func (r *TaskRepository) ReplaceCategories(ctx context.Context, task *model.Task, cats []model.Category) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assoc := tx.Model(task).Association("Categories")
		var err error
		if len(cats) == 0 {
			err = assoc.Clear()
		} else {
			err = assoc.Replace(cats)
		}
		if err != nil {
			return err
		}
		return tx.Model(&model.Task{}).Where("id = ?", task.ID).Update("updated_at", tx.NowFunc()).Error
	})
	if err != nil {
		return fmt.Errorf("replace task categories: %w", translate(err))
	}
	return nil
}

// Delete removes the owner's task and its category links.
func (r *TaskRepository) Delete(ctx context.Context, ownerID uint, taskID string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM task_categories WHERE task_id IN (?)",
			tx.Model(&model.Task{}).Select("id").Where("id = ? AND user_id = ?", taskID, ownerID)).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND user_id = ?", taskID, ownerID).Delete(&model.Task{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", translate(err))
	}
	return nil
}

// ClaimNotification takes the reminder lease for a task that has not been
// notified yet and tags it with token. It returns false when another
// dispatcher holds a live lease or the reminder was already sent.
func (r *TaskRepository) ClaimNotification(ctx context.Context, taskID, token string, now, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND notification_sent = ?", taskID, false).
		Where("(notify_lease_until IS NULL OR notify_lease_until < ?)", now.UTC()).
		UpdateColumns(map[string]any{
			"notify_lease_until": until.UTC(),
			"notify_lease_token": token,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RenewNotification extends a lease still held under token. It returns false
// when the lease was taken over or cleared by a deadline change.
func (r *TaskRepository) RenewNotification(ctx context.Context, taskID, token string, until time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND notify_lease_token = ? AND notification_sent = ?", taskID, token, false).
		UpdateColumn("notify_lease_until", until.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("renew notification: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkNotificationSent latches the reminder flag and drops the lease held
// under token. It returns false if the flag was already set or the lease is
// no longer held, e.g. because the deadline moved while sending.
func (r *TaskRepository) MarkNotificationSent(ctx context.Context, taskID, token string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND notify_lease_token = ? AND notification_sent = ?", taskID, token, false).
		Updates(map[string]any{
			"notification_sent":  true,
			"notify_lease_until": gorm.Expr("NULL"),
			"notify_lease_token": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark notification sent: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseNotification drops the lease held under token so the next sweep can
// retry.
func (r *TaskRepository) ReleaseNotification(ctx context.Context, taskID, token string) error {
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND notify_lease_token = ?", taskID, token).
		UpdateColumns(map[string]any{
			"notify_lease_until": gorm.Expr("NULL"),
			"notify_lease_token": gorm.Expr("NULL"),
		}).Error
	if err != nil {
		return fmt.Errorf("release notification: %w", err)
	}
	return nil
}

// DeleteCompletedBefore purges completed tasks last modified before cutoff.
func (r *TaskRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&model.Task{}).
			Select("id").
			Where("status = ? AND updated_at < ?", model.StatusCompleted, cutoff.UTC())

		if err := tx.Exec("DELETE FROM task_categories WHERE task_id IN (?)", stale).Error; err != nil {
			return err
		}
		res := tx.Where("status = ? AND updated_at < ?", model.StatusCompleted, cutoff.UTC()).Delete(&model.Task{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete completed tasks: %w", err)
	}
	return deleted, nil
}

func (f TaskFilter) scope(db *gorm.DB) *gorm.DB {
	if f.OwnerID != nil {
		db = db.Where("tasks.user_id = ?", *f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		db = db.Where("tasks.status IN ?", f.Statuses)
	}
	if len(f.ExcludeStatuses) > 0 {
		db = db.Where("tasks.status NOT IN ?", f.ExcludeStatuses)
	}
	if f.CategoryID != "" {
		db = db.Where("tasks.id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).
				Table("task_categories").
				Select("task_id").
				Where("category_id = ?", f.CategoryID))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		db = db.Where("(LOWER(tasks.title) LIKE ? OR LOWER(tasks.description) LIKE ?)", like, like)
	}
	if f.HasDeadline != nil {
		if *f.HasDeadline {
			db = db.Where("tasks.deadline IS NOT NULL")
		} else {
			db = db.Where("tasks.deadline IS NULL")
		}
	}
	if f.DeadlineBefore != nil {
		db = db.Where("tasks.deadline < ?", f.DeadlineBefore.UTC())
	}
	if f.NotificationSent != nil {
		db = db.Where("tasks.notification_sent = ?", *f.NotificationSent)
	}
	return db
}

func orderCategories(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "name"}})
}
