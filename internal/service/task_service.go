package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
)

// TaskInput carries the fields of a new task.
type TaskInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	CategoryIDs []string   `json:"category_ids" validate:"dive,sortable_id"`
}

// TaskPatch lists the changes to apply to a task; nil fields are left alone.
// ClearDeadline removes the deadline and wins over Deadline.
type TaskPatch struct {
	Title         *string       `json:"title" validate:"omitnil,min=1,max=255"`
	Description   *string       `json:"description"`
	Deadline      *time.Time    `json:"deadline"`
	ClearDeadline bool          `json:"clear_deadline"`
	Status        *model.Status `json:"status" validate:"omitnil,task_status"`
	CategoryIDs   *[]string     `json:"category_ids" validate:"omitnil,dive,sortable_id"`
}

// ListOptions filters an owner's task list. Status entries prefixed with
// "-" exclude that status.
type ListOptions struct {
	Status     []string
	CategoryID string
	Search     string
	OrderBy    string
	Limit      int
	Offset     int
}

type TaskServiceOption func(*TaskService)

func WithTransitionPolicy(p TransitionPolicy) TaskServiceOption {
	return func(s *TaskService) {
		if p != nil {
			s.policy = p
		}
	}
}

func WithTaskClock(now func() time.Time) TaskServiceOption {
	return func(s *TaskService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTaskLogger(log *zap.Logger) TaskServiceOption {
	return func(s *TaskService) {
		if log != nil {
			s.log = log
		}
	}
}

// TaskService is the single entry point for task mutations.
type TaskService struct {
	tasks      TaskStore
	categories CategoryResolver
	policy     TransitionPolicy
	now        func() time.Time
	log        *zap.Logger
}

func NewTaskService(tasks TaskStore, categories CategoryResolver, opts ...TaskServiceOption) *TaskService {
	s := &TaskService{
		tasks:      tasks,
		categories: categories,
		policy:     AnyTransition{},
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) CreateTask(ctx context.Context, ownerID uint, in TaskInput) (*model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	cats, err := s.resolveCategories(ctx, in.CategoryIDs)
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		UserID:      ownerID,
		Title:       in.Title,
		Description: in.Description,
		Status:      model.StatusPending,
		Deadline:    in.Deadline,
		Categories:  cats,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	s.log.Info("task created",
		zap.String("task_id", task.ID),
		zap.Uint("owner_id", ownerID),
		zap.Bool("has_deadline", task.Deadline != nil),
	)
	return task, nil
}

// UpdateTask applies patch to the owner's task. Changing the deadline makes
// the task eligible for a new reminder.
func (s *TaskService) UpdateTask(ctx context.Context, ownerID uint, taskID string, patch TaskPatch) (*model.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Title != nil && *patch.Title != current.Title {
		fields["title"] = *patch.Title
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc != current.Description {
			fields["description"] = desc
		}
	}

	switch {
	case patch.ClearDeadline:
		if current.Deadline != nil {
			fields["deadline"] = (*time.Time)(nil)
		}
	case patch.Deadline != nil:
		if current.Deadline == nil || !current.Deadline.Equal(*patch.Deadline) {
			fields["deadline"] = patch.Deadline
		}
	}
	if _, ok := fields["deadline"]; ok {
		fields["notification_sent"] = false
		fields["notify_lease_until"] = nil
		fields["notify_lease_token"] = nil
	}

	if patch.Status != nil && *patch.Status != current.Status {
		if err := s.policy.Allow(current.Status, *patch.Status); err != nil {
			return nil, err
		}
		fields["status"] = *patch.Status
	}

	if len(fields) > 0 {
		if err := s.update(ctx, ownerID, taskID, fields); err != nil {
			return nil, err
		}
	}

	if patch.CategoryIDs != nil {
		cats, err := s.resolveCategories(ctx, *patch.CategoryIDs)
		if err != nil {
			return nil, err
		}
		if err := s.tasks.ReplaceCategories(ctx, current, cats); err != nil {
			return nil, err
		}
	}

	if _, ok := fields["deadline"]; ok {
		s.log.Info("task deadline changed, reminder re-armed", zap.String("task_id", taskID))
	}
	return s.load(ctx, ownerID, taskID)
}

// SetCategories replaces the task's categories. Unknown ids are ignored.
func (s *TaskService) SetCategories(ctx context.Context, ownerID uint, taskID string, categoryIDs []string) (*model.Task, error) {
	return s.UpdateTask(ctx, ownerID, taskID, TaskPatch{CategoryIDs: &categoryIDs})
}

// Transition moves the task to status under the configured policy.
func (s *TaskService) Transition(ctx context.Context, ownerID uint, taskID string, status model.Status) (*model.Task, error) {
	if !status.Valid() {
		return nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
	}
	return s.UpdateTask(ctx, ownerID, taskID, TaskPatch{Status: &status})
}

func (s *TaskService) Complete(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	return s.Transition(ctx, ownerID, taskID, model.StatusCompleted)
}

func (s *TaskService) Cancel(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	return s.Transition(ctx, ownerID, taskID, model.StatusCancelled)
}

// Reopen returns a closed task to pending regardless of policy. The reminder
// flag is kept as is.
func (s *TaskService) Reopen(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	current, err := s.load(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if current.Status == model.StatusPending {
		return current, nil
	}
	if err := s.update(ctx, ownerID, taskID, map[string]any{"status": model.StatusPending}); err != nil {
		return nil, err
	}
	return s.load(ctx, ownerID, taskID)
}

func (s *TaskService) DeleteTask(ctx context.Context, ownerID uint, taskID string) error {
	if err := s.tasks.Delete(ctx, ownerID, taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFound("task", taskID)
		}
		return err
	}
	s.log.Info("task deleted", zap.String("task_id", taskID), zap.Uint("owner_id", ownerID))
	return nil
}

func (s *TaskService) GetTask(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	return s.load(ctx, ownerID, taskID)
}

func (s *TaskService) ListTasks(ctx context.Context, ownerID uint, opts ListOptions) ([]model.Task, error) {
	include, exclude, err := ParseStatusFilter(opts.Status)
	if err != nil {
		return nil, err
	}
	if opts.CategoryID != "" && !model.ValidID(opts.CategoryID) {
		return nil, NewValidationError("category_id", fmt.Sprintf("%s is not a valid identifier", opts.CategoryID))
	}
	if !repository.ValidTaskOrdering(opts.OrderBy) {
		return nil, NewValidationError("ordering", fmt.Sprintf("unsupported ordering %q", opts.OrderBy))
	}

	return s.tasks.List(ctx, repository.TaskFilter{
		OwnerID:         &ownerID,
		Statuses:        include,
		ExcludeStatuses: exclude,
		CategoryID:      opts.CategoryID,
		Search:          opts.Search,
		OrderBy:         opts.OrderBy,
		Limit:           opts.Limit,
		Offset:          opts.Offset,
	})
}

// ListOverdue returns the owner's open tasks whose deadline has passed,
// earliest deadline first.
func (s *TaskService) ListOverdue(ctx context.Context, ownerID uint) ([]model.Task, error) {
	now := s.now()
	return s.tasks.List(ctx, repository.TaskFilter{
		OwnerID:        &ownerID,
		Statuses:       model.ActiveStatuses,
		DeadlineBefore: &now,
		OrderBy:        "deadline",
	})
}

// ParseStatusFilter splits values like "pending" and "-completed" into
// statuses to include and to exclude.
func ParseStatusFilter(values []string) (include, exclude []model.Status, err error) {
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		negate := strings.HasPrefix(raw, "-")
		status := model.Status(strings.TrimPrefix(raw, "-"))
		if !status.Valid() {
			return nil, nil, NewValidationError("status", fmt.Sprintf("unknown status %q", status))
		}
		if negate {
			exclude = append(exclude, status)
		} else {
			include = append(include, status)
		}
	}
	return include, exclude, nil
}

func (s *TaskService) load(ctx context.Context, ownerID uint, taskID string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, ownerID, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFound("task", taskID)
		}
		return nil, err
	}
	return task, nil
}

func (s *TaskService) update(ctx context.Context, ownerID uint, taskID string, fields map[string]any) error {
	if err := s.tasks.UpdateFields(ctx, ownerID, taskID, fields); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFound("task", taskID)
		}
		return err
	}
	return nil
}

func (s *TaskService) resolveCategories(ctx context.Context, ids []string) ([]model.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	cats, err := s.categories.FindByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("resolve categories: %w", err)
	}
	return cats, nil
}
