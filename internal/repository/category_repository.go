package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"deadline-planner/internal/model"
)

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a category. A taken name yields ErrDuplicate.
func (r *CategoryRepository) Create(ctx context.Context, category *model.Category) error {
	if err := r.db.WithContext(ctx).Create(category).Error; err != nil {
		return fmt.Errorf("create category: %w", translate(err))
	}
	return nil
}

func (r *CategoryRepository) GetByID(ctx context.Context, id string) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&category).Error; err != nil {
		return nil, fmt.Errorf("get category: %w", translate(err))
	}
	return &category, nil
}

func (r *CategoryRepository) FindByName(ctx context.Context, name string) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&category).Error; err != nil {
		return nil, fmt.Errorf("find category: %w", translate(err))
	}
	return &category, nil
}

// FindByIDs returns the categories that exist among ids; unknown ids are
// simply absent from the result.
func (r *CategoryRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	return categories, nil
}

// List returns categories ordered by name with the number of attached
// tasks. A non-empty search matches names case-insensitively.
func (r *CategoryRepository) List(ctx context.Context, search string) ([]model.Category, error) {
	q := r.db.WithContext(ctx).Model(&model.Category{}).
		Select("categories.*, COUNT(task_categories.task_id) AS tasks_count").
		Joins("LEFT JOIN task_categories ON task_categories.category_id = categories.id").
		Group("categories.id").
		Order("categories.name ASC")
	if s := strings.TrimSpace(search); s != "" {
		q = q.Where("LOWER(categories.name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	var categories []model.Category
	if err := q.Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (r *CategoryRepository) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update category: %w", translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update category: %w", ErrNotFound)
	}
	return nil
}

// Delete removes the category and detaches it from every task. Tasks are
// kept.
func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM task_categories WHERE category_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete category: %w", translate(err))
	}
	return nil
}
