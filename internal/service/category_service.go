package service

import (
	"context"
	"errors"
	"strings"

	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
)

type CategoryInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,len=7,hexcolor"`
}

type CategoryPatch struct {
	Name  *string `json:"name" validate:"omitnil,min=1,max=100"`
	Color *string `json:"color" validate:"omitnil,len=7,hexcolor"`
}

// CategoryService manages the shared category list.
type CategoryService struct {
	repo CategoryStore
}

func NewCategoryService(repo CategoryStore) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*model.Category, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, in.Name, ""); err != nil {
		return nil, err
	}

	cat := &model.Category{Name: in.Name, Color: in.Color}
	if err := s.repo.Create(ctx, cat); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, NewConflict("category", "name", in.Name)
		}
		return nil, err
	}
	return cat, nil
}

func (s *CategoryService) Get(ctx context.Context, id string) (*model.Category, error) {
	cat, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFound("category", id)
		}
		return nil, err
	}
	return cat, nil
}

// List returns categories by name with their task counts.
func (s *CategoryService) List(ctx context.Context, search string) ([]model.Category, error) {
	return s.repo.List(ctx, strings.TrimSpace(search))
}

func (s *CategoryService) Update(ctx context.Context, id string, patch CategoryPatch) (*model.Category, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if patch.Name != nil && *patch.Name != current.Name {
		if err := s.ensureNameFree(ctx, *patch.Name, id); err != nil {
			return nil, err
		}
		fields["name"] = *patch.Name
	}
	if patch.Color != nil && *patch.Color != current.Color {
		fields["color"] = *patch.Color
	}
	if len(fields) == 0 {
		return current, nil
	}

	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, NewConflict("category", "name", *patch.Name)
		case errors.Is(err, repository.ErrNotFound):
			return nil, NewNotFound("category", id)
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the category and detaches it from every task.
func (s *CategoryService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return NewNotFound("category", id)
		}
		return err
	}
	return nil
}

func (s *CategoryService) ensureNameFree(ctx context.Context, name, selfID string) error {
	existing, err := s.repo.FindByName(ctx, name)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID != selfID:
		return NewConflict("category", "name", name)
	}
	return nil
}
