package service

import (
	"context"
	"errors"
	"strconv"

	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
)

// UserService links Telegram chats to task owners.
type UserService struct {
	repo UserStore
}

func NewUserService(repo UserStore) *UserService {
	return &UserService{repo: repo}
}

// RegisterTelegram returns the owner for a Telegram account, creating it on
// first contact and refreshing the profile names afterwards.
func (s *UserService) RegisterTelegram(ctx context.Context, telegramID int64, firstName, username string) (*model.User, error) {
	if telegramID == 0 {
		return nil, NewValidationError("telegram_id", "is required")
	}
	return s.repo.UpsertFromTelegram(ctx, telegramID, firstName, username)
}

func (s *UserService) ByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, NewNotFound("user", strconv.FormatInt(telegramID, 10))
		}
		return nil, err
	}
	return user, nil
}
