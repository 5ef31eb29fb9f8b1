package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fairlines/authcore/internal/models"
)

// UserService serves profile reads. User provisioning happens outside
// this service; accounts arrive through the identity store.
type UserService struct {
	users  UserRepository
	logger *slog.Logger
}

func NewUserService(users UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// GetProfile returns the public projection of the user.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*UserSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load user profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	summary := summarize(user)
	return &summary, nil
}
