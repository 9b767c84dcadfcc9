package service

import (
	"context"
	"fmt"
	"log/slog"

	"go-tour-booking/internal/model"
	"go-tour-booking/internal/util"
)

// UserService serves the self-service profile routes and admin user
// management. Callers are already authenticated.
type UserService struct {
	store  UserStore
	logger *slog.Logger
}

func NewUserService(store UserStore, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{store: store, logger: logger}
}

func (s *UserService) Me(ctx context.Context, id string) (model.User, error) {
	user, err := s.store.FindByID(ctx, id, model.ActiveOnly)
	if err != nil {
		return model.User{}, storeError(err)
	}
	return user, nil
}

// UpdateMe changes name or email. Bodies carrying password fields are
// rejected so clients cannot bypass the current-password check.
func (s *UserService) UpdateMe(ctx context.Context, id string, req model.UpdateMeRequest) (model.User, error) {
	if req.Password != nil || req.PasswordConfirm != nil {
		return model.User{}, validationError(fmt.Errorf("%w: this route is not for password updates, please use /updateMyPassword", model.ErrValidation))
	}

	update := model.ProfileUpdate{Name: util.SanitizeNamePtr(req.Name), Email: req.Email}
	if err := update.Validate(); err != nil {
		return model.User{}, validationError(err)
	}

	user, err := s.store.UpdateByID(ctx, id, update)
	if err != nil {
		return model.User{}, storeError(err)
	}

	s.logger.InfoContext(ctx, "profile updated", "user_id", id)
	return user, nil
}

// DeleteMe deactivates the account. The row is kept.
func (s *UserService) DeleteMe(ctx context.Context, id string) error {
	if _, err := s.store.UpdateByID(ctx, id, model.Deactivation{}); err != nil {
		return storeError(err)
	}

	s.logger.InfoContext(ctx, "account deactivated", "user_id", id)
	return nil
}

func (s *UserService) List(ctx context.Context, page int, limit int) (model.UserList, error) {
	users, total, err := s.store.List(ctx, page, limit, model.ActiveOnly)
	if err != nil {
		return model.UserList{}, storeError(err)
	}
	return model.UserList{Users: users, Total: total}, nil
}

func (s *UserService) Get(ctx context.Context, id string) (model.User, error) {
	user, err := s.store.FindByID(ctx, id, model.ActiveOnly)
	if err != nil {
		return model.User{}, storeError(err)
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id string, req model.UpdateUserRequest) (model.User, error) {
	update := model.AdminUserUpdate{Name: util.SanitizeNamePtr(req.Name), Email: req.Email}
	if req.Role != nil {
		role, ok := model.ParseRole(*req.Role)
		if !ok {
			return model.User{}, validationError(fmt.Errorf("%w: unknown role %q", model.ErrValidation, *req.Role))
		}
		update.Role = &role
	}
	if err := update.Validate(); err != nil {
		return model.User{}, validationError(err)
	}

	user, err := s.store.UpdateByID(ctx, id, update)
	if err != nil {
		return model.User{}, storeError(err)
	}

	s.logger.InfoContext(ctx, "user updated by admin", "user_id", id)
	return user, nil
}

// Delete removes the row outright.
func (s *UserService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}

	s.logger.InfoContext(ctx, "user deleted by admin", "user_id", id)
	return nil
}

func (s *UserService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}
