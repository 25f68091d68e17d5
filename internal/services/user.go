package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/auth"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	ListActive(ctx context.Context, offset, limit int) ([]types.User, error)
	Create(ctx context.Context, user types.User, role types.Role) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// RoleRepository resolves seeded roles by name.
type RoleRepository interface {
	GetByName(ctx context.Context, name string) (types.Role, error)
}

// CreateUserInput carries the fields accepted when creating an account.
type CreateUserInput struct {
	Email     string `json:"email" validate:"required,max=50,lower_email"`
	Password  string `json:"password" validate:"required,min=6,max=60,password_strength"`
	FirstName string `json:"firstName" validate:"required,max=50,letters"`
	LastName  string `json:"lastName" validate:"omitempty,max=50,letters"`
	Phone     string `json:"phone" validate:"omitempty,e164"`
}

// UpdateUserInput is a partial update. Nil fields are left unchanged.
// An empty phone clears the stored number.
type UpdateUserInput struct {
	Email     *string `json:"email" validate:"omitempty,max=50,lower_email"`
	Password  *string `json:"password" validate:"omitempty,min=6,max=60,password_strength"`
	FirstName *string `json:"firstName" validate:"omitempty,max=50,letters"`
	LastName  *string `json:"lastName" validate:"omitempty,max=50,letters"`
	Phone     *string `json:"phone" validate:"omitempty,e164|len=0"`
	Active    *bool   `json:"active"`
}

// UserService is the credential store: accounts, password hashes and role assignments.
type UserService struct {
	users       UserRepository
	roles       RoleRepository
	defaultRole string
	events      EventPublisher
	log         *logrus.Logger
}

// NewUserService constructs a UserService. events may be nil.
func NewUserService(users UserRepository, roles RoleRepository, defaultRole string, events EventPublisher, log *logrus.Logger) *UserService {
	if defaultRole == "" {
		defaultRole = types.RoleUser
	}
	return &UserService{
		users:       users,
		roles:       roles,
		defaultRole: defaultRole,
		events:      events,
		log:         log,
	}
}

// Create hashes the password, assigns the default role and persists the account.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (types.User, error) {
	if err := validateInput(in); err != nil {
		return types.User{}, err
	}

	role, err := s.roles.GetByName(ctx, s.defaultRole)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.Validation("role %q does not exist", s.defaultRole)
		}
		return types.User{}, s.persistenceError(err, "failed to resolve default role")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Active:       true,
	}, role)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, apperr.Conflict("user with email %q already exists", in.Email)
		}
		return types.User{}, s.persistenceError(err, "failed to create user")
	}

	s.log.WithField("user_id", created.ID).Info("user created")
	publishEvent(ctx, s.events, s.log, types.EventUserCreated, created.ID)

	return created.Public(), nil
}

// FindByIdentity looks a user up by id when idOrEmail is UUID-shaped and by email otherwise.
// Without includePrivate the password hash and timestamps are stripped.
func (s *UserService) FindByIdentity(ctx context.Context, idOrEmail string, includePrivate bool) (types.User, error) {
	var (
		user types.User
		err  error
	)
	if isUUID(idOrEmail) {
		user, err = s.users.GetByID(ctx, idOrEmail)
	} else {
		user, err = s.users.GetByEmail(ctx, idOrEmail)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound("user %q not found", idOrEmail)
		}
		return types.User{}, s.persistenceError(err, "failed to load user")
	}

	if !includePrivate {
		return user.Public(), nil
	}
	return user, nil
}

// List returns active users in insertion order. A limit of 0 means no limit.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]types.User, error) {
	if limit < 0 || offset < 0 {
		return nil, apperr.Validation("limit and offset must not be negative")
	}
	users, err := s.users.ListActive(ctx, offset, limit)
	if err != nil {
		return nil, s.persistenceError(err, "failed to list users")
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}

// Update merges the provided fields. The password is rehashed only when a new one is supplied.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (types.User, error) {
	if !isUUID(id) {
		return types.User{}, apperr.Validation("invalid user id %q", id)
	}
	if err := validateInput(in); err != nil {
		return types.User{}, err
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apperr.NotFound("user %q not found", id)
		}
		return types.User{}, s.persistenceError(err, "failed to load user")
	}

	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.Active != nil {
		user.Active = *in.Active
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return types.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	updated, err := s.users.Update(ctx, user)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return types.User{}, apperr.Conflict("user with email %q already exists", user.Email)
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, apperr.NotFound("user %q not found", id)
		}
		return types.User{}, s.persistenceError(err, "failed to update user")
	}

	return updated.Public(), nil
}

// Remove hard-deletes the account and its role assignments.
func (s *UserService) Remove(ctx context.Context, id string) error {
	if !isUUID(id) {
		return apperr.Validation("invalid user id %q", id)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("user %q not found", id)
		}
		return s.persistenceError(err, "failed to delete user")
	}
	s.log.WithField("user_id", id).Info("user removed")
	return nil
}

func (s *UserService) persistenceError(err error, msg string) error {
	s.log.WithError(err).Error(msg)
	return apperr.Persistence(err, "%s", msg)
}
