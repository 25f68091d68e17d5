package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/auth"
	"github.com/storefront/apiserver/internal/metrics"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

const (
	msgInvalidCredentials = "invalid credentials"
	msgInvalidToken       = "token not valid"
)

// SignInInput carries sign-in credentials.
type SignInInput struct {
	Email    string `json:"email" validate:"required,max=50"`
	Password string `json:"password" validate:"required,max=60"`
}

// AuthService verifies credentials, issues tokens and resolves token holders.
type AuthService struct {
	users    UserRepository
	accounts *UserService
	tokens   *auth.TokenIssuer
	log      *logrus.Logger
}

func NewAuthService(users UserRepository, accounts *UserService, tokens *auth.TokenIssuer, log *logrus.Logger) *AuthService {
	return &AuthService{
		users:    users,
		accounts: accounts,
		tokens:   tokens,
		log:      log,
	}
}

// SignIn checks the credentials and returns a fresh token with the user.
// Unknown email, wrong password and inactive account fail identically.
func (s *AuthService) SignIn(ctx context.Context, in SignInInput) (types.AuthResult, error) {
	if err := validateInput(in); err != nil {
		return types.AuthResult{}, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.WithError(err).Error("failed to load user for sign-in")
			return types.AuthResult{}, apperr.Persistence(err, "failed to sign in")
		}
		auth.CompareDummy(in.Password)
		return types.AuthResult{}, s.rejectSignIn()
	}

	if !auth.CheckPassword(user.PasswordHash, in.Password) || !user.Active {
		return types.AuthResult{}, s.rejectSignIn()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.AuthResult{}, err
	}

	return types.AuthResult{AuthToken: token, User: user.Public()}, nil
}

// SignUp creates an account with the default role and signs it in.
func (s *AuthService) SignUp(ctx context.Context, in CreateUserInput) (types.AuthResult, error) {
	user, err := s.accounts.Create(ctx, in)
	if err != nil {
		return types.AuthResult{}, err
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return types.AuthResult{}, err
	}
	return types.AuthResult{AuthToken: token, User: user}, nil
}

// Verify validates the token and re-resolves its holder, so deactivated or
// deleted users are rejected even while their token has not expired.
func (s *AuthService) Verify(ctx context.Context, token string) (types.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil || !isUUID(id) {
		return types.User{}, s.rejectToken()
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, s.rejectToken()
		}
		s.log.WithError(err).Error("failed to load user for token")
		return types.User{}, apperr.Persistence(err, "failed to verify token")
	}
	if !user.Active {
		return types.User{}, s.rejectToken()
	}

	return user.Public(), nil
}

// Profile returns the public view of the user.
func (s *AuthService) Profile(ctx context.Context, id string) (types.User, error) {
	return s.accounts.FindByIdentity(ctx, id, false)
}

func (s *AuthService) rejectSignIn() error {
	metrics.AuthFailures.WithLabelValues("sign_in").Inc()
	return apperr.Authentication(msgInvalidCredentials)
}

func (s *AuthService) rejectToken() error {
	metrics.AuthFailures.WithLabelValues("verify").Inc()
	return apperr.Authentication(msgInvalidToken)
}
