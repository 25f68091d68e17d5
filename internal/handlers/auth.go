package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/types"
)

// AuthAPI is the account entry point used by AuthHandler.
type AuthAPI interface {
	TokenVerifier
	SignUp(ctx context.Context, in services.CreateUserInput) (types.AuthResult, error)
	SignIn(ctx context.Context, in services.SignInInput) (types.AuthResult, error)
	Profile(ctx context.Context, id string) (types.User, error)
}

// AuthHandler provides sign-up, sign-in and profile endpoints.
type AuthHandler struct {
	auth AuthAPI
	log  *logrus.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth AuthAPI, log *logrus.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, log: log}
}

// SignUp creates a new account with the default role and returns a token.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUserInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	result, err := h.auth.SignUp(r.Context(), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// SignIn verifies credentials and returns a token.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req services.SignInInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	result, err := h.auth.SignIn(r.Context(), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	current, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
		return
	}

	user, err := h.auth.Profile(r.Context(), current.ID)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
