package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/types"
)

// UserAPI is the account management surface used by UserHandler.
type UserAPI interface {
	Create(ctx context.Context, in services.CreateUserInput) (types.User, error)
	List(ctx context.Context, limit, offset int) ([]types.User, error)
	FindByIdentity(ctx context.Context, idOrEmail string, includePrivate bool) (types.User, error)
	Update(ctx context.Context, id string, in services.UpdateUserInput) (types.User, error)
	Remove(ctx context.Context, id string) error
}

// UserHandler provides HTTP handlers for user accounts.
type UserHandler struct {
	users UserAPI
	log   *logrus.Logger
}

func NewUserHandler(users UserAPI, log *logrus.Logger) *UserHandler {
	return &UserHandler{users: users, log: log}
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req services.CreateUserInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}

	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser accepts a user id or an email address.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.FindByIdentity(r.Context(), chi.URLParam(r, "id"), false)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateUserInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
