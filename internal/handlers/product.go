package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/types"
)

// ProductAPI is the catalog surface used by ProductHandler.
type ProductAPI interface {
	Create(ctx context.Context, in services.CreateProductInput) (types.Product, error)
	List(ctx context.Context, limit, offset int) ([]types.Product, error)
	Find(ctx context.Context, term string) (types.Product, error)
	Update(ctx context.Context, id string, in services.UpdateProductInput) (types.Product, error)
	Remove(ctx context.Context, id string) error
}

// ProductHandler provides HTTP handlers for the product catalog.
type ProductHandler struct {
	products ProductAPI
	log      *logrus.Logger
}

// NewProductHandler constructs a handler with the provided service.
func NewProductHandler(products ProductAPI, log *logrus.Logger) *ProductHandler {
	return &ProductHandler{products: products, log: log}
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req services.CreateProductInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	product, err := h.products.Create(r.Context(), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}

	products, err := h.products.List(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct looks a product up by id, title or slug.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Find(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req services.UpdateProductInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, h.log, err)
		return
	}

	product, err := h.products.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeAppError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
