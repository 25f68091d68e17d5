package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/metrics"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// UpdateProductInput is a partial update. Nil fields are left unchanged.
// A nil Images keeps the current images; a non-nil one, even empty, replaces them.
type UpdateProductInput struct {
	Title       *string   `json:"title" validate:"omitempty,min=3,max=50"`
	Price       *float64  `json:"price" validate:"omitempty,gte=0"`
	Description *string   `json:"description" validate:"omitempty,max=255"`
	Slug        *string   `json:"slug" validate:"omitempty,max=70"`
	Stock       *int      `json:"stock" validate:"omitempty,gte=0"`
	Sizes       *[]string `json:"sizes"`
	Gender      *string   `json:"gender" validate:"omitempty,oneof=male female"`
	Tags        *[]string `json:"tags"`
	Images      *[]string `json:"images"`
}

// Update applies the patch and reconciles the image collection in one transaction:
// lock and load the row, merge fields, keep or replace the images, save.
// Any failure rolls the whole update back.
func (s *ProductService) Update(ctx context.Context, id string, in UpdateProductInput) (types.Product, error) {
	if !isUUID(id) {
		return types.Product{}, apperr.Validation("invalid product id %q", id)
	}
	if err := validateProductPatch(in); err != nil {
		metrics.ProductWrites.WithLabelValues("update", "rejected").Inc()
		return types.Product{}, err
	}

	var updated types.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, w store.ProductWriter) error {
		current, err := w.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		merged := applyProductPatch(current, in)

		var images []types.ProductImage
		if in.Images == nil {
			images, err = w.ListImages(ctx, id)
			if err != nil {
				return err
			}
		} else {
			if err := w.DeleteImages(ctx, id); err != nil {
				return err
			}
			images, err = w.InsertImages(ctx, id, *in.Images)
			if err != nil {
				return err
			}
		}

		saved, err := w.Update(ctx, merged)
		if err != nil {
			return err
		}
		saved.Images = images
		updated = saved
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.ProductWrites.WithLabelValues("update", "rejected").Inc()
			return types.Product{}, apperr.NotFound("product with id %q not found", id)
		}
		metrics.ProductWrites.WithLabelValues("update", "rolled_back").Inc()
		return types.Product{}, s.persistenceError(err, "failed to update product", logrus.Fields{"product_id": id})
	}

	metrics.ProductWrites.WithLabelValues("update", "committed").Inc()
	s.invalidate(ctx, id)
	publishEvent(ctx, s.events, s.log, types.EventProductUpdated, id)
	return updated, nil
}

func validateProductPatch(in UpdateProductInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	if in.Sizes != nil {
		if len(*in.Sizes) == 0 {
			return apperr.Validation("sizes must not be empty")
		}
		if containsBlank(*in.Sizes) {
			return apperr.Validation("sizes must not contain empty values")
		}
	}
	if in.Tags != nil && containsBlank(*in.Tags) {
		return apperr.Validation("tags must not contain empty values")
	}
	if in.Images != nil && containsBlank(*in.Images) {
		return apperr.Validation("images must not contain empty values")
	}
	return nil
}

// applyProductPatch merges in over current. The slug is kept when absent, and
// an explicitly blank slug is derived from the resulting title. It is
// normalized again either way.
func applyProductPatch(current types.Product, in UpdateProductInput) types.Product {
	merged := current
	if in.Title != nil {
		merged.Title = *in.Title
	}
	if in.Price != nil {
		merged.Price = *in.Price
	}
	if in.Description != nil {
		merged.Description = *in.Description
	}
	if in.Slug != nil {
		merged.Slug = *in.Slug
	}
	if in.Stock != nil {
		merged.Stock = *in.Stock
	}
	if in.Sizes != nil {
		merged.Sizes = append([]string(nil), *in.Sizes...)
	}
	if in.Gender != nil {
		merged.Gender = *in.Gender
	}
	if in.Tags != nil {
		merged.Tags = append([]string{}, *in.Tags...)
	}

	if strings.TrimSpace(merged.Slug) == "" {
		merged.Slug = merged.Title
	}
	merged.Slug = NormalizeSlug(merged.Slug)
	return merged
}

func containsBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
