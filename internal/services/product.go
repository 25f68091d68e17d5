package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/metrics"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Product, error)
	GetByID(ctx context.Context, id string) (types.Product, error)
	GetByTitleOrSlug(ctx context.Context, upperTitle, lowerSlug string) (types.Product, error)
	Create(ctx context.Context, product types.Product, imageURLs []string) (types.Product, error)
	Delete(ctx context.Context, id string) error
	WithTx(ctx context.Context, fn func(ctx context.Context, w store.ProductWriter) error) error
}

// ProductCache caches product reads by id. Every invalidation bumps the
// product's version, and SetIfVersion only stores a product read under the
// version observed before the read.
type ProductCache interface {
	Get(ctx context.Context, id string) (types.Product, bool, error)
	Version(ctx context.Context, id string) (int64, error)
	SetIfVersion(ctx context.Context, product types.Product, version int64) (bool, error)
	Invalidate(ctx context.Context, id string) error
}

// CreateProductInput carries the fields accepted when creating a product.
type CreateProductInput struct {
	Title       string   `json:"title" validate:"required,min=3,max=50"`
	Price       float64  `json:"price" validate:"gte=0"`
	Description string   `json:"description" validate:"max=255"`
	Slug        string   `json:"slug" validate:"max=70"`
	Stock       int      `json:"stock" validate:"gte=0"`
	Sizes       []string `json:"sizes" validate:"required,min=1,dive,required"`
	Gender      string   `json:"gender" validate:"required,oneof=male female"`
	Tags        []string `json:"tags" validate:"omitempty,dive,required"`
	Images      []string `json:"images" validate:"omitempty,dive,required"`
}

// ProductService is the product catalog: create, list, lookup, update and remove.
type ProductService struct {
	repo   ProductRepository
	cache  ProductCache
	events EventPublisher
	log    *logrus.Logger
}

// NewProductService constructs a ProductService. cache and events may be nil.
func NewProductService(repo ProductRepository, cache ProductCache, events EventPublisher, log *logrus.Logger) *ProductService {
	return &ProductService{
		repo:   repo,
		cache:  cache,
		events: events,
		log:    log,
	}
}

// Create derives the slug and persists the product with its images as one unit.
func (s *ProductService) Create(ctx context.Context, in CreateProductInput) (types.Product, error) {
	if err := validateInput(in); err != nil {
		metrics.ProductWrites.WithLabelValues("create", "rejected").Inc()
		return types.Product{}, err
	}

	images := in.Images
	if images == nil {
		images = []string{}
	}

	created, err := s.repo.Create(ctx, newProduct(in), images)
	if err != nil {
		metrics.ProductWrites.WithLabelValues("create", "rolled_back").Inc()
		return types.Product{}, s.persistenceError(err, "failed to create product", logrus.Fields{"title": in.Title})
	}

	metrics.ProductWrites.WithLabelValues("create", "committed").Inc()
	s.log.WithField("product_id", created.ID).Info("product created")
	publishEvent(ctx, s.events, s.log, types.EventProductCreated, created.ID)
	return created, nil
}

// List returns products with images in insertion order. A limit of 0 means no limit.
func (s *ProductService) List(ctx context.Context, limit, offset int) ([]types.Product, error) {
	if limit < 0 || offset < 0 {
		return nil, apperr.Validation("limit and offset must not be negative")
	}
	products, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, s.persistenceError(err, "failed to list products", nil)
	}
	return products, nil
}

// Find looks a product up by id when term is UUID-shaped, otherwise by
// case-insensitive title or lower-cased slug.
func (s *ProductService) Find(ctx context.Context, term string) (types.Product, error) {
	var (
		product types.Product
		err     error
	)
	if isUUID(term) {
		product, err = s.findByID(ctx, term)
	} else {
		product, err = s.repo.GetByTitleOrSlug(ctx, strings.ToUpper(term), strings.ToLower(term))
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Product{}, apperr.NotFound("product with term %q not found", term)
		}
		return types.Product{}, s.persistenceError(err, "failed to load product", logrus.Fields{"term": term})
	}
	return product, nil
}

func (s *ProductService) findByID(ctx context.Context, id string) (types.Product, error) {
	populate := false
	var version int64
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("product cache read failed")
		} else if ok {
			return cached, nil
		}

		// The version must be taken before the database read so a write
		// committed in between makes the populate below a no-op.
		version, err = s.cache.Version(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("product cache version read failed")
		} else {
			populate = true
		}
	}

	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Product{}, err
	}

	if populate {
		stored, err := s.cache.SetIfVersion(ctx, product, version)
		if err != nil {
			s.log.WithError(err).WithField("product_id", id).Warn("product cache write failed")
		} else if !stored {
			s.log.WithField("product_id", id).Debug("product changed during read, cache not populated")
		}
	}
	return product, nil
}

// Remove deletes the product and its images.
func (s *ProductService) Remove(ctx context.Context, id string) error {
	if !isUUID(id) {
		return apperr.Validation("invalid product id %q", id)
	}
	product, err := s.Find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, product.ID); err != nil {
		metrics.ProductWrites.WithLabelValues("delete", "rolled_back").Inc()
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("product with term %q not found", id)
		}
		return s.persistenceError(err, "failed to delete product", logrus.Fields{"product_id": product.ID})
	}

	metrics.ProductWrites.WithLabelValues("delete", "committed").Inc()
	s.invalidate(ctx, product.ID)
	publishEvent(ctx, s.events, s.log, types.EventProductDeleted, product.ID)
	return nil
}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), id); err != nil {
		s.log.WithError(err).WithField("product_id", id).Warn("product cache invalidation failed")
	}
}

func (s *ProductService) persistenceError(err error, msg string, fields logrus.Fields) error {
	s.log.WithError(err).WithFields(fields).Error(msg)
	return apperr.Persistence(err, "%s", msg)
}

// newProduct builds the persisted shape of a new product. The slug comes from
// the explicit slug when given and from the title otherwise.
func newProduct(in CreateProductInput) types.Product {
	slug := in.Slug
	if strings.TrimSpace(slug) == "" {
		slug = in.Title
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	return types.Product{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Slug:        NormalizeSlug(slug),
		Stock:       in.Stock,
		Sizes:       in.Sizes,
		Gender:      in.Gender,
		Tags:        tags,
	}
}
