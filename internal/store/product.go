package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/storefront/apiserver/types"
)

// ProductWriter is the set of product operations available inside a transaction.
type ProductWriter interface {
	GetForUpdate(ctx context.Context, id string) (types.Product, error)
	Insert(ctx context.Context, product types.Product) (types.Product, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	Delete(ctx context.Context, id string) error
	ListImages(ctx context.Context, productID string) ([]types.ProductImage, error)
	DeleteImages(ctx context.Context, productID string) error
	InsertImages(ctx context.Context, productID string, urls []string) ([]types.ProductImage, error)
}

// ProductRepository handles persistence for products and their images.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const selectProduct = `
		SELECT id, title, price, COALESCE(description, ''), slug, stock, sizes, gender, tags, created_at, updated_at
		FROM products`

func scanProduct(row rowScanner) (types.Product, error) {
	var product types.Product
	err := row.Scan(
		&product.ID,
		&product.Title,
		&product.Price,
		&product.Description,
		&product.Slug,
		&product.Stock,
		pq.Array(&product.Sizes),
		&product.Gender,
		pq.Array(&product.Tags),
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return types.Product{}, err
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}
	return product, nil
}

// WithTx runs fn with a writer bound to a dedicated transaction.
func (r *ProductRepository) WithTx(ctx context.Context, fn func(ctx context.Context, w ProductWriter) error) error {
	return withTx(ctx, r.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, productTx{tx: tx})
	})
}

// List returns products with their images in insertion order. A limit of 0 means no limit.
func (r *ProductRepository) List(ctx context.Context, offset, limit int) ([]types.Product, error) {
	if offset < 0 {
		offset = 0
	}
	const query = selectProduct + `
		ORDER BY seq
		OFFSET $1
		LIMIT NULLIF($2, 0)`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]types.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachImages(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (types.Product, error) {
	const query = selectProduct + `
		WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByTitleOrSlug matches the upper-cased title or the lower-cased slug exactly.
func (r *ProductRepository) GetByTitleOrSlug(ctx context.Context, upperTitle, lowerSlug string) (types.Product, error) {
	const query = selectProduct + `
		WHERE UPPER(title) = $1 OR slug = $2
		ORDER BY seq
		LIMIT 1`
	return r.getOne(ctx, query, upperTitle, lowerSlug)
}

func (r *ProductRepository) getOne(ctx context.Context, query string, args ...any) (types.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}

	images, err := listImages(ctx, r.db, product.ID)
	if err != nil {
		return types.Product{}, err
	}
	product.Images = images
	return product, nil
}

// Create inserts the product and its images in one transaction.
func (r *ProductRepository) Create(ctx context.Context, product types.Product, imageURLs []string) (types.Product, error) {
	var created types.Product
	err := r.WithTx(ctx, func(ctx context.Context, w ProductWriter) error {
		inserted, err := w.Insert(ctx, product)
		if err != nil {
			return err
		}
		images, err := w.InsertImages(ctx, inserted.ID, imageURLs)
		if err != nil {
			return err
		}
		inserted.Images = images
		created = inserted
		return nil
	})
	if err != nil {
		return types.Product{}, err
	}
	return created, nil
}

// Delete removes the product's images and the product row in one transaction.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(ctx context.Context, w ProductWriter) error {
		if err := w.DeleteImages(ctx, id); err != nil {
			return err
		}
		return w.Delete(ctx, id)
	})
}

func (r *ProductRepository) attachImages(ctx context.Context, products []types.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, 0, len(products))
	index := make(map[string]int, len(products))
	for i := range products {
		ids = append(ids, products[i].ID)
		index[products[i].ID] = i
		products[i].Images = []types.ProductImage{}
	}

	const query = `
		SELECT id, url, product_id
		FROM product_images
		WHERE product_id = ANY($1)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var image types.ProductImage
		if err := rows.Scan(&image.ID, &image.URL, &image.ProductID); err != nil {
			return err
		}
		if i, ok := index[image.ProductID]; ok {
			products[i].Images = append(products[i].Images, image)
		}
	}
	return rows.Err()
}

func listImages(ctx context.Context, q queryer, productID string) ([]types.ProductImage, error) {
	const query = `
		SELECT id, url, product_id
		FROM product_images
		WHERE product_id = $1
		ORDER BY id`
	rows, err := q.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make([]types.ProductImage, 0)
	for rows.Next() {
		var image types.ProductImage
		if err := rows.Scan(&image.ID, &image.URL, &image.ProductID); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return images, nil
}

// productTx implements ProductWriter on top of a single transaction.
type productTx struct {
	tx *sql.Tx
}

func (p productTx) GetForUpdate(ctx context.Context, id string) (types.Product, error) {
	const query = selectProduct + `
		WHERE id = $1
		FOR UPDATE`
	product, err := scanProduct(p.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	return product, nil
}

func (p productTx) Insert(ctx context.Context, product types.Product) (types.Product, error) {
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	if product.Tags == nil {
		product.Tags = []string{}
	}

	const query = `
		INSERT INTO products (id, title, price, description, slug, stock, sizes, gender, tags, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)`
	if _, err := p.tx.ExecContext(
		ctx,
		query,
		product.ID,
		product.Title,
		product.Price,
		product.Description,
		product.Slug,
		product.Stock,
		pq.Array(product.Sizes),
		product.Gender,
		pq.Array(product.Tags),
		product.CreatedAt,
		product.UpdatedAt,
	); err != nil {
		return types.Product{}, mapWriteError(err)
	}
	return product, nil
}

func (p productTx) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now().UTC()
	if product.Tags == nil {
		product.Tags = []string{}
	}

	const query = `
		UPDATE products
		SET title = $1,
			price = $2,
			description = NULLIF($3, ''),
			slug = $4,
			stock = $5,
			sizes = $6,
			gender = $7,
			tags = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := p.tx.ExecContext(
		ctx,
		query,
		product.Title,
		product.Price,
		product.Description,
		product.Slug,
		product.Stock,
		pq.Array(product.Sizes),
		product.Gender,
		pq.Array(product.Tags),
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return types.Product{}, mapWriteError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Product{}, err
	}
	if affected == 0 {
		return types.Product{}, ErrNotFound
	}
	return product, nil
}

func (p productTx) Delete(ctx context.Context, id string) error {
	result, err := p.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p productTx) ListImages(ctx context.Context, productID string) ([]types.ProductImage, error) {
	return listImages(ctx, p.tx, productID)
}

func (p productTx) DeleteImages(ctx context.Context, productID string) error {
	_, err := p.tx.ExecContext(ctx, `DELETE FROM product_images WHERE product_id = $1`, productID)
	return err
}

// InsertImages inserts one row per URL in input order. Duplicate URLs are kept.
func (p productTx) InsertImages(ctx context.Context, productID string, urls []string) ([]types.ProductImage, error) {
	images := make([]types.ProductImage, 0, len(urls))
	const query = `
		INSERT INTO product_images (url, product_id)
		VALUES ($1, $2)
		RETURNING id`
	for _, url := range urls {
		image := types.ProductImage{URL: url, ProductID: productID}
		if err := p.tx.QueryRowContext(ctx, query, url, productID).Scan(&image.ID); err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, nil
}
