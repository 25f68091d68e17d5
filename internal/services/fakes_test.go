package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/storefront/apiserver/internal/logging"
	"github.com/storefront/apiserver/internal/store"
	"github.com/storefront/apiserver/types"
)

var errInjected = errors.New("injected failure")

var testLog = logging.Discard()

type fakeUserRepo struct {
	mu    sync.Mutex
	users []types.User
	tick  time.Time
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{tick: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *fakeUserRepo) now() *time.Time {
	r.tick = r.tick.Add(time.Second)
	t := r.tick
	return &t
}

func (r *fakeUserRepo) find(match func(types.User) bool) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			u.Roles = slices.Clone(u.Roles)
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.ID == id })
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	return r.find(func(u types.User) bool { return u.Email == email })
}

func (r *fakeUserRepo) ListActive(_ context.Context, offset, limit int) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]types.User, 0)
	for _, u := range r.users {
		if u.Active {
			active = append(active, u)
		}
	}
	return page(active, offset, limit), nil
}

func (r *fakeUserRepo) Create(_ context.Context, user types.User, role types.Role) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.CreatedAt = r.now()
	user.UpdatedAt = user.CreatedAt
	user.Roles = []string{role.Name}
	r.users = append(r.users, user)
	return user, nil
}

func (r *fakeUserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, u := range r.users {
		if u.ID == user.ID {
			idx = i
		} else if u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	if idx < 0 {
		return types.User{}, store.ErrNotFound
	}
	user.UpdatedAt = r.now()
	r.users[idx] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID == id {
			r.users = slices.Delete(r.users, i, i+1)
			return nil
		}
	}
	return store.ErrNotFound
}

// setRoles replaces the user's roles, standing in for direct role grants.
func (r *fakeUserRepo) setRoles(id string, roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.users {
		if r.users[i].ID == id {
			r.users[i].Roles = roles
		}
	}
}

type fakeRoleRepo struct {
	roles map[string]types.Role
}

func newFakeRoleRepo(names ...string) *fakeRoleRepo {
	roles := make(map[string]types.Role, len(names))
	for i, name := range names {
		roles[name] = types.Role{ID: i + 1, Name: name}
	}
	return &fakeRoleRepo{roles: roles}
}

func (r *fakeRoleRepo) GetByName(_ context.Context, name string) (types.Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return types.Role{}, store.ErrNotFound
	}
	return role, nil
}

// fakeProductRepo keeps products and images in memory. WithTx snapshots the
// state and restores it when the callback fails, like a real rollback.
type fakeProductRepo struct {
	mu          sync.Mutex
	products    []types.Product
	images      []types.ProductImage
	nextImageID int64
	tick        time.Time

	// failStep makes the writer method with this name fail inside a transaction.
	failStep string
	txCount  int
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{tick: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (r *fakeProductRepo) List(_ context.Context, offset, limit int) ([]types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Product, 0, len(r.products))
	for _, p := range r.products {
		p.Images = r.imagesOf(p.ID)
		out = append(out, p)
	}
	return page(out, offset, limit), nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id string) (types.Product, error) {
	return r.getOne(func(p types.Product) bool { return p.ID == id })
}

func (r *fakeProductRepo) GetByTitleOrSlug(_ context.Context, upperTitle, lowerSlug string) (types.Product, error) {
	return r.getOne(func(p types.Product) bool {
		return strings.ToUpper(p.Title) == upperTitle || p.Slug == lowerSlug
	})
}

func (r *fakeProductRepo) getOne(match func(types.Product) bool) (types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if match(p) {
			p.Images = r.imagesOf(p.ID)
			return p, nil
		}
	}
	return types.Product{}, store.ErrNotFound
}

func (r *fakeProductRepo) Create(ctx context.Context, product types.Product, imageURLs []string) (types.Product, error) {
	var created types.Product
	err := r.WithTx(ctx, func(ctx context.Context, w store.ProductWriter) error {
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
	return created, err
}

func (r *fakeProductRepo) Delete(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(ctx context.Context, w store.ProductWriter) error {
		if err := w.DeleteImages(ctx, id); err != nil {
			return err
		}
		return w.Delete(ctx, id)
	})
}

func (r *fakeProductRepo) WithTx(ctx context.Context, fn func(ctx context.Context, w store.ProductWriter) error) error {
	r.mu.Lock()
	r.txCount++
	snapshotProducts := cloneProducts(r.products)
	snapshotImages := slices.Clone(r.images)
	snapshotNextID := r.nextImageID
	r.mu.Unlock()

	if err := fn(ctx, &fakeProductWriter{repo: r}); err != nil {
		r.mu.Lock()
		r.products = snapshotProducts
		r.images = snapshotImages
		r.nextImageID = snapshotNextID
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *fakeProductRepo) imagesOf(productID string) []types.ProductImage {
	out := make([]types.ProductImage, 0)
	for _, img := range r.images {
		if img.ProductID == productID {
			out = append(out, img)
		}
	}
	return out
}

func (r *fakeProductRepo) snapshot(id string) (types.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.ID == id {
			p.Images = r.imagesOf(id)
			return p, true
		}
	}
	return types.Product{}, false
}

type fakeProductWriter struct {
	repo *fakeProductRepo
}

func (w *fakeProductWriter) fail(step string) error {
	if w.repo.failStep == step {
		return errInjected
	}
	return nil
}

func (w *fakeProductWriter) GetForUpdate(_ context.Context, id string) (types.Product, error) {
	if err := w.fail("GetForUpdate"); err != nil {
		return types.Product{}, err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	for _, p := range w.repo.products {
		if p.ID == id {
			p.Sizes = slices.Clone(p.Sizes)
			p.Tags = slices.Clone(p.Tags)
			return p, nil
		}
	}
	return types.Product{}, store.ErrNotFound
}

func (w *fakeProductWriter) Insert(_ context.Context, product types.Product) (types.Product, error) {
	if err := w.fail("Insert"); err != nil {
		return types.Product{}, err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	for _, p := range w.repo.products {
		if p.Title == product.Title || p.Slug == product.Slug {
			return types.Product{}, store.ErrConflict
		}
	}
	w.repo.tick = w.repo.tick.Add(time.Second)
	product.CreatedAt = w.repo.tick
	product.UpdatedAt = w.repo.tick
	product.Images = nil
	w.repo.products = append(w.repo.products, product)
	return product, nil
}

func (w *fakeProductWriter) Update(_ context.Context, product types.Product) (types.Product, error) {
	if err := w.fail("Update"); err != nil {
		return types.Product{}, err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	idx := -1
	for i, p := range w.repo.products {
		if p.ID == product.ID {
			idx = i
		} else if p.Title == product.Title || p.Slug == product.Slug {
			return types.Product{}, store.ErrConflict
		}
	}
	if idx < 0 {
		return types.Product{}, store.ErrNotFound
	}
	w.repo.tick = w.repo.tick.Add(time.Second)
	product.UpdatedAt = w.repo.tick
	product.Images = nil
	w.repo.products[idx] = product
	return product, nil
}

func (w *fakeProductWriter) Delete(_ context.Context, id string) error {
	if err := w.fail("Delete"); err != nil {
		return err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	for i, p := range w.repo.products {
		if p.ID == id {
			w.repo.products = slices.Delete(w.repo.products, i, i+1)
			return nil
		}
	}
	return store.ErrNotFound
}

func (w *fakeProductWriter) ListImages(_ context.Context, productID string) ([]types.ProductImage, error) {
	if err := w.fail("ListImages"); err != nil {
		return nil, err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	return w.repo.imagesOf(productID), nil
}

func (w *fakeProductWriter) DeleteImages(_ context.Context, productID string) error {
	if err := w.fail("DeleteImages"); err != nil {
		return err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	w.repo.images = slices.DeleteFunc(w.repo.images, func(img types.ProductImage) bool {
		return img.ProductID == productID
	})
	return nil
}

func (w *fakeProductWriter) InsertImages(_ context.Context, productID string, urls []string) ([]types.ProductImage, error) {
	if err := w.fail("InsertImages"); err != nil {
		return nil, err
	}
	w.repo.mu.Lock()
	defer w.repo.mu.Unlock()
	inserted := make([]types.ProductImage, 0, len(urls))
	for _, url := range urls {
		w.repo.nextImageID++
		img := types.ProductImage{ID: w.repo.nextImageID, URL: url, ProductID: productID}
		w.repo.images = append(w.repo.images, img)
		inserted = append(inserted, img)
	}
	return inserted, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []types.Event
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, event types.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "id", nil
}

func (p *fakePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeCache struct {
	mu       sync.Mutex
	items    map[string]types.Product
	versions map[string]int64
	deletes  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]types.Product{}, versions: map[string]int64{}}
}

func (c *fakeCache) Get(_ context.Context, id string) (types.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	return p, ok, nil
}

func (c *fakeCache) Version(_ context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[id], nil
}

func (c *fakeCache) SetIfVersion(_ context.Context, product types.Product, version int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[product.ID] != version {
		return false, nil
	}
	c.items[product.ID] = product
	return true, nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	c.versions[id]++
	c.deletes = append(c.deletes, id)
	return nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneProducts(products []types.Product) []types.Product {
	out := make([]types.Product, len(products))
	for i, p := range products {
		p.Sizes = slices.Clone(p.Sizes)
		p.Tags = slices.Clone(p.Tags)
		out[i] = p
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
