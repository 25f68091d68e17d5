package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/logging"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/types"
)

var testLog = logging.Discard()

const (
	adminToken = "admin-token"
	userToken  = "user-token"
	ownerToken = "owner-token"
)

type stubAuth struct {
	users map[string]types.User
}

func newStubAuth() *stubAuth {
	return &stubAuth{users: map[string]types.User{
		adminToken: {ID: "11111111-1111-4111-8111-111111111111", Email: "admin@example.com", Active: true, Roles: []string{types.RoleAdmin, types.RoleUser}},
		userToken:  {ID: "22222222-2222-4222-8222-222222222222", Email: "user@example.com", Active: true, Roles: []string{types.RoleUser}},
		ownerToken: {ID: "33333333-3333-4333-8333-333333333333", Email: "owner@example.com", Active: true, Roles: []string{types.RoleOwner}},
	}}
}

func (s *stubAuth) Verify(_ context.Context, token string) (types.User, error) {
	user, ok := s.users[token]
	if !ok {
		return types.User{}, apperr.Authentication("token not valid")
	}
	return user, nil
}

func (s *stubAuth) SignUp(_ context.Context, in services.CreateUserInput) (types.AuthResult, error) {
	return types.AuthResult{
		AuthToken: types.AuthToken{AccessToken: "new-token", TokenType: "Bearer", ExpiresIn: 3600},
		User:      types.User{ID: "44444444-4444-4444-8444-444444444444", Email: in.Email, Active: true, Roles: []string{types.RoleUser}},
	}, nil
}

func (s *stubAuth) SignIn(_ context.Context, in services.SignInInput) (types.AuthResult, error) {
	if in.Password != "Abc123" {
		return types.AuthResult{}, apperr.Authentication("invalid credentials")
	}
	return types.AuthResult{AuthToken: types.AuthToken{AccessToken: "token", TokenType: "Bearer", ExpiresIn: 3600}}, nil
}

func (s *stubAuth) Profile(_ context.Context, id string) (types.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, apperr.NotFound("user %q not found", id)
}

type stubUsers struct {
	removed []string
}

func (s *stubUsers) Create(_ context.Context, in services.CreateUserInput) (types.User, error) {
	return types.User{ID: "55555555-5555-4555-8555-555555555555", Email: in.Email}, nil
}

func (s *stubUsers) List(_ context.Context, limit, offset int) ([]types.User, error) {
	return []types.User{{ID: "a"}, {ID: "b"}}, nil
}

func (s *stubUsers) FindByIdentity(_ context.Context, idOrEmail string, _ bool) (types.User, error) {
	if idOrEmail == "user@example.com" {
		return types.User{ID: "22222222-2222-4222-8222-222222222222", Email: idOrEmail}, nil
	}
	return types.User{}, apperr.NotFound("user %q not found", idOrEmail)
}

func (s *stubUsers) Update(_ context.Context, id string, in services.UpdateUserInput) (types.User, error) {
	return types.User{ID: id}, nil
}

func (s *stubUsers) Remove(_ context.Context, id string) error {
	s.removed = append(s.removed, id)
	return nil
}

type stubProducts struct {
	created []services.CreateProductInput
	updated []services.UpdateProductInput
	limit   int
	offset  int
	err     error
}

func (s *stubProducts) Create(_ context.Context, in services.CreateProductInput) (types.Product, error) {
	if s.err != nil {
		return types.Product{}, s.err
	}
	s.created = append(s.created, in)
	return types.Product{ID: "66666666-6666-4666-8666-666666666666", Title: in.Title}, nil
}

func (s *stubProducts) List(_ context.Context, limit, offset int) ([]types.Product, error) {
	s.limit, s.offset = limit, offset
	return []types.Product{}, nil
}

func (s *stubProducts) Find(_ context.Context, term string) (types.Product, error) {
	if term == "classic-tee" {
		return types.Product{ID: "66666666-6666-4666-8666-666666666666", Slug: term}, nil
	}
	return types.Product{}, apperr.NotFound("product with term %q not found", term)
}

func (s *stubProducts) Update(_ context.Context, id string, in services.UpdateProductInput) (types.Product, error) {
	s.updated = append(s.updated, in)
	return types.Product{ID: id}, nil
}

func (s *stubProducts) Remove(_ context.Context, id string) error {
	return s.err
}

type stubFiles struct {
	filename string
	data     []byte
}

func (s *stubFiles) UploadProductImage(_ context.Context, filename string, data []byte) (types.UploadedFile, error) {
	s.filename, s.data = filename, data
	return types.UploadedFile{SecureURL: "http://localhost/api/files/product/abc.png", Key: "products/abc.png"}, nil
}

func (s *stubFiles) OpenProductImage(_ context.Context, name string) (io.ReadCloser, string, error) {
	if name != "abc.png" {
		return nil, "", apperr.NotFound("file %q not found", name)
	}
	return io.NopCloser(strings.NewReader("png-bytes")), "image/png", nil
}

type testAPI struct {
	router   chi.Router
	users    *stubUsers
	products *stubProducts
	files    *stubFiles
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	authAPI := newStubAuth()
	api := &testAPI{
		users:    &stubUsers{},
		products: &stubProducts{},
		files:    &stubFiles{},
	}

	routes := Routes(
		NewAuthHandler(authAPI, testLog),
		NewUserHandler(api.users, testLog),
		NewProductHandler(api.products, testLog),
		NewFileHandler(api.files, testLog),
	)
	router := chi.NewRouter()
	router.Use(RequestLogger(testLog))
	router.Route("/api", func(r chi.Router) {
		Mount(r, routes, authAPI, testLog)
	})
	api.router = router
	return api
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestRouteAccess(t *testing.T) {
	api := newTestAPI(t)
	product := map[string]any{"title": "Classic Tee", "price": 10, "sizes": []string{"M"}, "gender": "male"}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{name: "public product list", method: http.MethodGet, path: "/api/products", want: http.StatusOK},
		{name: "public product lookup", method: http.MethodGet, path: "/api/products/classic-tee", want: http.StatusOK},
		{name: "public user lookup", method: http.MethodGet, path: "/api/users/user@example.com", want: http.StatusOK},
		{name: "create without token", method: http.MethodPost, path: "/api/products", body: product, want: http.StatusUnauthorized},
		{name: "create with bad token", method: http.MethodPost, path: "/api/products", token: "forged", body: product, want: http.StatusUnauthorized},
		{name: "create as user", method: http.MethodPost, path: "/api/products", token: userToken, body: product, want: http.StatusForbidden},
		{name: "create as admin", method: http.MethodPost, path: "/api/products", token: adminToken, body: product, want: http.StatusCreated},
		{name: "list users as admin", method: http.MethodGet, path: "/api/users", token: adminToken, want: http.StatusForbidden},
		{name: "list users as owner", method: http.MethodGet, path: "/api/users", token: ownerToken, want: http.StatusOK},
		{name: "profile as user", method: http.MethodGet, path: "/api/auth/profile", token: userToken, want: http.StatusForbidden},
		{name: "profile as admin", method: http.MethodGet, path: "/api/auth/profile", token: adminToken, want: http.StatusOK},
		{name: "delete user as admin", method: http.MethodDelete, path: "/api/users/22222222-2222-4222-8222-222222222222", token: adminToken, want: http.StatusNoContent},
		{name: "delete product as admin", method: http.MethodDelete, path: "/api/products/66666666-6666-4666-8666-666666666666", token: adminToken, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAuthenticationFailuresShareMessage(t *testing.T) {
	api := newTestAPI(t)

	headers := map[string]string{
		"missing":      "",
		"wrong scheme": "Basic dXNlcjpwYXNz",
		"empty bearer": "Bearer ",
		"forged token": "Bearer forged",
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			api.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if msg := decodeErrorBody(t, rec); msg != "token not valid" {
				t.Fatalf("unexpected message %q", msg)
			}
		})
	}
}

func TestSignInHandler(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/auth/sign-in", "", map[string]string{"email": "user@example.com", "password": "Abc123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result types.AuthResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.AccessToken != "token" || result.TokenType != "Bearer" {
		t.Fatalf("unexpected result: %+v", result)
	}

	rec = api.do(t, http.MethodPost, "/api/auth/sign-in", "", map[string]string{"email": "user@example.com", "password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if msg := decodeErrorBody(t, rec); msg != "invalid credentials" {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = api.do(t, http.MethodPost, "/api/auth/sign-up", "", map[string]string{"email": "new@example.com", "password": "Abc123", "firstName": "New"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/products", adminToken, `{"title":"Classic Tee","sizes":["M"],"gender":"male","isAdmin":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decodeErrorBody(t, rec); msg != "property isAdmin should not exist" {
		t.Fatalf("unexpected message %q", msg)
	}
	if len(api.products.created) != 0 {
		t.Fatalf("request with unknown field reached the service")
	}

	for _, body := range []string{"", "{", `{"title":"a"}{"title":"b"}`} {
		rec := api.do(t, http.MethodPost, "/api/products", adminToken, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestUpdateProductDistinguishesAbsentImages(t *testing.T) {
	api := newTestAPI(t)
	path := "/api/products/66666666-6666-4666-8666-666666666666"

	if rec := api.do(t, http.MethodPatch, path, adminToken, `{"price":12.5}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPatch, path, adminToken, `{"images":[]}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if len(api.products.updated) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(api.products.updated))
	}
	first, second := api.products.updated[0], api.products.updated[1]
	if first.Images != nil || first.Price == nil || *first.Price != 12.5 {
		t.Fatalf("unexpected first patch: %+v", first)
	}
	if second.Images == nil || len(*second.Images) != 0 {
		t.Fatalf("empty images list was not preserved: %+v", second)
	}
}

func TestPaginationParams(t *testing.T) {
	api := newTestAPI(t)

	if rec := api.do(t, http.MethodGet, "/api/products?limit=5&offset=10", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if api.products.limit != 5 || api.products.offset != 10 {
		t.Fatalf("unexpected page %d/%d", api.products.limit, api.products.offset)
	}

	if rec := api.do(t, http.MethodGet, "/api/products", "", nil); rec.Code != http.StatusOK || api.products.limit != 0 {
		t.Fatalf("absent limit should mean no limit, got %d (status %d)", api.products.limit, rec.Code)
	}

	for _, query := range []string{"limit=0", "limit=-1", "limit=abc", "offset=-1"} {
		if rec := api.do(t, http.MethodGet, "/api/products?"+query, "", nil); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
		msg  string
	}{
		{err: apperr.Validation("bad"), want: http.StatusBadRequest, msg: "bad"},
		{err: apperr.NotFound("missing"), want: http.StatusNotFound, msg: "missing"},
		{err: apperr.Authentication("who"), want: http.StatusUnauthorized, msg: "who"},
		{err: apperr.Authorization("no"), want: http.StatusForbidden, msg: "no"},
		{err: apperr.Conflict("dup"), want: http.StatusConflict, msg: "dup"},
		{err: apperr.Persistence(errors.New("pq: boom"), "failed to save"), want: http.StatusInternalServerError, msg: "failed to save"},
		{err: errors.New("raw detail"), want: http.StatusInternalServerError, msg: "internal server error"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeAppError(rec, testLog, tt.err)
		if rec.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
		if msg := decodeErrorBody(t, rec); msg != tt.msg {
			t.Fatalf("%v: expected message %q, got %q", tt.err, tt.msg, msg)
		}
	}
}

func TestProductImageUploadAndDownload(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "shirt.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("image-data"))
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/product", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if api.files.filename != "shirt.png" || string(api.files.data) != "image-data" {
		t.Fatalf("unexpected upload: %q %q", api.files.filename, api.files.data)
	}
	var uploaded types.UploadedFile
	if err := json.NewDecoder(rec.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if uploaded.SecureURL == "" || uploaded.Key != "products/abc.png" {
		t.Fatalf("unexpected response: %+v", uploaded)
	}

	rec = api.do(t, http.MethodGet, "/api/files/product/abc.png", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected download: %d %q %q", rec.Code, rec.Body.String(), rec.Header().Get("Content-Type"))
	}

	if rec := api.do(t, http.MethodGet, "/api/files/product/missing.png", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	api := newTestAPI(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	_ = form.WriteField("name", "value")
	_ = form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files/product", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz(stubPinger{})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	Healthz(stubPinger{err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
