package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/types"
)

// Route describes one endpoint and who may call it. Public routes skip
// authentication; the others require a valid token and, when Roles is
// non-empty, at least one of those roles.
type Route struct {
	Method  string
	Pattern string
	Public  bool
	Roles   []string
	Handler http.HandlerFunc
}

// Mount registers routes on r, wrapping protected ones with authentication and authorization.
func Mount(r chi.Router, routes []Route, verifier TokenVerifier, log *logrus.Logger) {
	authenticate := Authenticate(verifier, log)
	for _, route := range routes {
		if route.Public {
			r.Method(route.Method, route.Pattern, route.Handler)
			continue
		}
		r.With(authenticate, Authorize(route.Roles, log)).Method(route.Method, route.Pattern, route.Handler)
	}
}

// Routes collects every API route, relative to the /api mount point.
func Routes(authH *AuthHandler, userH *UserHandler, productH *ProductHandler, fileH *FileHandler) []Route {
	admin := []string{types.RoleAdmin}

	routes := []Route{
		{Method: http.MethodPost, Pattern: "/auth/sign-up", Public: true, Handler: authH.SignUp},
		{Method: http.MethodPost, Pattern: "/auth/sign-in", Public: true, Handler: authH.SignIn},
		{Method: http.MethodGet, Pattern: "/auth/profile", Roles: admin, Handler: authH.Profile},

		{Method: http.MethodPost, Pattern: "/users", Roles: admin, Handler: userH.CreateUser},
		{Method: http.MethodGet, Pattern: "/users", Roles: []string{types.RoleOwner}, Handler: userH.ListUsers},
		{Method: http.MethodGet, Pattern: "/users/{id}", Public: true, Handler: userH.GetUser},
		{Method: http.MethodPatch, Pattern: "/users/{id}", Roles: admin, Handler: userH.UpdateUser},
		{Method: http.MethodDelete, Pattern: "/users/{id}", Roles: admin, Handler: userH.DeleteUser},

		{Method: http.MethodPost, Pattern: "/products", Roles: admin, Handler: productH.CreateProduct},
		{Method: http.MethodGet, Pattern: "/products", Public: true, Handler: productH.ListProducts},
		{Method: http.MethodGet, Pattern: "/products/{id}", Public: true, Handler: productH.GetProduct},
		{Method: http.MethodPatch, Pattern: "/products/{id}", Roles: admin, Handler: productH.UpdateProduct},
		{Method: http.MethodDelete, Pattern: "/products/{id}", Roles: admin, Handler: productH.DeleteProduct},
	}

	if fileH != nil {
		routes = append(routes,
			Route{Method: http.MethodPost, Pattern: "/files/product", Roles: admin, Handler: fileH.UploadProductImage},
			Route{Method: http.MethodGet, Pattern: "/files/product/{name}", Public: true, Handler: fileH.GetProductImage},
		)
	}
	return routes
}
