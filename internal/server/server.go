package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/internal/auth"
	"github.com/storefront/apiserver/internal/cache"
	"github.com/storefront/apiserver/internal/db"
	"github.com/storefront/apiserver/internal/handlers"
	"github.com/storefront/apiserver/internal/metrics"
	"github.com/storefront/apiserver/internal/mq"
	"github.com/storefront/apiserver/internal/services"
	"github.com/storefront/apiserver/internal/storage"
	"github.com/storefront/apiserver/internal/store"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server, router and the clients it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	cache      *cache.ProductCache
	mq         *mq.MQ
	log        *logrus.Logger
}

// New opens the database and the optional cache, storage and messaging
// backends, then builds services, handlers and the router.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, log: log}
	if err := s.build(ctx, cfg); err != nil {
		s.closeClients()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg config.Config) error {
	var productCache services.ProductCache
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		c, err := cache.NewProductCache(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cache = c
		productCache = c
		s.log.WithField("addr", cfg.Redis.Addr).Info("product cache enabled")
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open object storage: %w", err)
	}

	broker, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return fmt.Errorf("open mq: %w", err)
	}
	var events services.EventPublisher
	if broker != nil {
		s.mq = broker
		events = broker
		s.log.WithFields(logrus.Fields{"backend": cfg.MQ.Backend, "channel": broker.Channel()}).Info("event publishing enabled")
	}

	userRepo := store.NewUserRepository(s.db)
	roleRepo := store.NewRoleRepository(s.db)
	productRepo := store.NewProductRepository(s.db)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := services.NewUserService(userRepo, roleRepo, cfg.Auth.DefaultRole, events, s.log)
	authService := services.NewAuthService(userRepo, userService, tokens, s.log)
	productService := services.NewProductService(productRepo, productCache, events, s.log)

	var fileHandler *handlers.FileHandler
	if objects != nil {
		fileService := services.NewFileService(objects, cfg.Storage.PublicBaseURL, s.log)
		fileHandler = handlers.NewFileHandler(fileService, s.log)
		s.log.WithFields(logrus.Fields{"backend": cfg.Storage.Backend, "bucket": objects.Bucket()}).Info("file uploads enabled")
	}

	metrics.Init()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(s.log),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}),
	)
	router.Get("/healthz", handlers.Healthz(s.db))
	router.Handle("/metrics", metrics.Handler())

	routes := handlers.Routes(
		handlers.NewAuthHandler(authService, s.log),
		handlers.NewUserHandler(userService, s.log),
		handlers.NewProductHandler(productService, s.log),
		fileHandler,
	)
	router.Route("/api", func(r chi.Router) {
		handlers.Mount(r, routes, authService, s.log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 3000
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the database, cache and mq clients.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.closeClients()
	return err
}

func (s *Server) closeClients() {
	if s.mq != nil {
		if err := s.mq.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close mq")
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.WithError(err).Warn("failed to close cache")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
