package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shorttrack/apiserver/config"
	"github.com/shorttrack/apiserver/internal/auth"
	"github.com/shorttrack/apiserver/internal/db"
	"github.com/shorttrack/apiserver/internal/delivery"
	"github.com/shorttrack/apiserver/internal/handlers"
	"github.com/shorttrack/apiserver/internal/mq"
	"github.com/shorttrack/apiserver/internal/ratelimit"
	"github.com/shorttrack/apiserver/internal/services"
	"github.com/shorttrack/apiserver/internal/storage"
	"github.com/shorttrack/apiserver/internal/store"
	log "github.com/sirupsen/logrus"
)

const (
	redisPingTimeout = 3 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	closers    []func() error
}

// New wires every dependency from cfg and registers the routes.
func New(ctx context.Context, cfg config.Config) (srv *Server, err error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	s := &Server{}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, dbConn.Close)

	gateway, err := s.buildGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiter, err := s.buildLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exports, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open object storage: %w", err)
	}

	authority := newAuthority(dbConn, gateway, cfg)

	linkRepo := store.NewLinkRepository(dbConn)
	linkService := services.NewLinkService(linkRepo, cfg.Auth.PublicBase)
	analyticsService := services.NewAnalyticsService(linkRepo, store.NewVisitRepository(dbConn), exports)

	s.router = newRouter(authority, linkService, analyticsService, limiter)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func newAuthority(dbConn *sql.DB, gateway auth.Gateway, cfg config.Config) *auth.Authority {
	return auth.New(
		store.NewUserRepository(dbConn),
		store.NewVerificationCodeRepository(dbConn),
		store.NewTxManager(dbConn),
		gateway,
		auth.NewJWTIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		auth.Options{
			PublicBase: cfg.Auth.PublicBase,
			TOTPIssuer: cfg.Auth.TOTPIssuer,
		},
	)
}

func newRouter(
	authority handlers.AuthService,
	links *services.LinkService,
	analytics *services.AnalyticsService,
	limiter ratelimit.Limiter,
) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/health", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authority)
	})
	router.Route("/api/links", func(r chi.Router) {
		handlers.LinkRouter(r, links, analytics, handlers.RequireAuth(authority))
	})
	handlers.RedirectRouter(router, links, analytics, limiter)
	return router
}

// buildGateway sends inline through SMTP and Twilio, or through the
// message queue when one is configured.
func (s *Server) buildGateway(ctx context.Context, cfg config.Config) (*delivery.Gateway, error) {
	mailer, sms, err := delivery.Channels(cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		s.closers = append(s.closers, queue.Close)
		mailer, sms = delivery.Queued(mailer, sms, queue, cfg.MQ.DeliveryTopic)
		log.Infof("delivery queued through %s", cfg.MQ.Backend)
	}

	if mailer == nil {
		log.Warn("email delivery not configured, codes will be returned in responses")
	}
	if sms == nil {
		log.Warn("sms delivery not configured, codes will be returned in responses")
	}
	return delivery.NewGateway(mailer, sms), nil
}

// buildLimiter prefers Redis so limits hold across replicas. Outside
// production an unreachable Redis falls back to memory.
func (s *Server) buildLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, error) {
	limit, window := cfg.RateLimit.Limit, cfg.RateLimit.Window
	if limit <= 0 {
		log.Warn("redirect rate limiting disabled")
		return nil, nil
	}
	if cfg.Redis.Addr == "" {
		return ratelimit.NewMemory(limit, window), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		if cfg.Env != "production" {
			log.WithError(err).Warn("redis rate limiter unavailable, falling back to memory")
			return ratelimit.NewMemory(limit, window), nil
		}
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.closers = append(s.closers, client.Close)
	return ratelimit.NewRedisLimiter(client, limit, window, ""), nil
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	log.Infof("listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then releases every connection.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.WithError(err).Warn("failed to close resource")
		}
	}
	s.closers = nil
}
