// Package httpapi exposes the orchestrator over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentmux/internal/domain"
	"agentmux/internal/infra/config"
	"agentmux/internal/infra/middleware"
)

// Service is the orchestration surface the API serves.
type Service interface {
	ProcessQuery(ctx context.Context, query string) domain.Result
	Route(ctx context.Context, query string) (domain.RoutingDecision, string)
	Agents() []domain.AgentDescriptor
	Session(ctx context.Context, id string) (*domain.CollaborationSession, error)
	History(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	Search(ctx context.Context, text string, limit int) ([]domain.SessionSummary, error)
}

// EventSource exposes recent and live events.
type EventSource interface {
	Recent(n int) []domain.Event
	SubscribeAll(handler domain.EventHandler) func()
}

// Option configures a Server.
type Option func(*Server)

// WithEvents enables the event endpoints.
func WithEvents(src EventSource) Option {
	return func(s *Server) { s.events = src }
}

// WithLimiter applies per-client rate limiting.
func WithLimiter(l *middleware.ClientLimiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported by /api/v1/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server serves the HTTP API.
type Server struct {
	svc      Service
	events   EventSource
	cfg      config.ServerConfig
	auth     *tokenAuth
	limiter  *middleware.ClientLimiter
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	version  string
	started  time.Time

	engine    *gin.Engine
	handler   http.Handler
	httpSrv   *http.Server
	boundAddr atomic.Value // string
}

// NewServer builds the router for svc.
func NewServer(svc Service, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		auth:     newTokenAuth(cfg.Tokens),
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		version:  "dev",
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AddAllowHeaders("Authorization")
		engine.Use(cors.New(corsCfg))
	}
	s.engine = engine
	s.routes()

	mws := []func(http.Handler) http.Handler{
		middleware.Recover(s.logger),
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders,
	}
	if s.limiter != nil {
		s.limiter.OnLimit = func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusTooManyRequests, domain.CodeRateLimit, "rate limit exceeded")
		}
		mws = append(mws, s.limiter.Handler)
	}
	s.handler = middleware.Chain(engine, mws...)
	return s
}

func (s *Server) routes() {
	s.engine.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, domain.CodeNotFound, "no such endpoint")
	})
	s.engine.NoMethod(func(c *gin.Context) {
		abortError(c, http.StatusMethodNotAllowed, domain.CodeInvalidInput, "method not allowed")
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api/v1")
	api.GET("/health", s.handleHealth)

	authed := api.Group("", s.auth.middleware())
	authed.POST("/query", s.handleQuery)
	authed.POST("/route", s.handleRoute)
	authed.GET("/agents", s.handleAgents)
	authed.GET("/sessions", s.handleHistory)
	authed.GET("/sessions/:id", s.handleSession)
	if s.events != nil {
		authed.GET("/events", s.handleEvents)
		authed.GET("/events/stream", s.handleEventStream)
	}
}

// Handler returns the root handler with the middleware chain applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("http api listen: %w", err)
	}
	s.boundAddr.Store(listener.Addr().String())
	s.httpSrv = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	s.logger.Info("http api started", "addr", s.BoundAddr())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http api serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the address the server listens on once started.
func (s *Server) BoundAddr() string {
	addr, _ := s.boundAddr.Load().(string)
	return addr
}
