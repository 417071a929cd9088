package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"subs_engine/internal/auth"
	cfg "subs_engine/internal/config"
	"subs_engine/internal/gateways/http/mw"
	"subs_engine/internal/usecase"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"

	defaultShutdownTimeout = 5 * time.Second
)

// UseCases bundles the use cases reachable from HTTP handlers.
type UseCases struct {
	Sub *usecase.Subscription
}

// Server serves the subscription API until its context is cancelled.
type Server struct {
	host            string
	port            uint16
	shutdownTimeout time.Duration
	router          *gin.Engine
	log             *slog.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithHost sets the listen host.
func WithHost(host string) Option {
	return func(s *Server) {
		if host != "" {
			s.host = host
		}
	}
}

// WithPort sets the listen port. Port 0 keeps the default.
func WithPort(port uint16) Option {
	return func(s *Server) {
		if port != 0 {
			s.port = port
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTimeout sets the graceful shutdown timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// New builds the router from the config and applies options.
func New(useCases UseCases, conf cfg.Config, log *slog.Logger, options ...Option) (*Server, error) {
	router, err := SetupGin(conf, useCases, log)
	if err != nil {
		return nil, err
	}
	s := &Server{
		host:            "localhost",
		port:            8080,
		router:          router,
		log:             log,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range options {
		o(s)
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return s, nil
}

// SetupGin picks the gin mode for the environment, installs middleware and registers routes.
// It fails when the token secret is unusable.
func SetupGin(conf cfg.Config, useCases UseCases, log *slog.Logger) (*gin.Engine, error) {
	tokens, err := auth.NewJWTManager(conf.Auth.JWTSecret, conf.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("setup auth: %w", err)
	}

	switch conf.Env {
	case envLocal, envDev:
		gin.SetMode(gin.DebugMode)
	case envProd:
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		mw.RequestID(),
		mw.RecoveryWithSlog(log),
		mw.GinSlog(log),
	)

	origins := conf.Server.CORSOrigins
	if len(origins) == 0 {
		origins = defaultOrigins(conf.Server)
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", mw.RequestIDHeader},
		ExposeHeaders:    []string{mw.RequestIDHeader},
		AllowCredentials: true,
	}))

	setupRouter(r, useCases, tokens, RateLimit{RPS: conf.RateLimit.RPS, Burst: conf.RateLimit.Burst})
	return r, nil
}

// defaultOrigins allows the API's own address when no CORS origins are configured.
func defaultOrigins(sc cfg.ServerConfig) []string {
	host := sc.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := sc.Port
	if port == 0 {
		port = 8080
	}
	hp := net.JoinHostPort(host, strconv.Itoa(port))
	return []string{"http://" + hp, "https://" + hp}
}

// Run listens on the configured address and blocks until ctx is done or serving fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(int(s.port))))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.shutdownTimeout,
	}

	s.mu.Lock()
	s.srv, s.listener = srv, ln
	s.mu.Unlock()

	served := make(chan error, 1)
	go func() {
		s.log.Info("http server started", slog.String("addr", ln.Addr().String()))
		served <- srv.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if err := s.Close(); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	<-served
	s.log.Info("server shutdown complete")
	return nil
}

// Addr reports the bound address once Run is listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close shuts the server down, waiting up to the shutdown timeout for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
