package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/nerrad567/familytree-core/internal/audit"
	"github.com/nerrad567/familytree-core/internal/auth"
	"github.com/nerrad567/familytree-core/internal/family"
	"github.com/nerrad567/familytree-core/internal/infrastructure/config"
	"github.com/nerrad567/familytree-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// AuditLister reads the stored audit trail.
type AuditLister interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger
	DB        HealthChecker
	Auth      *auth.Authenticator
	Lifecycle *auth.Lifecycle
	TokenTTL  time.Duration
	Families  *family.Service
	AuditLog  AuditLister    // optional: enables /families/{id}/activity
	Audit     audit.Recorder // optional
	Version   string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	db        HealthChecker
	auth      *auth.Authenticator
	lifecycle *auth.Lifecycle
	tokenTTL  time.Duration
	families  *family.Service
	auditLog  AuditLister
	audit     audit.Recorder
	limiter   *ipLimiter
	version   string
	server    *http.Server

	trustedProxies []netip.Prefix
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, authenticator, lifecycle, families)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("session lifecycle is required")
	}
	if deps.Families == nil {
		return nil, fmt.Errorf("family service is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		db:        deps.DB,
		auth:      deps.Auth,
		lifecycle: deps.Lifecycle,
		tokenTTL:  deps.TokenTTL,
		families:  deps.Families,
		auditLog:  deps.AuditLog,
		audit:     deps.Audit,
		version:   deps.Version,
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = auth.DefaultTokenTTL
	}
	if s.audit == nil {
		s.audit = audit.Discard
	}
	if deps.RateLimit.Enabled {
		s.limiter = newIPLimiter(deps.RateLimit)
	}
	trusted, err := parseTrustedProxies(deps.Config.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parsing api.trusted_proxies: %w", err)
	}
	s.trustedProxies = trusted

	return s, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: Currently always nil; listener errors are logged
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
