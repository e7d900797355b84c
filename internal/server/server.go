// Package server wires the coinback HTTP service together: storage
// selection, middleware stack, routes, background workers, lifecycle.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/movieboxhq/coinback/internal/abuse"
	"github.com/movieboxhq/coinback/internal/account"
	"github.com/movieboxhq/coinback/internal/admin"
	"github.com/movieboxhq/coinback/internal/auth"
	"github.com/movieboxhq/coinback/internal/behavior"
	"github.com/movieboxhq/coinback/internal/config"
	"github.com/movieboxhq/coinback/internal/faults"
	"github.com/movieboxhq/coinback/internal/logging"
	"github.com/movieboxhq/coinback/internal/metrics"
	"github.com/movieboxhq/coinback/internal/ratelimit"
	"github.com/movieboxhq/coinback/internal/realtime"
	"github.com/movieboxhq/coinback/internal/redeem"
	"github.com/movieboxhq/coinback/internal/reward"
	"github.com/movieboxhq/coinback/internal/security"
	"github.com/movieboxhq/coinback/internal/settings"
	"github.com/movieboxhq/coinback/internal/traces"
	"github.com/movieboxhq/coinback/internal/validation"
)

// Server is the coinback HTTP service.
type Server struct {
	cfg *config.Config

	accounts  account.Store
	settings  settings.Store
	abuse     *abuse.Sink
	redeems   *redeem.Service
	rewards   *reward.Service
	tracker   *behavior.Tracker
	behaviors behavior.Store
	recalc    *behavior.Recalculator
	authMgr   *auth.Manager
	hub       *realtime.Hub

	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx context.CancelFunc
	tracesStop   func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory.
	var (
		authStore   auth.Store
		abuseStore  abuse.Store
		redeemStore redeem.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.accounts = account.NewPostgresStore(db)
		s.settings = settings.NewPostgresStore(db)
		s.behaviors = behavior.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		abuseStore = abuse.NewPostgresStore(db)
		redeemStore = redeem.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.accounts = account.NewMemoryStore()
		s.settings = settings.NewMemoryStore()
		s.behaviors = behavior.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		abuseStore = abuse.NewMemoryStore()
		redeemStore = redeem.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set, using in-memory storage (data is lost on restart)")
	}

	s.authMgr = auth.NewManager(authStore)
	s.hub = realtime.NewHub(s.logger)

	var notifier abuse.Notifier
	if cfg.AbuseWebhookURL != "" {
		notifier = abuse.NewWebhookNotifier(cfg.AbuseWebhookURL, cfg.AbuseWebhookSecret)
		s.logger.Info("abuse webhook notifications enabled")
	}
	s.abuse = abuse.NewSink(abuseStore, notifier, s.hub)

	s.rewards = reward.NewService(s.accounts, s.settings, s.behaviors, s.abuse, s.hub)
	s.redeems = redeem.NewService(s.accounts, redeemStore, s.hub)
	s.recalc = behavior.NewRecalculator(s.accounts, s.behaviors, s.logger, 30*time.Second)
	s.tracker = behavior.NewTracker(s.behaviors, s.recalc)

	// Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   string(faults.Internal),
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	limitCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	rewardHandler := reward.NewHandler(s.rewards)
	redeemHandler := redeem.NewHandler(s.redeems)
	behaviorHandler := behavior.NewHandler(s.tracker)

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	// PROVISIONING (public; returns the session token)
	v1.POST("/users", s.registerUser)

	// USER ROUTES (require session token)
	protected := v1.Group("")
	protected.Use(auth.RequireUser())
	{
		protected.GET("/me", s.meHandler)
		protected.POST("/rewards/grant", rewardHandler.Grant)
		protected.POST("/redeem", redeemHandler.Redeem)
		protected.GET("/redeem", redeemHandler.History)
		protected.POST("/behavior", behaviorHandler.Track)
	}

	// ADMIN ROUTES (require the admin secret)
	adminGroup := v1.Group("")
	adminGroup.Use(auth.RequireAdmin())
	admin.NewHandler(s.accounts, s.settings, s.abuse.Store(), s.redeems).RegisterRoutes(adminGroup)

	// WebSocket event stream for the fraud-ops dashboard
	s.router.GET("/ws/admin", auth.Middleware(s.authMgr), auth.RequireAdmin(), func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
}

// registerUser provisions an account with default zero/safe values and
// issues its session token.
func (s *Server) registerUser(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		UID string `json:"uid"`
	}
	// Body is optional; an empty one gets a generated uid.
	_ = c.ShouldBindJSON(&req)

	if req.UID == "" {
		req.UID = generateRequestID()[:16]
	}
	if !validation.IsValidUID(req.UID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   string(faults.InvalidArgument),
			"message": "uid must be 1-64 characters of [A-Za-z0-9_-]",
		})
		return
	}

	acc := account.NewAccount(req.UID)
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, account.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   string(faults.FailedPrecondition),
				"message": "A user with this uid is already registered",
			})
			return
		}
		s.logger.Error("failed to create account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(faults.Internal),
			"message": "Failed to register user",
		})
		return
	}

	rawToken, tok, err := s.authMgr.IssueToken(ctx, acc.UID)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		// Account was created but token issuance failed.
		c.JSON(http.StatusCreated, gin.H{
			"user":    acc,
			"warning": "User registered but token issuance failed. Retry via support.",
		})
		return
	}

	s.logger.Info("user registered", "uid", acc.UID, "tokenId", tok.ID)

	c.JSON(http.StatusCreated, gin.H{
		"user":    acc,
		"token":   rawToken,
		"tokenId": tok.ID,
		"warning": "Store this token securely. It will not be shown again.",
		"usage":   "Include 'Authorization: Bearer <token>' header in requests.",
	})
}

// meHandler returns the caller's balance and risk state.
func (s *Server) meHandler(c *gin.Context) {
	acc, err := s.accounts.Get(c.Request.Context(), auth.AuthenticatedUser(c))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   string(faults.NotFound),
				"message": "No account for caller.",
			})
			return
		}
		s.logger.Error("failed to load account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(faults.Internal),
			"message": "Internal error.",
		})
		return
	}
	c.JSON(http.StatusOK, acc)
}

// -----------------------------------------------------------------------------
// Health handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if checks["database"] == "unhealthy" {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	if s.cfg.OTLPEndpoint != "" {
		stop, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("tracing init failed", "error", err)
		} else {
			s.tracesStop = stop
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Background workers
	go s.hub.Run(runCtx)
	s.recalc.Start()
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the recalculation worker after in-flight requests drained so
	// late behavior events still get queued.
	s.recalc.Stop()
	s.logger.Info("risk recalculation worker stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
