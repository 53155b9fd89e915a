// Package server wires the checkout engine together and runs the HTTP server.
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
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/purrify/checkout-engine/internal/checkout"
	"github.com/purrify/checkout-engine/internal/config"
	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/logging"
	"github.com/purrify/checkout-engine/internal/metrics"
	"github.com/purrify/checkout-engine/internal/order"
	"github.com/purrify/checkout-engine/internal/payments"
	"github.com/purrify/checkout-engine/internal/ratelimit"
	"github.com/purrify/checkout-engine/internal/risk"
	"github.com/purrify/checkout-engine/internal/security"
	"github.com/purrify/checkout-engine/internal/token"
	"github.com/purrify/checkout-engine/internal/validation"
	"github.com/purrify/checkout-engine/internal/velocity"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg         *config.Config
	codec       *token.Codec
	orders      order.Repository
	engine      *risk.Engine
	processor   payments.Processor
	limiter     ratelimit.Limiter
	memLimiter  *ratelimit.MemoryLimiter // non-nil when using in-memory limiting
	eventLogger *events.Logger
	feed        *events.Feed
	db          *sql.DB       // nil if using in-memory
	redisClient *redis.Client // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	cancelRun   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProcessor sets a custom payment processor (for testing).
func WithProcessor(p payments.Processor) Option {
	return func(s *Server) {
		s.processor = p
	}
}

// WithOrders sets a custom order repository (for testing).
func WithOrders(r order.Repository) Option {
	return func(s *Server) {
		s.orders = r
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set processor/orders/logger)
	for _, opt := range opts {
		opt(s)
	}

	s.codec = token.NewCodec(cfg.TokenSecret, cfg.TokenMaxAge)

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
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
		if s.orders == nil {
			s.orders = order.NewPostgresStore(db)
		}
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		if s.orders == nil {
			s.orders = order.NewMemoryStore()
		}
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Counters and rate limiting: Redis when REDIS_URL is set.
	var counter velocity.Counter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		s.redisClient = redis.NewClient(redisOpts)
		if err := s.redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		counter = velocity.NewRedisCounter(s.redisClient)
		rl := ratelimit.NewRedisLimiter(s.redisClient)
		rl.FailOpen = cfg.LimiterFailOpen
		s.limiter = rl
		s.logger.Info("using Redis for velocity counters and rate limiting")
	} else {
		counter = velocity.NewMemoryCounter()
		s.memLimiter = ratelimit.NewMemoryLimiter()
		s.limiter = s.memLimiter
		s.logger.Info("using in-memory velocity counters and rate limiting")
	}

	// Risk engine with audit store matching the main storage backend.
	var riskStore risk.Store
	if s.db != nil {
		riskStore = risk.NewPostgresStore(s.db)
	} else {
		riskStore = risk.NewMemoryStore()
	}
	s.engine = risk.NewEngine(risk.DefaultConfig(), counter, riskStore)
	s.logger.Info("risk engine enabled")

	// Payment processor: Stripe when a key is configured.
	if s.processor == nil {
		if cfg.StripeAPIKey != "" {
			s.processor = payments.NewStripeProcessor(cfg.StripeAPIKey)
			s.logger.Info("stripe checkout sessions enabled")
		} else {
			s.processor = payments.NewStaticProcessor()
			s.logger.Warn("no STRIPE_API_KEY set, using static payment sessions")
		}
	}

	// Security event trail + live feed.
	var eventStore events.Store
	if s.db != nil {
		eventStore = events.NewPostgresStore(s.db)
	} else {
		eventStore = events.NewMemoryStore()
	}
	s.feed = events.NewFeed(s.logger)
	s.eventLogger = events.NewLogger(eventStore, s.feed, s.logger)
	s.logger.Info("security event logging enabled")

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging.
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
			"error": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins in development - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

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

	guard := order.Guard{MaxAge: s.cfg.OrderMaxAge}
	svc := checkout.NewService(s.codec, s.orders, guard, s.processor, s.eventLogger, s.cfg.SuccessURL, s.cfg.CancelURL)
	handler := checkout.NewHandler(svc, s.engine, s.eventLogger)

	sensitive := ratelimit.Class{Name: "sensitive", Limit: s.cfg.SensitiveLimit, Window: time.Minute}
	standard := ratelimit.Class{Name: "default", Limit: s.cfg.DefaultLimit, Window: time.Minute}

	v1 := s.router.Group("/v1")
	v1.Use(ratelimit.Middleware(s.limiter, standard, s.eventLogger))

	// Checkout and risk scoring share the tighter sensitive class; both are
	// brute-forceable surfaces.
	protected := v1.Group("")
	protected.Use(ratelimit.Middleware(s.limiter, sensitive, s.eventLogger))
	handler.RegisterRoutes(protected)

	// Live security-event feed for fraud dashboards.
	v1.GET("/events/feed", func(c *gin.Context) {
		s.feed.HandleWebSocket(c.Writer, c.Request)
	})
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			checks["redis"] = "unhealthy"
		} else {
			checks["redis"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
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

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

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

	// Live feed hub
	go s.feed.Run(runCtx)

	// DB pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Stop background goroutines (feed hub, stats collector)
	if s.cancelRun != nil {
		s.cancelRun()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Drain queued security events before closing stores
	if s.eventLogger != nil {
		s.eventLogger.Close()
		s.logger.Info("event logger drained")
	}

	// Stop the in-memory limiter's cleanup goroutine
	if s.memLimiter != nil {
		s.memLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		} else {
			s.logger.Info("redis connection closed")
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

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
