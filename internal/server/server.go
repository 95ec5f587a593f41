package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/WalletKit/bridge/internal/api/http"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/api/middleware"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/api/ws"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/engine"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/frames"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/httpclient"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/storage"
)

const pageEndpoint = "/ws/page"

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	engine   *engine.Engine
	store    storage.Store
	registry *frames.Registry
	hub      *frames.Hub
	pages    *ws.Handler
	tracer   *tracing.Tracer
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics

	closeOnce sync.Once
}

// Option adjusts server construction
type Option func(*options)

type options struct {
	logger *logging.Logger
	bundle string
}

// WithLogger replaces the logger built from the configuration
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBundle supplies the bundle source instead of reading Engine.BundlePath
func WithBundle(source string) Option {
	return func(o *options) { o.bundle = source }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development)
	}

	logger.Info("Initializing WalletKit bridge",
		zap.String("addr", cfg.Server.Address()),
		zap.String("network", cfg.Engine.Network),
		zap.String("bundle", cfg.Engine.BundlePath),
	)

	bundle := o.bundle
	if bundle == "" && cfg.Engine.BundlePath != "" {
		data, err := os.ReadFile(cfg.Engine.BundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read bundle: %w", err)
		}
		bundle = string(data)
	}

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("bridge", logger.Named("tracing"))

	store, err := openStore(cfg.Storage)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	client := httpclient.New(httpclient.OptionsFromConfig(cfg.HTTP))

	eng := engine.New(engine.ConfigFrom(cfg),
		engine.WithLogger(logger.Named("engine")),
		engine.WithMetrics(metrics),
		engine.WithStore(store),
		engine.WithHTTPClient(client),
		engine.WithBundle(bundle),
	)

	registry := frames.NewRegistry()
	registry.OnChange(metrics.SetSessionBindings)
	hub := frames.NewHub(registry, logger.Named("frames"))
	eng.AddListener(hub)

	pages := ws.NewHandler(eng, registry, ws.Options{
		Metrics:        metrics,
		Logger:         logger.Named("frames"),
		RequestTimeout: cfg.Frames.RequestTimeout.Std(),
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}

	handlers := apihttp.NewHandlers(apihttp.Options{
		Engine:       eng,
		Client:       client,
		Registry:     registry,
		Metrics:      metrics,
		Logger:       logger.Named("http"),
		WSEndpoint:   pageEndpoint,
		ProxyEnabled: cfg.Frames.ProxyEnabled,
		MaxPageBytes: cfg.Frames.MaxPageBytes,
	})

	// Register routes
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET(pageEndpoint, pages.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		engine:   eng,
		store:    store,
		registry: registry,
		hub:      hub,
		pages:    pages,
		tracer:   tracer,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Path == "" {
		return storage.NewMemoryStore(), nil
	}
	store, err := storage.OpenFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, nil
}

// Handler returns the HTTP handler with every route mounted
func (s *Server) Handler() http.Handler {
	return s.router
}

// Engine returns the wallet engine
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Warmup initializes the engine ahead of the first call. Without a bundle
// there is nothing to load and the engine stays lazy.
func (s *Server) Warmup(ctx context.Context) error {
	if err := s.engine.Initialize(ctx); err != nil {
		if errors.Is(err, engine.ErrNoBundle) {
			s.logger.Warn("No bundle configured; wallet calls will fail until one is provided")
			return nil
		}
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	if info, ok := s.engine.Ready(); ok {
		s.logger.Info("Engine ready",
			zap.String("network", info.Network),
			zap.String("version", info.Version))
	}
	return nil
}

// Run serves on the configured address until ctx is cancelled, then
// shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Address())
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// hijacked page sockets are not tracked by Shutdown
	s.pages.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

// Close releases every resource. It is safe to call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Shutting down server...")

		s.pages.Close()
		s.engine.RemoveListener(s.hub)
		s.engine.Destroy()

		if closer, ok := s.store.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				s.logger.Error("Failed to close storage", zap.Error(cerr))
				err = fmt.Errorf("failed to close storage: %w", cerr)
			}
		}

		s.tracer.Close()
		s.logger.Sync()
	})
	return err
}
