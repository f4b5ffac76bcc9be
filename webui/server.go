// Package webui serves the HTTP surface of fluxrelay: the generation
// endpoint, the embedded front-end, a health probe and a websocket feed of
// pipeline progress.
package webui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fluxrelay/metrics"
)

// AddressCounter reports the size of the egress pool. *addrpool.Pool
// implements it.
type AddressCounter interface {
	Len() int
}

// StatsSource provides the run statistics served at /stats.
// *metrics.Store implements it.
type StatsSource interface {
	Snapshot() metrics.Snapshot
}

// ServerConfig configures the Server.
type ServerConfig struct {
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RunTimeout bounds one generation run.
	RunTimeout time.Duration

	// RateLimitMax requests per RateLimitWindowMinutes per client; zero
	// disables limiting.
	RateLimitMax           int
	RateLimitWindowMinutes int

	StaticConfig StaticAssetConfig
	Broadcaster  BroadcasterConfig
	LogSkipPaths []string
}

// DefaultServerConfig returns the default configuration. WriteTimeout is
// zero because a generation request legitimately stays open for minutes.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:                   "0.0.0.0:8000",
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           0,
		IdleTimeout:            120 * time.Second,
		RunTimeout:             30 * time.Minute,
		RateLimitMax:           10,
		RateLimitWindowMinutes: 1,
		StaticConfig:           DefaultStaticAssetConfig(),
		Broadcaster:            DefaultBroadcasterConfig(),
		LogSkipPaths:           []string{"/health"},
	}
}

// Server is the HTTP front of the relay.
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	config      ServerConfig
	logger      *zap.Logger
	started     time.Time
	broadcaster *WebSocketBroadcaster
	static      *StaticAssetHandler
	limiter     *RateLimiter
	generator   Generator
	tracker     RunTracker
	pool        AddressCounter
	stats       StatsSource
}

// NewServer wires routes and middleware. tracker and pool may be nil.
func NewServer(config ServerConfig, generator Generator, tracker RunTracker, pool AddressCounter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultServerConfig().RunTimeout
	}

	s := &Server{
		mux:         http.NewServeMux(),
		config:      config,
		logger:      logger,
		started:     time.Now(),
		broadcaster: NewWebSocketBroadcaster(config.Broadcaster, logger.Named("ws")),
		static:      NewStaticAssetHandler(config.StaticConfig),
		generator:   generator,
		tracker:     tracker,
		pool:        pool,
	}
	if config.RateLimitMax > 0 && config.RateLimitWindowMinutes > 0 {
		s.limiter = NewRateLimiter(config.RateLimitMax, config.RateLimitWindowMinutes)
	}
	s.broadcaster.SetStatusProvider(func() InitialData {
		return InitialData{Addresses: s.addressCount(), ActiveRuns: s.activeRuns()}
	})

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("http server created",
		zap.String("addr", config.Addr),
		zap.Bool("rate_limit", s.limiter != nil))
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/generate-image", s.handleGenerateImage)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/ws", s.broadcaster.HandleConnection)
	s.static.RegisterRoutes(s.mux)
	s.mux.HandleFunc("/", s.static.ServeIndex())
}

// Handler returns the routed handler with middleware applied, outermost
// first: logging, CORS, panic recovery.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = Recovery(s.logger)(h)
	h = CORS(h)
	h = NewLoggingMiddleware(s.logger, LoggingMiddlewareConfig{SkipPaths: s.config.LogSkipPaths}).Handler(h)
	return h
}

// Start runs the websocket loop and serves HTTP until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.broadcaster.Start(ctx)
	if s.limiter != nil {
		s.limiter.StartCleanupTicker(ctx, 5*time.Minute)
	}

	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections, waits for handlers until ctx is
// done, and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	s.broadcaster.Close()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	return nil
}

// SetStats installs the source for /stats. Without one /stats is 404.
func (s *Server) SetStats(src StatsSource) {
	s.stats = src
}

// Broadcaster returns the progress feed, to be installed as the pipeline's
// reporter.
func (s *Server) Broadcaster() *WebSocketBroadcaster {
	return s.broadcaster
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

func (s *Server) addressCount() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Len()
}

func (s *Server) activeRuns() int64 {
	if s.tracker == nil {
		return 0
	}
	return s.tracker.ActiveOperations()
}
