// Package app wires the studio explorer together: row source, fetch
// orchestrator, views and the HTTP and gRPC servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	grpcapi "github.com/arkilian/studio/internal/api/grpc"
	httpapi "github.com/arkilian/studio/internal/api/http"
	"github.com/arkilian/studio/internal/config"
	"github.com/arkilian/studio/internal/events"
	"github.com/arkilian/studio/internal/fetch"
	"github.com/arkilian/studio/internal/observability"
	"github.com/arkilian/studio/internal/server"
	"github.com/arkilian/studio/internal/source"
	"github.com/arkilian/studio/internal/views"
)

const (
	// usageWindow is how long an unused usage entry is kept.
	usageWindow = 24 * time.Hour
	// usagePruneInterval is how often expired usage entries are dropped.
	usagePruneInterval = 10 * time.Minute
)

// App manages the studio service lifecycle.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	// Shared resources, set by Open
	source       source.Source
	orchestrator *fetch.Orchestrator
	registry     *views.Registry
	usage        *observability.UsageStats
	events       *events.Bus
	shutdown     *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	mu      sync.Mutex
	opened  bool
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates cfg and builds the view registry. No I/O happens until Open.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry, err := views.NewRegistry(cfg.Views)
	if err != nil {
		return nil, fmt.Errorf("invalid views: %w", err)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		usage:    observability.NewUsageStats(usageWindow),
		events:   events.NewBus(256),
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig(), logger),
	}, nil
}

// Open creates directories, opens the row source and builds the orchestrator.
// It is called by Start; commands that only read views call it directly.
func (a *App) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.opened {
		return nil
	}

	if err := a.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	src, err := source.Open(ctx, a.cfg.Source, a.logger.Named("source"))
	if err != nil {
		return fmt.Errorf("failed to open %s source: %w", a.cfg.Source.Type, err)
	}
	a.source = src
	a.shutdown.RegisterCloser("source", src)

	a.orchestrator = fetch.New(src,
		fetch.WithTTL(a.cfg.Cache.TTL),
		fetch.WithMaxEntries(a.cfg.Cache.MaxEntries),
		fetch.WithKeepPartialRows(a.cfg.Cache.KeepPartialRows),
		fetch.WithStats(&observability.CacheStats{}),
		fetch.WithLogger(a.logger.Named("fetch")),
		fetch.WithEvents(a.events),
	)
	a.opened = true

	a.logger.Info("source opened",
		zap.String("type", a.cfg.Source.Type),
		zap.Duration("cache_ttl", a.cfg.Cache.TTL),
		zap.Int("cache_max_entries", a.cfg.Cache.MaxEntries),
		zap.Strings("views", a.registry.Names()))
	return nil
}

// Start opens shared resources and starts the HTTP server, plus the gRPC row
// service when enabled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if err := a.Open(ctx); err != nil {
		a.cleanup()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.startHTTP(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	sub := a.events.Subscribe("app-log")
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.pruneUsage(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.logEvents(ctx, sub)
	}()

	a.logger.Info("studio started")
	return nil
}

func (a *App) startHTTP() error {
	handler := httpapi.NewViewsHandler(a.registry, a.orchestrator, a.usage, a.logger.Named("http"))
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(a.logger.Named("http")),
	)

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.httpListener = ln
	a.httpServer = &http.Server{
		Handler:      middleware(handler),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser{Server: a.httpServer})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}
	a.grpcListener = ln
	a.grpcServer = grpc.NewServer()
	grpcapi.RegisterRowSourceServer(a.grpcServer, grpcapi.NewServer(a.source, a.logger.Named("grpc")))

	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("gRPC server listening", zap.String("addr", ln.Addr().String()))
		if err := a.grpcServer.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.logger.Error("gRPC server error", zap.Error(err))
		}
	}()
	return nil
}

func (a *App) pruneUsage(ctx context.Context) {
	ticker := time.NewTicker(usagePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.usage.Prune()
		}
	}
}

// logEvents logs cache events until ctx is done.
func (a *App) logEvents(ctx context.Context, sub *events.Subscriber) {
	defer a.events.Unsubscribe(sub.ID)
	logger := a.logger.Named("cache")
	for {
		select {
		case <-ctx.Done():
			if n := sub.Dropped(); n > 0 {
				logger.Warn("cache events dropped", zap.Int("count", n))
			}
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			logger.Info("cache event",
				zap.Stringer("type", ev.Type),
				zap.String("batch", ev.Batch),
				zap.Strings("failed", ev.Failed),
				zap.Time("at", ev.Timestamp))
		}
	}
}

// Events returns the cache event bus.
func (a *App) Events() *events.Bus { return a.events }

// Stop gracefully stops the servers and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return a.Close()
	}
	a.running = false
	a.mu.Unlock()

	a.logger.Info("initiating graceful shutdown")
	if a.cancel != nil {
		a.cancel()
	}
	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.logger.Info("studio stopped")
	return err
}

// Close releases resources opened by Open without starting servers.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background(), "closed")
}

// cleanup releases resources after a failed Start.
func (a *App) cleanup() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.shutdown.Shutdown(context.Background(), "start failed"); err != nil {
		a.logger.Warn("cleanup failed", zap.Error(err))
	}
	a.wg.Wait()
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// WaitForShutdown blocks until a shutdown signal is received or ctx is done.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Load loads a view's batch through the orchestrator.
func (a *App) Load(ctx context.Context, view string, forceRefresh bool) (*views.View, *fetch.Payload, error) {
	v, err := a.registry.Get(view)
	if err != nil {
		return nil, nil, err
	}
	if a.orchestrator == nil {
		return v, fetch.EmptyPayload(v.Batch), fmt.Errorf("app is not open")
	}
	p, err := a.orchestrator.Load(ctx, v.Batch, forceRefresh)
	return v, p, err
}

// Registry returns the configured views.
func (a *App) Registry() *views.Registry { return a.registry }

// Orchestrator returns the fetch orchestrator, or nil before Open.
func (a *App) Orchestrator() *fetch.Orchestrator { return a.orchestrator }

// Usage returns the view usage tracker.
func (a *App) Usage() *observability.UsageStats { return a.usage }

// HTTPAddr returns the bound HTTP address, or "" before Start.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is not serving.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}
