// Package server orchestrates all components: NATS client, storage, registry, sessions, transport, HTTP status.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/hybrid-bridge/internal/config"
	"github.com/morezero/hybrid-bridge/pkg/capabilities/storage"
	"github.com/morezero/hybrid-bridge/pkg/commsutil"
	"github.com/morezero/hybrid-bridge/pkg/db"
	"github.com/morezero/hybrid-bridge/pkg/dispatcher"
	"github.com/morezero/hybrid-bridge/pkg/lifecycle"
	"github.com/morezero/hybrid-bridge/pkg/manifest"
	"github.com/morezero/hybrid-bridge/pkg/registry"
	"github.com/morezero/hybrid-bridge/pkg/session"
	"github.com/morezero/hybrid-bridge/pkg/thread"
	"github.com/morezero/hybrid-bridge/pkg/transport"
)

const logPrefix = "server:server"

const (
	purgeInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

// Server is the hybrid-bridge orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	registry   *registry.Service
	manager    *session.Manager
	threads    *thread.Dispatcher
	stats      *callStats

	commsConnected  func() bool
	commsReconnects atomic.Int64
	// dbPing is nil when storage is in memory.
	dbPing func(ctx context.Context) error
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	setupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting hybrid-bridge", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, tracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to flush traces: %v", logPrefix, err))
		}
	}()

	s := &Server{cfg: cfg, stats: newCallStats()}

	// Step 1: Load manifest
	m, err := manifest.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Manifest %s@%s (%d thread policies, %d mocks, mocks enabled=%v)",
		logPrefix, m.Name, m.Version, len(m.Threads), len(m.Mocks), cfg.MockEnabled))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(commsutil.ConnectParams{
		URL:           cfg.COMMSURL,
		Name:          cfg.COMMSName,
		MaxReconnects: cfg.COMMSMaxReconnects,
		OnReconnect:   func() { s.commsReconnects.Add(1) },
	})
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc
	s.commsConnected = nc.IsConnected
	defer nc.Close()

	// Step 3: Storage backend
	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	if s.pool != nil {
		defer s.pool.Close()
	}

	// Step 4: Registry and built-in capabilities
	s.registry = registry.NewService(registry.NewServiceParams{})
	if _, err := storage.Register(s.registry, store); err != nil {
		return fmt.Errorf("%s - failed to register storage capability: %w", logPrefix, err)
	}

	// Step 5: Execution contexts
	s.threads = thread.NewDispatcher(thread.Options{
		UIQueueSize:     cfg.UIQueueSize,
		WorkerCount:     cfg.WorkerCount,
		WorkerQueueSize: cfg.WorkerQueueSize,
		DefaultThread:   cfg.DefaultThreadType(),
	})
	if err := s.threads.Start(); err != nil {
		return fmt.Errorf("%s - failed to start threads: %w", logPrefix, err)
	}

	// Step 6: Dispatcher and sessions
	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Threads: s.threads})
	s.manager = session.NewManager(session.NewManagerParams{
		Registry:    s.registry,
		Observers:   s.observers(tracing),
		ReleaseHook: disp.FlushCloseCalls,
	})
	s.manager.AddInitListener(m.InitListener(cfg.MockEnabled))

	// Step 7: Transport
	adapter := transport.NewAdapter(transport.NewAdapterParams{
		Conn:           nc,
		Manager:        s.manager,
		Dispatcher:     disp,
		SubjectPrefix:  cfg.SubjectPrefix,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err := adapter.Start(); err != nil {
		s.threads.Stop(ctx)
		return fmt.Errorf("%s - failed to start transport: %w", logPrefix, err)
	}

	// Step 8: HTTP status server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP status server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Hybrid-bridge is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Sessions close before the threads stop so their close calls still run.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	adapter.Stop()
	closed := s.manager.CloseAll(shutdownCtx)
	slog.Info(fmt.Sprintf("%s - Closed %d sessions", logPrefix, closed))
	s.httpServer.Shutdown(shutdownCtx)
	if err := s.threads.Stop(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}
	cancel()
	nc.Drain()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// openStore returns the Postgres-backed store when DATABASE_URL is set, else an in-memory one.
func (s *Server) openStore(ctx context.Context) (storage.Store, error) {
	if s.cfg.DatabaseURL == "" {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, storage is in memory", logPrefix))
		return storage.NewMemoryStore(), nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrations(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	s.pool = pool
	s.dbPing = pool.Ping
	kv := db.NewKVStore(pool)
	go purgeLoop(ctx, kv)
	return kv, nil
}

func purgeLoop(ctx context.Context, kv *db.KVStore) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := kv.PurgeExpired(ctx)
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
				continue
			}
			if n > 0 {
				slog.Debug(fmt.Sprintf("%s - Purged %d expired storage items", logPrefix, n))
			}
		}
	}
}

// observers are shared by every session, in notification order.
func (s *Server) observers(tracing bool) []lifecycle.Observer {
	obs := []lifecycle.Observer{
		lifecycle.NewTiming(logSlowCall),
		lifecycle.NewMonitorObserver(s.stats),
	}
	if tracing {
		obs = append(obs, lifecycle.NewTraceObserver(nil))
	}
	if s.cfg.LogPhases {
		obs = append(obs, lifecycle.LogObserver{})
	}
	return obs
}
