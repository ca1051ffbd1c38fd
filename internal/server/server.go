// Package server orchestrates all components: plugin registry, dispatcher, COMMS
// subscription, optional audit database and the HTTP endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/plugin-registry/internal/config"
	"github.com/morezero/plugin-registry/pkg/bootstrap"
	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/db"
	"github.com/morezero/plugin-registry/pkg/dispatcher"
	"github.com/morezero/plugin-registry/pkg/events"
)

const logPrefix = "server:server"

// Server is the plugind orchestrator.
type Server struct {
	cfg      *config.Config
	disp     *dispatcher.Dispatcher
	manifest *bootstrap.ResolvedManifest

	// Optional probes reported by /health. Nil means the dependency is not in use.
	commsCheck func() bool
	dbCheck    func(ctx context.Context) error

	// events feeds GET /events; nil disables the stream.
	events *events.Broadcaster
}

// New creates a Server around an already-built dispatcher.
func New(cfg *config.Config, disp *dispatcher.Dispatcher, manifest *bootstrap.ResolvedManifest) *Server {
	return &Server{cfg: cfg, disp: disp, manifest: manifest}
}

// Handler returns the HTTP handler serving health, discovery, invocation and pages.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

func (s *Server) title() string {
	if s.manifest != nil && s.manifest.Name() != "" {
		return "plugind (" + s.manifest.Name() + ")"
	}
	return "plugind"
}

func (s *Server) version() string {
	if s.manifest != nil && s.manifest.Version() != "" {
		return s.manifest.Version()
	}
	return "0.0.0"
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting plugind", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Load the plugin manifest and build the registry. Registration errors are fatal.
	manifest, err := LoadManifest(cfg)
	if err != nil {
		return err
	}
	reg, err := BuildRegistry(manifest)
	if err != nil {
		return fmt.Errorf("%s - registry build failed: %w", logPrefix, err)
	}

	// Step 2: Connect to COMMS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}
	defer nc.Close()

	// Step 3: Optional audit database
	var pool *pgxpool.Pool
	if cfg.AuditEnabled() {
		pool, err = openAuditDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Step 4: Event publishers and dispatcher
	invokedSubject := cfg.InvokedEventSubject
	if invokedSubject == "" {
		invokedSubject = manifest.GlobalInvokedSubject()
	}
	broadcaster := events.NewBroadcaster(cfg.EventStreamBuffer)
	publishers := events.MultiPublisher{
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{InvokedSubject: invokedSubject}),
		broadcaster,
	}
	if pool != nil {
		publishers = append(publishers, db.NewRepository(pool))
	}
	disp := NewDispatcher(cfg, reg, manifest, publishers)

	s := New(cfg, disp, manifest)
	s.events = broadcaster
	s.commsCheck = nc.IsConnected
	if pool != nil {
		s.dbCheck = pool.Ping
	}

	// Step 5: Subscribe to the invoke subject
	invokeSubject := cfg.InvokeSubject
	if invokeSubject == "" {
		invokeSubject = commsutil.SubjectInvoke
	}
	handler := newRequestHandler(ctx, disp, cfg.RequestTimeout, cfg.MaxInFlight)
	sub, err := handler.subscribe(nc, invokeSubject)
	if err != nil {
		return err
	}

	// Step 6: Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - plugind is ready (%d operations, invoke subject %s, events %s)", logPrefix, reg.Len(), invokeSubject, invokedSubject))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Stop intake before waiting on in-flight invocations.
	if err := sub.Unsubscribe(); err != nil {
		slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", logPrefix, err))
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+cfg.CancelGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	handler.wait()
	if err := disp.Flush(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - %v", logPrefix, err))
	}
	if err := nc.Drain(); err != nil {
		slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// openAuditDB connects to DATABASE_URL and applies migrations when RUN_MIGRATIONS is set.
func openAuditDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.RunMigrations {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return pool, nil
}
