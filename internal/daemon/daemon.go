package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/puntos-app/puntos/internal/api"
	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/app/store"
	"github.com/puntos-app/puntos/internal/domain"
	"github.com/puntos-app/puntos/internal/health"
	"github.com/puntos-app/puntos/internal/infra/postgres"
	"github.com/puntos-app/puntos/internal/infra/sqlite"
)

// Daemon is the puntos runtime. It wires together all services.
type Daemon struct {
	Config Config
	Repo   domain.ProfileRepository // nil with the memory driver
	Store  *store.Store
	Engine *gamification.Engine
	Server *api.Server
	Health *health.Checker

	logFile *os.File
	cancel  context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, _ := cfg.Location()
	seeds, _ := cfg.ChallengeTemplates()

	repo, err := openRepository(cfg.Storage)
	if err != nil {
		return nil, err
	}

	st := store.New(repo)

	retry := gamification.DefaultRetryConfig()
	retry.MaxRetries = cfg.Engine.ConflictRetries
	if retry.MaxRetries == 0 {
		retry.MaxRetries = -1
	}

	eng := gamification.NewEngine(st, gamification.Options{
		Challenges: seeds,
		Location:   loc,
		Retry:      retry,
	})

	srv := api.NewServer(eng, st)

	// Enable Prometheus /metrics if configured
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	var checker *health.Checker
	switch {
	case repo == nil:
		checker = health.NewChecker(st, "", nil)
	case cfg.Storage.Driver == DriverSQLite:
		checker = health.NewChecker(repo, cfg.Storage.Dir, st)
	default:
		checker = health.NewChecker(repo, "", st)
	}
	srv.SetHealth(checker)

	return &Daemon{
		Config: cfg,
		Repo:   repo,
		Store:  st,
		Engine: eng,
		Server: srv,
		Health: checker,
	}, nil
}

// openRepository connects the configured storage driver. The memory
// driver returns a nil repository.
func openRepository(cfg StorageConfig) (domain.ProfileRepository, error) {
	switch cfg.Driver {
	case DriverSQLite:
		db, err := sqlite.Open(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	case DriverPostgres:
		db, err := postgres.Connect(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return db, nil
	case DriverMemory:
		log.Printf("[daemon] WARNING: memory storage, profiles are lost on exit")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// SetupLogging applies the [logging] section to the standard logger.
// Output goes to stderr and, when configured, to the log file.
func (d *Daemon) SetupLogging() error {
	if d.Config.Logging.Level == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	if d.Config.Logging.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.Config.Logging.File), 0700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(d.Config.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	d.logFile = f
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	// Health checker (always runs)
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     d.Server.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}
		log.Printf("[daemon] shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Printf("puntos serving on http://%s\n", addr)
	fmt.Printf("  Storage: %s\n", d.Config.Storage.Driver)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Repo != nil {
		_ = d.Repo.Close()
	}
	if d.logFile != nil {
		log.SetOutput(os.Stderr)
		_ = d.logFile.Close()
	}
}
