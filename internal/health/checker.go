// Package health provides periodic health checks with auto-recovery.
// Results are served on /health and exported as puntos_health_check_status.
package health

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
	"github.com/puntos-app/puntos/internal/infra/metrics"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is any storage backend that can report connectivity.
type Pinger interface {
	Ping() error
}

// ProfileSource lists and loads profiles for the integrity scan.
// Implemented by store.Store.
type ProfileSource interface {
	UserIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Evict(userID string)
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	// pass serializes runs; a RecoverFn sees the state its own CheckFn left.
	pass sync.Mutex

	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
}

// MaxScanned caps how many profiles one integrity pass decodes.
const MaxScanned = 200

// NewChecker creates a checker for the storage backend, the data directory
// and the stored profile documents. profiles may be nil.
func NewChecker(storage Pinger, dataDir string, profiles ProfileSource) *Checker {
	checks := []Check{
		{
			Name: "storage",
			CheckFn: func(ctx context.Context) error {
				return storage.Ping()
			},
		},
		{
			Name: "data_dir",
			CheckFn: func(ctx context.Context) error {
				return checkDataDir(dataDir)
			},
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(dataDir, 0700)
			},
		},
	}
	if profiles != nil {
		var corrupt []string
		checks = append(checks, Check{
			Name: "profile_integrity",
			CheckFn: func(ctx context.Context) error {
				ids, err := scanProfiles(ctx, profiles, MaxScanned)
				corrupt = ids
				return err
			},
			// The engine resets a corrupt profile on its next access;
			// dropping the cache makes that access reread storage.
			RecoverFn: func(ctx context.Context) error {
				for _, id := range corrupt {
					profiles.Evict(id)
				}
				return nil
			},
		})
	}
	return &Checker{
		interval: 60 * time.Second,
		checks:   checks,
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.runAll(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runAll(ctx)
		}
	}
}

func (c *Checker) runAll(ctx context.Context) {
	c.pass.Lock()
	defer c.pass.Unlock()

	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{
			Name:      check.Name,
			CheckedAt: time.Now(),
		}
		if err := check.CheckFn(ctx); err != nil {
			s.Healthy = false
			s.Error = err.Error()
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
			log.Printf("[health] %s: %v", check.Name, err)
			// Attempt recovery
			if check.RecoverFn != nil {
				metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
				if rerr := check.RecoverFn(ctx); rerr != nil {
					log.Printf("[health] %s recovery failed: %v", check.Name, rerr)
				}
			}
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

// RunOnce runs every check synchronously and returns the results.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.runAll(ctx)
	return c.Statuses()
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	if dir == "" {
		return nil // memory storage
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}

	tmp, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	name := tmp.Name()
	tmp.Close()
	return os.Remove(filepath.Clean(name))
}

// scanProfiles decodes up to limit stored profiles and reports the ids that
// fail validation.
func scanProfiles(ctx context.Context, src ProfileSource, limit int) ([]string, error) {
	ids, err := src.UserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	var corrupt []string
	for _, id := range ids {
		// Always decode from storage, not the cache.
		src.Evict(id)
		if _, err := src.Get(ctx, id); errors.Is(err, domain.ErrCorruptState) {
			corrupt = append(corrupt, id)
		}
	}
	if len(corrupt) > 0 {
		return corrupt, fmt.Errorf("%d corrupt profile(s), first %s", len(corrupt), corrupt[0])
	}
	return nil, nil
}
