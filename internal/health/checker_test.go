package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puntos-app/puntos/internal/app/store"
	"github.com/puntos-app/puntos/internal/infra/sqlite"
)

func newTestDB(t *testing.T) (*sqlite.DB, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dir
}

func statusOf(t *testing.T, c *Checker, name string) Status {
	t.Helper()
	for _, s := range c.Statuses() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("check %q not found in statuses", name)
	return Status{}
}

// ─── Checker Tests ──────────────────────────────────────────────────────────

func TestNewChecker(t *testing.T) {
	db, dir := newTestDB(t)

	if c := NewChecker(db, dir, nil); len(c.checks) != 2 {
		t.Errorf("checks = %d, want 2", len(c.checks))
	}
	if c := NewChecker(db, dir, store.New(db)); len(c.checks) != 3 {
		t.Errorf("checks with profiles = %d, want 3", len(c.checks))
	}
}

func TestChecker_RunAllHealthy(t *testing.T) {
	db, dir := newTestDB(t)

	c := NewChecker(db, dir, store.New(db))
	statuses := c.RunOnce(context.Background())
	if len(statuses) != 3 {
		t.Fatalf("Statuses() = %d, want 3", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Errorf("check %q should be healthy, got error: %s", s.Name, s.Error)
		}
	}
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true when all checks pass")
	}
}

func TestChecker_IsHealthy_BeforeRun(t *testing.T) {
	db, dir := newTestDB(t)
	c := NewChecker(db, dir, nil)

	// No statuses before the first run, so IsHealthy is vacuously true.
	if !c.IsHealthy() {
		t.Error("IsHealthy() should be true before first run (no statuses)")
	}
}

func TestChecker_StorageClosed(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	db.Close()

	c := NewChecker(db, dir, nil)
	c.runAll(context.Background())
	if statusOf(t, c, "storage").Healthy {
		t.Error("storage check should fail on a closed database")
	}
	if c.IsHealthy() {
		t.Error("IsHealthy() should be false")
	}
}

func TestChecker_DataDirRecreated(t *testing.T) {
	db, _ := newTestDB(t)
	dataDir := filepath.Join(t.TempDir(), "gone")

	c := NewChecker(db, dataDir, nil)
	c.runAll(context.Background())
	if statusOf(t, c, "data_dir").Healthy {
		t.Error("data_dir should fail when missing")
	}
	// Recovery created it; the next pass is healthy.
	c.runAll(context.Background())
	if !statusOf(t, c, "data_dir").Healthy {
		t.Error("data_dir should be healthy after recovery")
	}
}

func TestChecker_DataDirIsFile(t *testing.T) {
	db, _ := newTestDB(t)
	path := filepath.Join(t.TempDir(), "data")
	os.WriteFile(path, []byte("not a dir"), 0644)

	c := NewChecker(db, path, nil)
	c.runAll(context.Background())
	if statusOf(t, c, "data_dir").Healthy {
		t.Error("data_dir should fail when path is a file")
	}
}

func TestChecker_ProfileIntegrity(t *testing.T) {
	db, dir := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveProfile(ctx, "broken", []byte(`{"userId":"broken","points":7}`), 1, 0); err != nil {
		t.Fatal(err)
	}

	c := NewChecker(db, dir, store.New(db))
	c.runAll(ctx)
	s := statusOf(t, c, "profile_integrity")
	if s.Healthy {
		t.Error("profile_integrity should fail with a corrupt document")
	}
	if s.Error == "" {
		t.Error("error message should name the corrupt profile")
	}
}

func TestChecker_ConcurrentRunsAreSerialized(t *testing.T) {
	db, dir := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveProfile(ctx, "broken", []byte(`{"userId":"broken","points":7}`), 1, 0); err != nil {
		t.Fatal(err)
	}

	var inflight, peak atomic.Int32
	c := NewChecker(db, dir, store.New(db))
	c.checks = append(c.checks, Check{
		Name: "overlap",
		CheckFn: func(ctx context.Context) error {
			n := inflight.Add(1)
			defer inflight.Add(-1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			return nil
		},
	})

	runCtx, cancel := context.WithCancel(ctx)
	go c.Run(runCtx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, s := range c.RunOnce(ctx) {
				if s.Name == "profile_integrity" && s.Healthy {
					t.Error("profile_integrity passed with a corrupt document")
				}
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got != 1 {
		t.Errorf("%d check passes overlapped, want 1 at a time", got)
	}
}

func TestChecker_CustomCheck(t *testing.T) {
	c := &Checker{
		checks: []Check{
			{
				Name: "always_pass",
				CheckFn: func(ctx context.Context) error {
					return nil
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if !statuses[0].Healthy {
		t.Error("always_pass check should be healthy")
	}
}

func TestChecker_FailingCheckRecovers(t *testing.T) {
	recovered := false
	c := &Checker{
		checks: []Check{
			{
				Name: "always_fail",
				CheckFn: func(ctx context.Context) error {
					return os.ErrPermission
				},
				RecoverFn: func(ctx context.Context) error {
					recovered = true
					return errors.New("still broken")
				},
			},
		},
	}

	c.runAll(context.Background())

	statuses := c.Statuses()
	if statuses[0].Healthy {
		t.Error("always_fail check should not be healthy")
	}
	if statuses[0].Error == "" {
		t.Error("failing check should carry an error message")
	}
	if !recovered {
		t.Error("RecoverFn should run after a failure")
	}
}
