// Package store holds the current profile snapshots and hands them to
// subscribers. Snapshots are replaced wholesale; readers always get a copy.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/domain"
	"github.com/puntos-app/puntos/internal/infra/metrics"
)

// Listener receives a snapshot after every successful Set or Reset.
// It is called synchronously and must not block.
type Listener func(domain.Profile)

// Store implements gamification.ProfileStore over an optional repository.
// With a nil repository it keeps snapshots in memory only.
type Store struct {
	repo domain.ProfileRepository

	mu        sync.RWMutex
	snapshots map[string]domain.Profile

	subMu  sync.Mutex
	nextID int
	subs   map[string]map[int]Listener
}

var _ gamification.ProfileStore = (*Store)(nil)

// New creates a store. repo may be nil.
func New(repo domain.ProfileRepository) *Store {
	return &Store{
		repo:      repo,
		snapshots: make(map[string]domain.Profile),
		subs:      make(map[string]map[int]Listener),
	}
}

// Get returns the current snapshot for userID. With a repository the
// cached copy is served only while its version matches the stored one,
// since other processes may write the same repository.
func (s *Store) Get(ctx context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	p, ok := s.snapshots[userID]
	s.mu.RUnlock()
	if s.repo == nil {
		if !ok {
			return domain.Profile{}, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, userID)
		}
		return p.Clone(), nil
	}
	if ok {
		v, err := s.repo.ProfileVersion(ctx, userID)
		if err != nil {
			return domain.Profile{}, err
		}
		if v == p.Version {
			return p.Clone(), nil
		}
		metrics.CacheRefreshes.Inc()
	}

	doc, err := s.repo.LoadProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			s.Evict(userID)
		}
		return domain.Profile{}, err
	}
	p, err = gamification.DecodeProfile(doc)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("profile %s: %w", userID, err)
	}
	if p.UserID != userID {
		return domain.Profile{}, fmt.Errorf("%w: document for %q stored under %q", domain.ErrCorruptState, p.UserID, userID)
	}

	s.mu.Lock()
	s.snapshots[userID] = p
	s.mu.Unlock()
	return p.Clone(), nil
}

// Set persists p as the successor of the stored snapshot. p.Version must be
// one past the stored version (1 for a new profile).
func (s *Store) Set(ctx context.Context, p domain.Profile) error {
	if p.Version < 1 {
		return fmt.Errorf("%w: version %d", domain.ErrVersionConflict, p.Version)
	}
	return s.write(ctx, p, p.Version-1)
}

// Reset persists p regardless of what is stored.
func (s *Store) Reset(ctx context.Context, p domain.Profile) error {
	return s.write(ctx, p, domain.AnyVersion)
}

func (s *Store) write(ctx context.Context, p domain.Profile, prev int64) error {
	if p.UserID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrProfileNotFound)
	}
	if err := gamification.ValidateProfile(p); err != nil {
		return fmt.Errorf("refusing to store invalid profile: %w", err)
	}
	p = p.Clone()

	if s.repo == nil {
		if err := s.swap(p, prev); err != nil {
			return err
		}
		s.notify(p)
		return nil
	}

	// The repository owns the version check. s.mu is not held across the
	// save; callers serialize writes per user.
	doc, err := gamification.EncodeProfile(p)
	if err != nil {
		return err
	}
	if err := s.repo.SaveProfile(ctx, p.UserID, doc, p.Version, prev); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.Evict(p.UserID)
		}
		return err
	}
	s.mu.Lock()
	s.snapshots[p.UserID] = p
	s.mu.Unlock()

	s.notify(p)
	return nil
}

// swap replaces the in-memory snapshot when the stored version equals prev.
func (s *Store) swap(p domain.Profile, prev int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.snapshots[p.UserID]
	switch {
	case prev == domain.AnyVersion:
	case ok && cur.Version != prev:
		return fmt.Errorf("%w: %s at v%d, write expects v%d", domain.ErrVersionConflict, p.UserID, cur.Version, prev)
	case !ok && prev > 0:
		return fmt.Errorf("%w: %s", domain.ErrVersionConflict, p.UserID)
	}
	s.snapshots[p.UserID] = p
	return nil
}

// ─── Subscriptions ──────────────────────────────────────────────────────────

// Subscribe registers fn for userID's snapshots and returns a function
// that removes it.
func (s *Store) Subscribe(userID string, fn Listener) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextID++
	id := s.nextID
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]Listener)
	}
	s.subs[userID][id] = fn
	metrics.Subscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			metrics.Subscribers.Dec()
		})
	}
}

func (s *Store) notify(p domain.Profile) {
	s.subMu.Lock()
	listeners := make([]Listener, 0, len(s.subs[p.UserID]))
	for _, fn := range s.subs[p.UserID] {
		listeners = append(listeners, fn)
	}
	s.subMu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[store] listener for %s panicked: %v", p.UserID, r)
				}
			}()
			fn(p.Clone())
		}()
	}
}

// ─── Maintenance ────────────────────────────────────────────────────────────

// UserIDs lists every known profile.
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	if s.repo != nil {
		return s.repo.ListProfileIDs(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.snapshots))
	for id := range s.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

// Evict drops the cached snapshot for userID.
func (s *Store) Evict(userID string) {
	s.mu.Lock()
	delete(s.snapshots, userID)
	s.mu.Unlock()
}

// Ping checks the repository, if any.
func (s *Store) Ping() error {
	if s.repo == nil {
		return nil
	}
	return s.repo.Ping()
}
