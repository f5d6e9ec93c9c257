package gamification

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"sync"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
	"github.com/puntos-app/puntos/internal/infra/metrics"
)

// ProfileStore is where the engine reads and replaces snapshots.
// Implemented by store.Store.
type ProfileStore interface {
	// Get returns the current snapshot, domain.ErrProfileNotFound, or an
	// error wrapping domain.ErrCorruptState.
	Get(ctx context.Context, userID string) (domain.Profile, error)

	// Set replaces the snapshot; p.Version must be exactly one past the
	// stored version.
	Set(ctx context.Context, p domain.Profile) error

	// Reset replaces the snapshot regardless of the stored version.
	Reset(ctx context.Context, p domain.Profile) error
}

// ChallengeTemplate is a challenge handed to every new profile.
type ChallengeTemplate struct {
	ID       string
	Title    string
	Action   domain.ActionKind
	Target   int64
	Reward   int64
	Duration time.Duration
}

// Options configures an Engine. Zero values pick the app defaults.
type Options struct {
	Catalog      *Catalog
	Achievements []AchievementDef
	Challenges   []ChallengeTemplate

	// Location decides which calendar day "now" falls on.
	Location *time.Location
	Now      func() time.Time

	// Retry governs replays after a version conflict in shared storage.
	Retry RetryConfig
}

// RecordOptions carries the per-call context of Record.
type RecordOptions struct {
	Variant     domain.Variant
	ReferenceID string
	Amount      int64 // cost for spend actions; ignored otherwise
}

// Engine is the only writer of profiles. Each call loads the current
// snapshot, applies one action through the ledger, streak, challenge and
// achievement steps, and stores the result as a single new value.
type Engine struct {
	store      ProfileStore
	catalog    *Catalog
	ledger     *Ledger
	unlocker   *Unlocker
	challenges *ChallengeTracker
	seeds      []ChallengeTemplate
	loc        *time.Location
	now        func() time.Time
	retry      RetryConfig

	mu    sync.Mutex
	locks map[string]*userLock
}

// userLock is a per-user mutex shared by the calls currently holding or
// waiting on it.
type userLock struct {
	sync.Mutex
	refs int
}

// NewEngine wires the engine components.
func NewEngine(store ProfileStore, opts Options) *Engine {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Achievements == nil {
		opts.Achievements = DefaultAchievements()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	ledger := NewLedger(opts.Catalog)
	return &Engine{
		store:      store,
		catalog:    opts.Catalog,
		ledger:     ledger,
		unlocker:   NewUnlocker(ledger, opts.Achievements),
		challenges: NewChallengeTracker(ledger),
		seeds:      opts.Challenges,
		loc:        opts.Location,
		now:        opts.Now,
		retry:      opts.Retry.withDefaults(),
		locks:      make(map[string]*userLock),
	}
}

// Catalog returns the action catalog in use.
func (e *Engine) Catalog() *Catalog { return e.catalog }

// Achievements returns the achievement definitions in use.
func (e *Engine) Achievements() []AchievementDef { return e.unlocker.Definitions() }

// Today returns the engine's current calendar date.
func (e *Engine) Today() domain.Date {
	return DateIn(e.now(), e.loc)
}

// DateIn returns the calendar date of t in loc.
func DateIn(t time.Time, loc *time.Location) domain.Date {
	return domain.DateOf(t.In(loc))
}

// ─── Operations ─────────────────────────────────────────────────────────────

// Register creates the profile with its welcome entry and starting
// challenges. An existing profile is returned unchanged.
func (e *Engine) Register(ctx context.Context, userID string) (domain.Profile, error) {
	if userID == "" {
		return domain.Profile{}, fmt.Errorf("%w: empty user id", domain.ErrProfileNotFound)
	}
	unlock := e.lock(userID)
	defer unlock()

	p, err := e.store.Get(ctx, userID)
	switch {
	case err == nil:
		return e.refresh(ctx, p)
	case errors.Is(err, domain.ErrCorruptState):
		return e.recover(ctx, userID, err)
	case !errors.Is(err, domain.ErrProfileNotFound):
		return domain.NewProfile(userID, e.now()), err
	}

	fresh, err := e.fresh(userID, e.now())
	if err != nil {
		return domain.NewProfile(userID, e.now()), err
	}
	if err := e.store.Set(ctx, fresh); err != nil {
		return domain.NewProfile(userID, e.now()), fmt.Errorf("register %s: %w", userID, err)
	}
	metrics.ProfilesRegistered.Inc()
	log.Printf("[engine] registered profile %s", userID)
	return fresh, nil
}

// Profile returns the current snapshot with lazy challenge expiry applied.
func (e *Engine) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	unlock := e.lock(userID)
	defer unlock()

	p, err := e.load(ctx, userID)
	if err != nil {
		return p, err
	}
	return e.refresh(ctx, p)
}

// Record applies one UI action. Repeats of idempotent or already-referenced
// actions return the current snapshot unchanged with a nil error.
func (e *Engine) Record(ctx context.Context, userID string, kind domain.ActionKind, opts RecordOptions) (domain.Profile, error) {
	return e.mutate(ctx, userID, "record", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		rule, err := e.catalog.Lookup(kind, opts.Variant)
		if err != nil {
			return p, false, err
		}
		if kind == domain.ActionChallengeComplete || kind == domain.ActionAchievementUnlock {
			return p, false, fmt.Errorf("%w: %s is granted by the engine, not recorded", domain.ErrUnknownAction, kind)
		}

		delta := rule.Points
		if rule.Variable {
			if opts.Amount <= 0 {
				return p, false, fmt.Errorf("%w: %s needs a positive amount, got %d", domain.ErrInvalidAmount, kind, opts.Amount)
			}
			delta = opts.Amount
			if rule.Spend {
				delta = -opts.Amount
			}
		}

		today := DateIn(now, e.loc)
		ref := opts.ReferenceID
		if kind == domain.ActionDailyLogin {
			// One login bonus per calendar day, whatever the caller sends.
			ref = today.String()
		}

		next, appended, err := e.ledger.Append(p, kind, delta, EntryOptions{
			Variant:     opts.Variant,
			ReferenceID: ref,
			At:          now,
		})
		if err != nil {
			return p, false, err
		}
		if !appended {
			metrics.DuplicateActions.WithLabelValues(string(kind)).Inc()
			return p, false, nil
		}

		next = Touch(StreakOf(next), today).Apply(next)
		next, completed := e.challenges.AdvanceForAction(next, kind, now)

		metrics.ActionsRecorded.WithLabelValues(string(kind)).Inc()
		observeDelta(kind, delta)
		metrics.ChallengesCompleted.Add(float64(len(completed)))
		return next, true, nil
	})
}

// AdvanceChallenge adds progress to one challenge.
func (e *Engine) AdvanceChallenge(ctx context.Context, userID, challengeID string, amount int64) (domain.Profile, error) {
	return e.mutate(ctx, userID, "advance", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		before := p.Challenges[challengeID]
		next, err := e.challenges.Advance(p, challengeID, amount, now)
		if err != nil {
			return p, false, err
		}
		after := next.Challenges[challengeID]
		if after.Status == domain.ChallengeCompleted && before.Status != domain.ChallengeCompleted {
			metrics.ChallengesCompleted.Inc()
		}
		return next, after.Progress != before.Progress || after.Status != before.Status, nil
	})
}

// ClaimChallenge pays a completed challenge. A second claim is a no-op.
func (e *Engine) ClaimChallenge(ctx context.Context, userID, challengeID string) (domain.Profile, error) {
	return e.mutate(ctx, userID, "claim", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		before := p.Challenges[challengeID]
		next, paid, err := e.challenges.Claim(p, challengeID, now)
		if err != nil {
			return p, false, err
		}
		if paid {
			metrics.ChallengesClaimed.Inc()
			observeDelta(domain.ActionChallengeComplete, before.Reward)
		} else {
			metrics.DuplicateActions.WithLabelValues(string(domain.ActionChallengeComplete)).Inc()
		}
		return next, paid || next.Challenges[challengeID].Status != before.Status, nil
	})
}

// TouchStreak records activity on today without granting points.
func (e *Engine) TouchStreak(ctx context.Context, userID string, today domain.Date) (domain.Profile, error) {
	return e.mutate(ctx, userID, "streak", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		if today.IsZero() {
			today = DateIn(now, e.loc)
		}
		if today.After(DateIn(now, e.loc)) {
			return p, false, fmt.Errorf("%w: %s", domain.ErrFutureDate, today)
		}
		before := StreakOf(p)
		after := Touch(before, today)
		return after.Apply(p), after != before, nil
	})
}

// UpdateDetails edits display fields; achievement predicates that depend on
// them are evaluated as part of the same mutation.
func (e *Engine) UpdateDetails(ctx context.Context, userID string, d domain.ProfileDetails) (domain.Profile, error) {
	return e.mutate(ctx, userID, "details", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		changed := false
		if d.DisplayName != nil && *d.DisplayName != p.DisplayName {
			p.DisplayName = *d.DisplayName
			changed = true
		}
		if d.Avatar != nil && *d.Avatar != p.Avatar {
			p.Avatar = *d.Avatar
			changed = true
		}
		return p, changed, nil
	})
}

// AssignChallenge adds a challenge to a profile. Existing ids are kept.
func (e *Engine) AssignChallenge(ctx context.Context, userID string, def domain.ChallengeDef) (domain.Profile, error) {
	return e.mutate(ctx, userID, "assign", func(p domain.Profile, now time.Time) (domain.Profile, bool, error) {
		_, existed := p.Challenges[def.ID]
		next, err := e.challenges.Assign(p, def, now)
		if err != nil {
			return p, false, err
		}
		return next, !existed, nil
	})
}

// History returns the profile's ledger as a restartable sequence.
func (e *Engine) History(ctx context.Context, userID string, filter domain.HistoryFilter) (iter.Seq[domain.PointsHistoryEntry], error) {
	p, err := e.Profile(ctx, userID)
	if err != nil {
		return History(domain.Profile{}, filter), err
	}
	return History(p, filter), nil
}

// ─── Pipeline ───────────────────────────────────────────────────────────────

type mutation func(p domain.Profile, now time.Time) (next domain.Profile, changed bool, err error)

// mutate runs fn against a private copy of the stored snapshot and commits
// the result. The returned profile is always renderable: on error it is the
// snapshot as it was before the call. A version conflict reloads the
// snapshot and replays fn, up to the configured retry count.
func (e *Engine) mutate(ctx context.Context, userID, op string, fn mutation) (domain.Profile, error) {
	unlock := e.lock(userID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		p, err := e.apply(ctx, userID, fn)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt > e.retry.MaxRetries {
			metrics.RejectedOperations.WithLabelValues(op, reason(err)).Inc()
			return p, err
		}

		wait := e.retry.backoff(attempt)
		log.Printf("[engine] %s %s: version conflict, retry %d/%d in %s", op, userID, attempt, e.retry.MaxRetries, wait)
		select {
		case <-ctx.Done():
			metrics.RejectedOperations.WithLabelValues(op, reason(err)).Inc()
			return p, fmt.Errorf("%s %s: %w", op, userID, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// apply is one load, transform and commit round.
func (e *Engine) apply(ctx context.Context, userID string, fn mutation) (domain.Profile, error) {
	stored, err := e.load(ctx, userID)
	if err != nil {
		return stored, err
	}

	now := e.now()
	p, expired := e.challenges.Expire(stored.Clone(), now)

	next, changed, err := fn(p, now)
	if err != nil {
		return stored, err
	}
	if !changed && !expired {
		return stored, nil
	}
	return e.commit(ctx, stored, next, now)
}

// commit recomputes derived fields, runs the achievement pass and stores
// next as the successor of stored.
func (e *Engine) commit(ctx context.Context, stored, next domain.Profile, now time.Time) (domain.Profile, error) {
	next.Level = LevelOf(next.Points).Level

	next, unlocked, err := e.unlocker.Evaluate(next, now)
	if err != nil {
		return stored, err
	}
	for _, a := range unlocked {
		metrics.AchievementsUnlocked.WithLabelValues(a.ID).Inc()
		observeDelta(domain.ActionAchievementUnlock, a.PointsAwarded)
	}

	next.Level = LevelOf(next.Points).Level
	next.Version = stored.Version + 1
	next.UpdatedAt = now

	if err := e.store.Set(ctx, next); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			log.Printf("[engine] version conflict for %s at v%d", next.UserID, next.Version)
		}
		return stored, fmt.Errorf("save profile %s: %w", next.UserID, err)
	}
	if next.Level != stored.Level && next.Level.Rank() > stored.Level.Rank() {
		metrics.LevelUps.WithLabelValues(string(next.Level)).Inc()
	}
	return next, nil
}

// refresh applies lazy expiry to a loaded snapshot, persisting if it moved.
func (e *Engine) refresh(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	now := e.now()
	next, expired := e.challenges.Expire(p, now)
	if !expired {
		return p, nil
	}
	return e.commit(ctx, p, next, now)
}

// load reads a snapshot, replacing a corrupt one with a fresh profile.
func (e *Engine) load(ctx context.Context, userID string) (domain.Profile, error) {
	p, err := e.store.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, domain.ErrCorruptState) {
		return e.recover(ctx, userID, err)
	}
	return domain.NewProfile(userID, e.now()), err
}

// recover reinitializes a profile whose stored document failed validation.
// Availability wins over the corrupted history.
func (e *Engine) recover(ctx context.Context, userID string, cause error) (domain.Profile, error) {
	log.Printf("[engine] WARNING: resetting profile %s: %v", userID, cause)
	metrics.CorruptRecoveries.Inc()

	fresh, err := e.fresh(userID, e.now())
	if err != nil {
		return domain.NewProfile(userID, e.now()), err
	}
	if err := e.store.Reset(ctx, fresh); err != nil {
		return fresh, fmt.Errorf("reset profile %s: %w", userID, err)
	}
	return fresh, nil
}

// fresh builds a just-registered profile: welcome entry, zero streak,
// starting challenges.
func (e *Engine) fresh(userID string, now time.Time) (domain.Profile, error) {
	p := domain.NewProfile(userID, now)

	p, _, err := e.ledger.Append(p, domain.ActionWelcome, e.welcomePoints(), EntryOptions{At: now})
	if err != nil {
		return p, fmt.Errorf("seed welcome: %w", err)
	}

	for _, seed := range e.seeds {
		p, err = e.challenges.Assign(p, domain.ChallengeDef{
			ID:        seed.ID,
			Title:     seed.Title,
			Action:    seed.Action,
			Target:    seed.Target,
			Reward:    seed.Reward,
			ExpiresAt: now.Add(seed.Duration),
		}, now)
		if err != nil {
			return p, fmt.Errorf("seed challenge %s: %w", seed.ID, err)
		}
	}

	p.Level = LevelOf(p.Points).Level
	p.Version = 1
	return p, nil
}

func (e *Engine) welcomePoints() int64 {
	rule, err := e.catalog.Lookup(domain.ActionWelcome, domain.VariantNone)
	if err != nil {
		return 0
	}
	return rule.Points
}

// lock serializes all work on one user's profile.
// The entry is dropped once its last holder releases it.
func (e *Engine) lock(userID string) func() {
	e.mu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{}
		e.locks[userID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, userID)
		}
		e.mu.Unlock()
	}
}

func observeDelta(kind domain.ActionKind, delta int64) {
	switch {
	case delta > 0:
		metrics.PointsAwarded.WithLabelValues(string(kind)).Add(float64(delta))
	case delta < 0:
		metrics.PointsSpent.Add(float64(-delta))
	}
}

func reason(err error) string {
	return domain.ErrorCode(err)
}
