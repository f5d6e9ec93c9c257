package gamification

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
)

// EncodeProfile renders the persisted JSON layout of a profile.
func EncodeProfile(p domain.Profile) ([]byte, error) {
	p = normalize(p)
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile %s: %w", p.UserID, err)
	}
	return b, nil
}

// DecodeProfile parses and validates a persisted document. Any structural
// problem is reported as domain.ErrCorruptState.
func DecodeProfile(b []byte) (domain.Profile, error) {
	var p domain.Profile
	if err := json.Unmarshal(b, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("%w: %v", domain.ErrCorruptState, err)
	}
	p = normalize(p)
	if err := ValidateProfile(p); err != nil {
		return domain.Profile{}, err
	}
	// Level is a cache; the points total is the truth.
	p.Level = LevelOf(p.Points).Level
	return p, nil
}

// ValidateProfile checks the invariants a stored profile must satisfy.
func ValidateProfile(p domain.Profile) error {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", domain.ErrCorruptState, fmt.Sprintf(format, args...))
	}

	if p.UserID == "" {
		return corrupt("missing userId")
	}
	if p.Points < 0 {
		return corrupt("negative points %d", p.Points)
	}

	var running int64
	seenIDs := make(map[string]bool, len(p.Ledger))
	for i, e := range p.Ledger {
		if e.ID == "" || seenIDs[e.ID] {
			return corrupt("ledger[%d]: missing or duplicate id", i)
		}
		seenIDs[e.ID] = true
		if !e.ActionKind.Valid() {
			return corrupt("ledger[%d]: unknown action %q", i, e.ActionKind)
		}
		running += e.Delta
		if running < 0 {
			return corrupt("ledger[%d]: running total %d below zero", i, running)
		}
	}
	if running != p.Points {
		return corrupt("points %d do not match ledger total %d", p.Points, running)
	}

	if p.StreakDays < 0 {
		return corrupt("negative streak %d", p.StreakDays)
	}
	if !p.LastActiveDate.IsZero() && p.StreakDays < 1 {
		return corrupt("active date set with streak %d", p.StreakDays)
	}

	payouts := make(map[string][]int64)
	for _, e := range p.Ledger {
		if e.ActionKind == domain.ActionAchievementUnlock {
			payouts[e.ReferenceID] = append(payouts[e.ReferenceID], e.Delta)
		}
	}

	seenAch := make(map[string]bool, len(p.Achievements))
	var lastUnlock time.Time
	for _, a := range p.Achievements {
		if a.ID == "" || seenAch[a.ID] {
			return corrupt("achievement %q missing or duplicated", a.ID)
		}
		seenAch[a.ID] = true
		if a.UnlockedAt == nil {
			return corrupt("achievement %q has no unlock time", a.ID)
		}
		// Achievements are kept in unlock order.
		if a.UnlockedAt.Before(lastUnlock) {
			return corrupt("achievement %q unlocked before its predecessor", a.ID)
		}
		lastUnlock = *a.UnlockedAt
		if a.PointsAwarded < 0 {
			return corrupt("achievement %q has negative bonus", a.ID)
		}
		if paid := payouts[a.ID]; len(paid) != 1 || paid[0] != a.PointsAwarded {
			return corrupt("achievement %q: %d unlock entries for bonus %d", a.ID, len(paid), a.PointsAwarded)
		}
	}
	for id := range payouts {
		if !seenAch[id] {
			return corrupt("unlock entry for %q without an achievement", id)
		}
	}

	for key, ch := range p.Challenges {
		if key != ch.ID {
			return corrupt("challenge key %q holds id %q", key, ch.ID)
		}
		if ch.Target <= 0 || ch.Progress < 0 || ch.Progress > ch.Target || ch.Reward < 0 {
			return corrupt("challenge %q: progress %d/%d reward %d", key, ch.Progress, ch.Target, ch.Reward)
		}
		if !ch.Status.Valid() {
			return corrupt("challenge %q: status %q", key, ch.Status)
		}
		if ch.Status == domain.ChallengeCompleted && ch.Progress < ch.Target {
			return corrupt("challenge %q completed below target", key)
		}
		if ch.Status == domain.ChallengeClaimed && countReference(p, domain.ActionChallengeComplete, key) != 1 {
			return corrupt("challenge %q claimed without exactly one payout", key)
		}
	}
	return nil
}

func countReference(p domain.Profile, kind domain.ActionKind, ref string) int {
	n := 0
	for _, e := range p.Ledger {
		if e.ActionKind == kind && e.ReferenceID == ref {
			n++
		}
	}
	return n
}

// normalize replaces nil collections so encode/decode round-trips are exact.
func normalize(p domain.Profile) domain.Profile {
	if p.Achievements == nil {
		p.Achievements = []domain.Achievement{}
	}
	if p.Challenges == nil {
		p.Challenges = map[string]domain.ChallengeState{}
	}
	if p.Ledger == nil {
		p.Ledger = []domain.PointsHistoryEntry{}
	}
	return p
}
