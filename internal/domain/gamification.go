// Package domain holds the pure gamification types shared by every layer.
// A Profile is the single value the engine reads, transforms and replaces;
// nothing in this package touches storage or the network.
package domain

import (
	"time"
)

// ─── Action Kinds ───────────────────────────────────────────────────────────

// ActionKind names the real-world event that grants or spends points.
type ActionKind string

const (
	ActionWelcome           ActionKind = "welcome"
	ActionProfileComplete   ActionKind = "profileComplete"
	ActionFirstReferral     ActionKind = "firstReferral"
	ActionDailyLogin        ActionKind = "dailyLogin"
	ActionSharePromo        ActionKind = "sharePromo"
	ActionVerifyPromo       ActionKind = "verifyPromo"
	ActionFavoritePromo     ActionKind = "favoritePromo"
	ActionPriceSearch       ActionKind = "priceSearch"
	ActionCreateAlert       ActionKind = "createAlert"
	ActionChallengeComplete ActionKind = "challengeComplete"
	ActionAchievementUnlock ActionKind = "achievementUnlock"
	ActionRedeemReward      ActionKind = "redeemReward"
)

// ActionKinds lists every known kind in catalog order.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionWelcome, ActionProfileComplete, ActionFirstReferral,
		ActionDailyLogin, ActionSharePromo, ActionVerifyPromo,
		ActionFavoritePromo, ActionPriceSearch, ActionCreateAlert,
		ActionChallengeComplete, ActionAchievementUnlock, ActionRedeemReward,
	}
}

// Valid reports whether k is one of the closed set of kinds.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Variant is an enumerated sub-kind for actions whose value depends on
// where the UI triggered them.
type Variant string

const (
	VariantNone        Variant = ""
	VariantPromo       Variant = "promo"
	VariantPriceResult Variant = "priceResult"
)

// ─── Levels ─────────────────────────────────────────────────────────────────

// Level is a named tier derived from total points.
type Level string

const (
	LevelNovato  Level = "Novato"
	LevelExperto Level = "Experto"
	LevelLeyenda Level = "Leyenda"
)

// Rank orders levels so predicates can compare them.
func (l Level) Rank() int {
	switch l {
	case LevelExperto:
		return 1
	case LevelLeyenda:
		return 2
	default:
		return 0
	}
}

// LevelInfo is the renderable result of the level calculation.
type LevelInfo struct {
	Level            Level   `json:"level"`
	ProgressFraction float64 `json:"progressFraction"`
	PointsToNext     int64   `json:"pointsToNext"`
	TierMin          int64   `json:"tierMin"`
	TierMax          int64   `json:"tierMax"`
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// PointsHistoryEntry is one append-only point delta.
type PointsHistoryEntry struct {
	ID          string     `json:"id"`
	ActionKind  ActionKind `json:"actionKind"`
	Variant     Variant    `json:"variant,omitempty"`
	Delta       int64      `json:"delta"`
	Timestamp   time.Time  `json:"timestamp"`
	ReferenceID string     `json:"referenceId,omitempty"`
}

// HistoryFilter selects ledger entries by the sign of their delta.
type HistoryFilter string

const (
	HistoryAll    HistoryFilter = "all"
	HistoryEarned HistoryFilter = "earned" // delta >= 0
	HistorySpent  HistoryFilter = "spent"  // delta < 0
)

// Match reports whether e passes the filter.
func (f HistoryFilter) Match(e PointsHistoryEntry) bool {
	switch f {
	case HistoryEarned:
		return e.Delta >= 0
	case HistorySpent:
		return e.Delta < 0
	default:
		return true
	}
}

// ─── Achievements ───────────────────────────────────────────────────────────

// Achievement is a one-time badge. UnlockedAt is nil until unlocked.
type Achievement struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Icon          string     `json:"icon"`
	PointsAwarded int64      `json:"pointsAwarded"`
	UnlockedAt    *time.Time `json:"unlockedAt"`
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// ChallengeStatus is the lifecycle state of a challenge.
type ChallengeStatus string

const (
	ChallengeActive    ChallengeStatus = "Active"
	ChallengeCompleted ChallengeStatus = "Completed"
	ChallengeClaimed   ChallengeStatus = "Claimed"
	ChallengeExpired   ChallengeStatus = "Expired"
)

// Valid reports whether s is a known status.
func (s ChallengeStatus) Valid() bool {
	switch s {
	case ChallengeActive, ChallengeCompleted, ChallengeClaimed, ChallengeExpired:
		return true
	}
	return false
}

// ChallengeState is a time-boxed progress goal held in a profile.
type ChallengeState struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Action    ActionKind      `json:"action,omitempty"` // record(Action) advances by 1
	Progress  int64           `json:"progress"`
	Target    int64           `json:"target"`
	Reward    int64           `json:"reward"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Status    ChallengeStatus `json:"status"`
}

// ProgressPct returns completion percentage (0-100).
func (c ChallengeState) ProgressPct() float64 {
	if c.Target <= 0 {
		return 100.0
	}
	pct := float64(c.Progress) / float64(c.Target) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return pct
}

// ChallengeDef describes a challenge to assign to a profile.
type ChallengeDef struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Action    ActionKind `json:"action,omitempty"`
	Target    int64      `json:"target"`
	Reward    int64      `json:"reward"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// ─── Profile ────────────────────────────────────────────────────────────────

// DefaultAvatar is what a freshly registered profile shows.
const DefaultAvatar = "default"

// Profile is the whole gamification state of one user.
// It is replaced wholesale on every mutation; use Clone before editing.
type Profile struct {
	UserID         string                    `json:"userId"`
	DisplayName    string                    `json:"displayName"`
	Avatar         string                    `json:"avatar"`
	Points         int64                     `json:"points"`
	Level          Level                     `json:"level"`
	StreakDays     int                       `json:"streakDays"`
	LongestStreak  int                       `json:"longestStreak"`
	LastActiveDate Date                      `json:"lastActiveDate"`
	Achievements   []Achievement             `json:"achievements"`
	Challenges     map[string]ChallengeState `json:"challenges"`
	Ledger         []PointsHistoryEntry      `json:"ledger"`
	Version        int64                     `json:"version"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

// NewProfile returns an empty profile with no ledger entries.
func NewProfile(userID string, now time.Time) Profile {
	return Profile{
		UserID:       userID,
		Avatar:       DefaultAvatar,
		Level:        LevelNovato,
		Achievements: []Achievement{},
		Challenges:   map[string]ChallengeState{},
		Ledger:       []PointsHistoryEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers can never observe a half-applied edit.
func (p Profile) Clone() Profile {
	cp := p
	cp.Achievements = make([]Achievement, len(p.Achievements))
	for i, a := range p.Achievements {
		if a.UnlockedAt != nil {
			t := *a.UnlockedAt
			a.UnlockedAt = &t
		}
		cp.Achievements[i] = a
	}
	cp.Challenges = make(map[string]ChallengeState, len(p.Challenges))
	for k, v := range p.Challenges {
		cp.Challenges[k] = v
	}
	cp.Ledger = make([]PointsHistoryEntry, len(p.Ledger))
	copy(cp.Ledger, p.Ledger)
	return cp
}

// HasAchievement reports whether id is already unlocked.
func (p Profile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// CountAction counts ledger entries of the given kind.
func (p Profile) CountAction(kind ActionKind) int {
	n := 0
	for _, e := range p.Ledger {
		if e.ActionKind == kind {
			n++
		}
	}
	return n
}

// HasCustomAvatar reports whether the user replaced the default avatar.
func (p Profile) HasCustomAvatar() bool {
	return p.Avatar != "" && p.Avatar != DefaultAvatar
}

// ProfileDetails are the user-editable fields of a profile.
// Nil fields are left untouched.
type ProfileDetails struct {
	DisplayName *string `json:"displayName,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}
