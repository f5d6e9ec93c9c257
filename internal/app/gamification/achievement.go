package gamification

import (
	"fmt"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
)

// AchievementDef pairs a badge template with its unlock predicate.
type AchievementDef struct {
	domain.Achievement
	Predicate func(domain.Profile) bool `json:"-"`
}

// Unlocker evaluates achievement predicates against a profile and pays the
// bonus through the ledger, keyed by achievement id.
type Unlocker struct {
	ledger      *Ledger
	definitions []AchievementDef
}

// NewUnlocker creates an unlocker. Predicates run in the order given.
func NewUnlocker(ledger *Ledger, defs []AchievementDef) *Unlocker {
	return &Unlocker{ledger: ledger, definitions: defs}
}

// Definitions returns all achievement definitions (for display).
func (u *Unlocker) Definitions() []AchievementDef {
	return u.definitions
}

// TotalCount returns the number of defined achievements.
func (u *Unlocker) TotalCount() int {
	return len(u.definitions)
}

// Evaluate unlocks every achievement whose predicate now holds and returns
// the updated profile plus the newly unlocked badges. Passes repeat until
// nothing new unlocks, since one bonus can push the profile over another
// threshold; the result is a single consistent snapshot.
func (u *Unlocker) Evaluate(p domain.Profile, now time.Time) (domain.Profile, []domain.Achievement, error) {
	var unlocked []domain.Achievement

	for pass := 0; pass <= len(u.definitions); pass++ {
		progressed := false
		for _, def := range u.definitions {
			if p.HasAchievement(def.ID) {
				continue
			}
			if def.Predicate == nil || !def.Predicate(p) {
				continue
			}

			next, _, err := u.ledger.Append(p, domain.ActionAchievementUnlock, def.PointsAwarded, EntryOptions{
				ReferenceID: def.ID,
				At:          now,
			})
			if err != nil {
				return p, nil, fmt.Errorf("unlock %s: %w", def.ID, err)
			}

			at := now
			a := def.Achievement
			a.UnlockedAt = &at
			next = next.Clone()
			next.Achievements = append(next.Achievements, a)
			next.Level = LevelOf(next.Points).Level

			p = next
			unlocked = append(unlocked, a)
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return p, unlocked, nil
}

// ─── Achievement Definitions ────────────────────────────────────────────────

// DefaultAchievements returns the badge catalog shown in the app.
// There is no welcome badge; the welcome ledger entry is the only grant.
func DefaultAchievements() []AchievementDef {
	return []AchievementDef{
		// ── Perfil ─────────────────────────────────────────────────────
		{
			Achievement: domain.Achievement{
				ID: "avatar_personalizado", Title: "Con estilo", Icon: "🎨", PointsAwarded: 25,
				Description: "Cambia tu avatar por uno propio.",
			},
			Predicate: func(p domain.Profile) bool { return p.HasCustomAvatar() },
		},
		{
			Achievement: domain.Achievement{
				ID: "perfil_completo", Title: "Todo en orden", Icon: "✅", PointsAwarded: 20,
				Description: "Completa tu perfil.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionProfileComplete) > 0 },
		},

		// ── Comunidad ──────────────────────────────────────────────────
		{
			Achievement: domain.Achievement{
				ID: "primer_compartido", Title: "Buen amigo", Icon: "📣", PointsAwarded: 10,
				Description: "Comparte tu primera promoción.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionSharePromo) >= 1 },
		},
		{
			Achievement: domain.Achievement{
				ID: "verificador", Title: "Ojo de halcón", Icon: "🔍", PointsAwarded: 50,
				Description: "Verifica 10 promociones.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionVerifyPromo) >= 10 },
		},
		{
			Achievement: domain.Achievement{
				ID: "coleccionista", Title: "Coleccionista", Icon: "⭐", PointsAwarded: 30,
				Description: "Guarda 10 favoritos.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionFavoritePromo) >= 10 },
		},
		{
			Achievement: domain.Achievement{
				ID: "embajador", Title: "Embajador", Icon: "🤝", PointsAwarded: 50,
				Description: "Invita a tu primer amigo.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionFirstReferral) >= 1 },
		},

		// ── Constancia ─────────────────────────────────────────────────
		{
			Achievement: domain.Achievement{
				ID: "racha_7", Title: "Semana perfecta", Icon: "🔥", PointsAwarded: 70,
				Description: "Entra 7 días seguidos.",
			},
			Predicate: func(p domain.Profile) bool { return p.StreakDays >= 7 },
		},
		{
			Achievement: domain.Achievement{
				ID: "racha_30", Title: "Imparable", Icon: "💪", PointsAwarded: 300,
				Description: "Entra 30 días seguidos.",
			},
			Predicate: func(p domain.Profile) bool { return p.StreakDays >= 30 },
		},
		{
			Achievement: domain.Achievement{
				ID: "primer_reto", Title: "Retador", Icon: "🏁", PointsAwarded: 30,
				Description: "Reclama tu primer reto.",
			},
			Predicate: func(p domain.Profile) bool { return p.CountAction(domain.ActionChallengeComplete) >= 1 },
		},

		// ── Niveles ────────────────────────────────────────────────────
		{
			Achievement: domain.Achievement{
				ID: "experto", Title: "Experto en ofertas", Icon: "🥈", PointsAwarded: 100,
				Description: "Alcanza el nivel Experto.",
			},
			Predicate: func(p domain.Profile) bool {
				return LevelOf(p.Points).Level.Rank() >= domain.LevelExperto.Rank()
			},
		},
		{
			Achievement: domain.Achievement{
				ID: "leyenda", Title: "Leyenda", Icon: "👑", PointsAwarded: 250,
				Description: "Alcanza el nivel Leyenda.",
			},
			Predicate: func(p domain.Profile) bool { return LevelOf(p.Points).Level == domain.LevelLeyenda },
		},
	}
}
