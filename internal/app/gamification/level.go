package gamification

import (
	"math"

	"github.com/puntos-app/puntos/internal/domain"
)

// Tier is one half-open points interval [Min, Max).
type Tier struct {
	Level domain.Level `json:"level"`
	Min   int64        `json:"min"`
	Max   int64        `json:"max"`
}

// tiers is the level table. The last tier is terminal: points at or past
// its Max still report it, fully progressed.
var tiers = []Tier{
	{Level: domain.LevelNovato, Min: 0, Max: 500},
	{Level: domain.LevelExperto, Min: 500, Max: 2000},
	{Level: domain.LevelLeyenda, Min: 2000, Max: 5000},
}

// Tiers returns the level table.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// LevelOf derives the level and progress for a points total.
// It never fails: out-of-table input falls back to the lowest tier.
func LevelOf(points int64) domain.LevelInfo {
	if points < 0 {
		return fallbackLevel()
	}
	last := tiers[len(tiers)-1]
	if points >= last.Max {
		return domain.LevelInfo{
			Level:            last.Level,
			ProgressFraction: 1.0,
			PointsToNext:     0,
			TierMin:          last.Min,
			TierMax:          last.Max,
		}
	}
	for _, t := range tiers {
		if points >= t.Min && points < t.Max {
			return domain.LevelInfo{
				Level:            t.Level,
				ProgressFraction: clamp01(float64(points-t.Min) / float64(t.Max-t.Min)),
				PointsToNext:     t.Max - points,
				TierMin:          t.Min,
				TierMax:          t.Max,
			}
		}
	}
	// Gap in the table.
	return fallbackLevel()
}

// LevelOfValue is LevelOf for untrusted numeric input (query strings,
// decoded JSON). NaN and infinities fall back to the lowest tier.
func LevelOfValue(v float64) domain.LevelInfo {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fallbackLevel()
	}
	if v >= math.MaxInt64 {
		return LevelOf(math.MaxInt64)
	}
	return LevelOf(int64(math.Floor(v)))
}

func fallbackLevel() domain.LevelInfo {
	first := tiers[0]
	return domain.LevelInfo{
		Level:            first.Level,
		ProgressFraction: 0,
		PointsToNext:     first.Max - first.Min,
		TierMin:          first.Min,
		TierMax:          first.Max,
	}
}

func clamp01(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
