package gamification

import "github.com/puntos-app/puntos/internal/domain"

// StreakState is the part of a profile the streak counter reads and writes.
type StreakState struct {
	LastActiveDate domain.Date
	StreakDays     int
	LongestStreak  int
}

// StreakOf extracts the streak state from a profile.
func StreakOf(p domain.Profile) StreakState {
	return StreakState{
		LastActiveDate: p.LastActiveDate,
		StreakDays:     p.StreakDays,
		LongestStreak:  p.LongestStreak,
	}
}

// Apply writes the state back onto p.
func (s StreakState) Apply(p domain.Profile) domain.Profile {
	p.LastActiveDate = s.LastActiveDate
	p.StreakDays = s.StreakDays
	p.LongestStreak = s.LongestStreak
	return p
}

// Touch records activity on today. Pure: the caller supplies the date.
// Same day: unchanged. Next day: +1. Larger gap or no prior activity: 1.
// A date earlier than the last active date is ignored.
func Touch(s StreakState, today domain.Date) StreakState {
	switch {
	case s.LastActiveDate.IsZero():
		s.StreakDays = 1
	case today == s.LastActiveDate, today.Before(s.LastActiveDate):
		return s
	case today.DaysSince(s.LastActiveDate) == 1:
		s.StreakDays++
	default:
		// Streak breaks silently.
		s.StreakDays = 1
	}

	s.LastActiveDate = today
	if s.StreakDays > s.LongestStreak {
		s.LongestStreak = s.StreakDays
	}
	return s
}
