package gamification

import (
	"fmt"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
)

// ChallengeTracker drives the per-challenge state machine:
//
//	Active ──progress reaches target──▶ Completed ──claim──▶ Claimed
//	Active ──now > expiresAt──▶ Expired
//
// Expiry is lazy: it is applied whenever a profile is read or advanced.
type ChallengeTracker struct {
	ledger *Ledger
}

// NewChallengeTracker creates a tracker paying rewards through ledger.
func NewChallengeTracker(ledger *Ledger) *ChallengeTracker {
	return &ChallengeTracker{ledger: ledger}
}

// Assign adds def as an Active challenge. An existing id is left as is.
func (c *ChallengeTracker) Assign(p domain.Profile, def domain.ChallengeDef, now time.Time) (domain.Profile, error) {
	if def.ID == "" || def.Target <= 0 || def.Reward < 0 || def.ExpiresAt.IsZero() {
		return p, fmt.Errorf("%w: id=%q target=%d reward=%d", domain.ErrInvalidChallenge, def.ID, def.Target, def.Reward)
	}
	if def.Action != "" && !def.Action.Valid() {
		return p, fmt.Errorf("%w: %s", domain.ErrUnknownAction, def.Action)
	}
	if _, exists := p.Challenges[def.ID]; exists {
		return p, nil
	}

	status := domain.ChallengeActive
	if now.After(def.ExpiresAt) {
		status = domain.ChallengeExpired
	}

	next := p.Clone()
	next.Challenges[def.ID] = domain.ChallengeState{
		ID:        def.ID,
		Title:     def.Title,
		Action:    def.Action,
		Target:    def.Target,
		Reward:    def.Reward,
		ExpiresAt: def.ExpiresAt,
		Status:    status,
	}
	return next, nil
}

// Expire moves every overdue Active challenge to Expired.
// changed reports whether anything moved.
func (c *ChallengeTracker) Expire(p domain.Profile, now time.Time) (domain.Profile, bool) {
	var overdue []string
	for id, ch := range p.Challenges {
		if ch.Status == domain.ChallengeActive && now.After(ch.ExpiresAt) {
			overdue = append(overdue, id)
		}
	}
	if len(overdue) == 0 {
		return p, false
	}

	next := p.Clone()
	for _, id := range overdue {
		ch := next.Challenges[id]
		ch.Status = domain.ChallengeExpired
		next.Challenges[id] = ch
	}
	return next, true
}

// Advance adds amount to a challenge's progress, capped at its target.
// Expired, Completed and Claimed challenges are left untouched.
func (c *ChallengeTracker) Advance(p domain.Profile, id string, amount int64, now time.Time) (domain.Profile, error) {
	if amount <= 0 {
		return p, fmt.Errorf("%w: advance by %d", domain.ErrInvalidAmount, amount)
	}
	p, _ = c.Expire(p, now)

	ch, ok := p.Challenges[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", domain.ErrChallengeNotFound, id)
	}
	if ch.Status != domain.ChallengeActive {
		return p, nil
	}

	next := p.Clone()
	next.Challenges[id] = advance(ch, amount)
	return next, nil
}

// AdvanceForAction advances by one every Active challenge tied to kind and
// returns the challenges that became Completed.
func (c *ChallengeTracker) AdvanceForAction(p domain.Profile, kind domain.ActionKind, now time.Time) (domain.Profile, []domain.ChallengeState) {
	p, _ = c.Expire(p, now)

	var matching []string
	for id, ch := range p.Challenges {
		if ch.Action == kind && ch.Status == domain.ChallengeActive {
			matching = append(matching, id)
		}
	}
	if len(matching) == 0 {
		return p, nil
	}

	next := p.Clone()
	var completed []domain.ChallengeState
	for _, id := range matching {
		ch := advance(next.Challenges[id], 1)
		next.Challenges[id] = ch
		if ch.Status == domain.ChallengeCompleted {
			completed = append(completed, ch)
		}
	}
	return next, completed
}

// Claim pays a Completed challenge's reward and marks it Claimed.
// Claiming an already Claimed challenge is a no-op (claimed == false).
func (c *ChallengeTracker) Claim(p domain.Profile, id string, now time.Time) (domain.Profile, bool, error) {
	p, _ = c.Expire(p, now)

	ch, ok := p.Challenges[id]
	if !ok {
		return p, false, fmt.Errorf("%w: %s", domain.ErrChallengeNotFound, id)
	}
	switch ch.Status {
	case domain.ChallengeClaimed:
		return p, false, nil
	case domain.ChallengeCompleted:
	default:
		return p, false, fmt.Errorf("%w: %s is %s", domain.ErrNotClaimable, id, ch.Status)
	}

	next, paid, err := c.ledger.Append(p, domain.ActionChallengeComplete, ch.Reward, EntryOptions{
		ReferenceID: id,
		At:          now,
	})
	if err != nil {
		return p, false, fmt.Errorf("claim %s: %w", id, err)
	}

	// The ledger entry may already exist from an interrupted claim;
	// the status still has to catch up.
	next = next.Clone()
	ch.Status = domain.ChallengeClaimed
	next.Challenges[id] = ch
	return next, paid, nil
}

func advance(ch domain.ChallengeState, amount int64) domain.ChallengeState {
	ch.Progress += amount
	if ch.Progress >= ch.Target {
		ch.Progress = ch.Target
		ch.Status = domain.ChallengeCompleted
	}
	return ch
}
