package gamification

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/puntos-app/puntos/internal/domain"
)

// Ledger appends point deltas to a profile's history.
// Points are always the sum of the ledger; entries are never edited.
type Ledger struct {
	catalog *Catalog
	newID   func() string
}

// NewLedger creates a ledger validating against catalog.
func NewLedger(catalog *Catalog) *Ledger {
	return &Ledger{catalog: catalog, newID: uuid.NewString}
}

// EntryOptions carries the optional parts of a ledger entry.
type EntryOptions struct {
	Variant     domain.Variant
	ReferenceID string
	At          time.Time
}

// Append records delta for kind and returns the updated profile.
// appended is false when the entry is a duplicate (idempotent kind already
// present, or the same kind+reference already recorded); the profile is then
// returned unchanged and no error is reported.
func (l *Ledger) Append(p domain.Profile, kind domain.ActionKind, delta int64, opts EntryOptions) (domain.Profile, bool, error) {
	rule, err := l.catalog.Lookup(kind, opts.Variant)
	if err != nil {
		return p, false, err
	}
	if rule.Spend && delta >= 0 {
		return p, false, fmt.Errorf("%w: %s needs a negative delta, got %d", domain.ErrInvalidAmount, kind, delta)
	}
	if !rule.Spend && delta < 0 {
		return p, false, fmt.Errorf("%w: %s cannot have a negative delta, got %d", domain.ErrInvalidAmount, kind, delta)
	}
	if rule.RequiresReference && opts.ReferenceID == "" {
		return p, false, fmt.Errorf("%w: %s", domain.ErrMissingReference, kind)
	}

	if l.isDuplicate(p, rule, opts.ReferenceID) {
		return p, false, nil
	}

	if delta > 0 && p.Points > math.MaxInt64-delta {
		return p, false, fmt.Errorf("%w: total would overflow", domain.ErrInvalidAmount)
	}
	if p.Points+delta < 0 {
		return p, false, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientPoints, p.Points, -delta)
	}

	next := p.Clone()
	next.Ledger = append(next.Ledger, domain.PointsHistoryEntry{
		ID:          l.newID(),
		ActionKind:  kind,
		Variant:     rule.Variant,
		Delta:       delta,
		Timestamp:   opts.At,
		ReferenceID: opts.ReferenceID,
	})
	next.Points += delta
	return next, true, nil
}

func (l *Ledger) isDuplicate(p domain.Profile, rule ActionRule, ref string) bool {
	for _, e := range p.Ledger {
		if e.ActionKind != rule.Kind {
			continue
		}
		if ref != "" && e.ReferenceID == ref {
			return true
		}
		if rule.Idempotent && !rule.RequiresReference {
			return true
		}
	}
	return false
}

// History yields ledger entries in insertion order. The sequence reads from
// the profile value it was created with, so it can be ranged over repeatedly.
func History(p domain.Profile, filter domain.HistoryFilter) iter.Seq[domain.PointsHistoryEntry] {
	entries := p.Ledger
	return func(yield func(domain.PointsHistoryEntry) bool) {
		for _, e := range entries {
			if !filter.Match(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// LedgerTotal replays the ledger.
func LedgerTotal(entries []domain.PointsHistoryEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Delta
	}
	return total
}

// AmountFromFloat converts an untrusted numeric amount to an integer delta.
func AmountFromFloat(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not finite", domain.ErrInvalidAmount, f)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", domain.ErrInvalidAmount, f)
	}
	if f > math.MaxInt64/2 || f < math.MinInt64/2 {
		return 0, fmt.Errorf("%w: %v is out of range", domain.ErrInvalidAmount, f)
	}
	return int64(f), nil
}

// AmountFromNumber converts a JSON number to an integer delta.
func AmountFromNumber(n json.Number) (int64, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, n.String())
	}
	return AmountFromFloat(f)
}
