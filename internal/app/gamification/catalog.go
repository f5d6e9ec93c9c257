// Package gamification implements the points engine: an action catalog, an
// append-only points ledger, level and streak derivation, achievements and
// time-boxed challenges, orchestrated by Engine.
//
// Every operation takes a Profile value and returns a new one; nothing here
// mutates a snapshot another caller can see.
package gamification

import (
	"fmt"

	"github.com/puntos-app/puntos/internal/domain"
)

// CatalogVersion identifies the point table below. Bump on any value change.
const CatalogVersion = 3

// ActionRule is how the ledger treats one (kind, variant).
type ActionRule struct {
	Kind    domain.ActionKind `json:"kind"`
	Variant domain.Variant    `json:"variant,omitempty"`
	Points  int64             `json:"points"`

	// Idempotent kinds are recorded at most once per profile, or once per
	// reference id when RequiresReference is set.
	Idempotent        bool `json:"idempotent"`
	RequiresReference bool `json:"requiresReference"`

	// Variable kinds take their amount from the caller (challenge reward,
	// achievement bonus, redemption cost) instead of Points.
	Variable bool `json:"variable"`

	// Spend kinds produce negative deltas.
	Spend bool `json:"spend"`
}

type ruleKey struct {
	kind    domain.ActionKind
	variant domain.Variant
}

// Catalog is the closed table of action rules.
type Catalog struct {
	rules []ActionRule
	index map[ruleKey]int
}

// DefaultCatalog returns the registry used by the app.
func DefaultCatalog() *Catalog {
	return NewCatalog([]ActionRule{
		{Kind: domain.ActionWelcome, Points: 100, Idempotent: true},
		{Kind: domain.ActionProfileComplete, Points: 50, Idempotent: true},
		{Kind: domain.ActionFirstReferral, Points: 100, RequiresReference: true}, // one per referred user
		{Kind: domain.ActionDailyLogin, Points: 5},
		{Kind: domain.ActionSharePromo, Points: 25},
		{Kind: domain.ActionVerifyPromo, Points: 15},
		{Kind: domain.ActionFavoritePromo, Variant: domain.VariantPromo, Points: 10},
		{Kind: domain.ActionFavoritePromo, Variant: domain.VariantPriceResult, Points: 20},
		{Kind: domain.ActionPriceSearch, Points: 15},
		{Kind: domain.ActionCreateAlert, Points: 25},
		{Kind: domain.ActionChallengeComplete, Idempotent: true, RequiresReference: true, Variable: true},
		{Kind: domain.ActionAchievementUnlock, Idempotent: true, RequiresReference: true, Variable: true},
		{Kind: domain.ActionRedeemReward, RequiresReference: true, Variable: true, Spend: true},
	})
}

// NewCatalog indexes rules. Later duplicates of a (kind, variant) are ignored.
func NewCatalog(rules []ActionRule) *Catalog {
	c := &Catalog{index: make(map[ruleKey]int, len(rules))}
	for _, r := range rules {
		k := ruleKey{r.Kind, r.Variant}
		if _, dup := c.index[k]; dup {
			continue
		}
		c.index[k] = len(c.rules)
		c.rules = append(c.rules, r)
	}
	return c
}

// Lookup resolves a rule. An empty variant falls back to the kind's first
// listed variant, so favoritePromo alone means favoritePromo/promo.
func (c *Catalog) Lookup(kind domain.ActionKind, variant domain.Variant) (ActionRule, error) {
	if i, ok := c.index[ruleKey{kind, variant}]; ok {
		return c.rules[i], nil
	}
	if variant == domain.VariantNone {
		for _, r := range c.rules {
			if r.Kind == kind {
				return r, nil
			}
		}
	}
	if variant != domain.VariantNone {
		return ActionRule{}, fmt.Errorf("%w: %s/%s", domain.ErrUnknownAction, kind, variant)
	}
	return ActionRule{}, fmt.Errorf("%w: %s", domain.ErrUnknownAction, kind)
}

// Rules returns every rule in registry order.
func (c *Catalog) Rules() []ActionRule {
	out := make([]ActionRule, len(c.rules))
	copy(out, c.rules)
	return out
}
