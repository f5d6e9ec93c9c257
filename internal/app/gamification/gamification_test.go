package gamification_test

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// welcomed returns a profile holding only the welcome entry.
func welcomed(t *testing.T, l *gamification.Ledger) domain.Profile {
	t.Helper()
	p, ok, err := l.Append(domain.NewProfile("u1", t0), domain.ActionWelcome, 100, gamification.EntryOptions{At: t0})
	if err != nil || !ok {
		t.Fatalf("welcome: ok=%v err=%v", ok, err)
	}
	return p
}

func date(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevel_Boundaries(t *testing.T) {
	tests := []struct {
		points int64
		level  domain.Level
		toNext int64
	}{
		{0, domain.LevelNovato, 500},
		{499, domain.LevelNovato, 1},
		{500, domain.LevelExperto, 1500},
		{1999, domain.LevelExperto, 1},
		{2000, domain.LevelLeyenda, 3000},
		{4999, domain.LevelLeyenda, 1},
		{5000, domain.LevelLeyenda, 0},
		{1_000_000, domain.LevelLeyenda, 0},
	}
	for _, tt := range tests {
		info := gamification.LevelOf(tt.points)
		if info.Level != tt.level {
			t.Errorf("LevelOf(%d).Level = %s, want %s", tt.points, info.Level, tt.level)
		}
		if info.PointsToNext != tt.toNext {
			t.Errorf("LevelOf(%d).PointsToNext = %d, want %d", tt.points, info.PointsToNext, tt.toNext)
		}
		if info.ProgressFraction < 0 || info.ProgressFraction > 1 {
			t.Errorf("LevelOf(%d).ProgressFraction = %v out of [0,1]", tt.points, info.ProgressFraction)
		}
	}
}

func TestLevel_Progress(t *testing.T) {
	info := gamification.LevelOf(250)
	if info.ProgressFraction != 0.5 {
		t.Errorf("progress at 250 = %v, want 0.5", info.ProgressFraction)
	}
	if top := gamification.LevelOf(5000); top.ProgressFraction != 1 {
		t.Errorf("progress at max = %v, want 1", top.ProgressFraction)
	}
}

func TestLevel_Fallback(t *testing.T) {
	for _, v := range []float64{-1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		info := gamification.LevelOfValue(v)
		if info.Level != domain.LevelNovato || info.ProgressFraction != 0 {
			t.Errorf("LevelOfValue(%v) = %+v, want Novato at 0", v, info)
		}
	}
	if got := gamification.LevelOfValue(2500.9).Level; got != domain.LevelLeyenda {
		t.Errorf("LevelOfValue(2500.9) = %s", got)
	}
}

func TestLevel_TiersContiguous(t *testing.T) {
	tiers := gamification.Tiers()
	if tiers[0].Min != 0 {
		t.Errorf("first tier starts at %d", tiers[0].Min)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].Min != tiers[i-1].Max {
			t.Errorf("gap between %s and %s", tiers[i-1].Level, tiers[i].Level)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestStreak_Transitions(t *testing.T) {
	last := date(t, "2026-03-02")
	base := gamification.StreakState{LastActiveDate: last, StreakDays: 4, LongestStreak: 6}

	tests := []struct {
		name    string
		start   gamification.StreakState
		today   domain.Date
		days    int
		longest int
		lastOut domain.Date
	}{
		{"first activity", gamification.StreakState{}, last, 1, 1, last},
		{"same day", base, last, 4, 6, last},
		{"next day", base, last.AddDays(1), 5, 6, last.AddDays(1)},
		{"gap resets", base, last.AddDays(3), 1, 6, last.AddDays(3)},
		{"earlier date ignored", base, last.AddDays(-2), 4, 6, last},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gamification.Touch(tt.start, tt.today)
			if got.StreakDays != tt.days || got.LongestStreak != tt.longest || got.LastActiveDate != tt.lastOut {
				t.Errorf("Touch = %+v, want days=%d longest=%d last=%s", got, tt.days, tt.longest, tt.lastOut)
			}
		})
	}
}

func TestStreak_LongestTracksRun(t *testing.T) {
	s := gamification.StreakState{}
	day := date(t, "2026-02-27")
	for i := 0; i < 8; i++ {
		s = gamification.Touch(s, day.AddDays(i))
	}
	if s.StreakDays != 8 || s.LongestStreak != 8 {
		t.Fatalf("after 8 days: %+v", s)
	}
	s = gamification.Touch(s, day.AddDays(10))
	if s.StreakDays != 1 || s.LongestStreak != 8 {
		t.Errorf("after break: %+v", s)
	}
}

func TestStreak_MonthBoundary(t *testing.T) {
	s := gamification.Touch(gamification.StreakState{}, date(t, "2026-02-28"))
	s = gamification.Touch(s, date(t, "2026-03-01"))
	if s.StreakDays != 2 {
		t.Errorf("Feb 28 -> Mar 1 streak = %d, want 2", s.StreakDays)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalog & Ledger Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCatalog_Variants(t *testing.T) {
	c := gamification.DefaultCatalog()

	tests := []struct {
		kind    domain.ActionKind
		variant domain.Variant
		points  int64
	}{
		{domain.ActionFavoritePromo, domain.VariantPromo, 10},
		{domain.ActionFavoritePromo, domain.VariantPriceResult, 20},
		{domain.ActionFavoritePromo, domain.VariantNone, 10},
		{domain.ActionSharePromo, domain.VariantNone, 25},
		{domain.ActionWelcome, domain.VariantNone, 100},
	}
	for _, tt := range tests {
		rule, err := c.Lookup(tt.kind, tt.variant)
		if err != nil {
			t.Fatalf("Lookup(%s, %q): %v", tt.kind, tt.variant, err)
		}
		if rule.Points != tt.points {
			t.Errorf("Lookup(%s, %q).Points = %d, want %d", tt.kind, tt.variant, rule.Points, tt.points)
		}
	}

	if _, err := c.Lookup("teleport", domain.VariantNone); !errors.Is(err, domain.ErrUnknownAction) {
		t.Errorf("unknown kind err = %v", err)
	}
	if _, err := c.Lookup(domain.ActionSharePromo, domain.VariantPriceResult); !errors.Is(err, domain.ErrUnknownAction) {
		t.Errorf("unknown variant err = %v", err)
	}
}

func TestCatalog_CoversEveryKind(t *testing.T) {
	c := gamification.DefaultCatalog()
	for _, k := range domain.ActionKinds() {
		if _, err := c.Lookup(k, domain.VariantNone); err != nil {
			t.Errorf("kind %s has no rule: %v", k, err)
		}
	}
}

func TestLedger_IdempotentWelcome(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)

	again, ok, err := l.Append(p, domain.ActionWelcome, 100, gamification.EntryOptions{At: t0})
	if err != nil {
		t.Fatalf("second welcome: %v", err)
	}
	if ok || again.Points != 100 || len(again.Ledger) != 1 {
		t.Errorf("second welcome appended: ok=%v points=%d entries=%d", ok, again.Points, len(again.Ledger))
	}
}

func TestLedger_ReferenceDeduplication(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)

	p, ok, err := l.Append(p, domain.ActionFirstReferral, 100, gamification.EntryOptions{ReferenceID: "amigo-1", At: t0})
	if err != nil || !ok {
		t.Fatalf("first referral: ok=%v err=%v", ok, err)
	}
	p, ok, _ = l.Append(p, domain.ActionFirstReferral, 100, gamification.EntryOptions{ReferenceID: "amigo-1", At: t0})
	if ok {
		t.Error("same referral appended twice")
	}
	p, ok, _ = l.Append(p, domain.ActionFirstReferral, 100, gamification.EntryOptions{ReferenceID: "amigo-2", At: t0})
	if !ok {
		t.Error("second distinct referral rejected")
	}
	if p.Points != 300 {
		t.Errorf("points = %d, want 300", p.Points)
	}

	if _, _, err := l.Append(p, domain.ActionFirstReferral, 100, gamification.EntryOptions{At: t0}); !errors.Is(err, domain.ErrMissingReference) {
		t.Errorf("missing ref err = %v", err)
	}
}

func TestLedger_Errors(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)

	tests := []struct {
		name  string
		kind  domain.ActionKind
		delta int64
		ref   string
		want  error
	}{
		{"negative earn", domain.ActionSharePromo, -5, "", domain.ErrInvalidAmount},
		{"positive spend", domain.ActionRedeemReward, 50, "r1", domain.ErrInvalidAmount},
		{"overspend", domain.ActionRedeemReward, -101, "r1", domain.ErrInsufficientPoints},
		{"unknown kind", "fly", 5, "", domain.ErrUnknownAction},
		{"overflow", domain.ActionChallengeComplete, math.MaxInt64, "c1", domain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := l.Append(p, tt.kind, tt.delta, gamification.EntryOptions{ReferenceID: tt.ref, At: t0})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if ok || !reflect.DeepEqual(got, p) {
				t.Error("rejected append changed the profile")
			}
		})
	}
}

func TestLedger_SpendExactBalance(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)

	p, ok, err := l.Append(p, domain.ActionRedeemReward, -100, gamification.EntryOptions{ReferenceID: "cupon-1", At: t0})
	if err != nil || !ok {
		t.Fatalf("spend: ok=%v err=%v", ok, err)
	}
	if p.Points != 0 {
		t.Errorf("points = %d, want 0", p.Points)
	}
	if got := gamification.LedgerTotal(p.Ledger); got != p.Points {
		t.Errorf("ledger total %d != points %d", got, p.Points)
	}
}

func TestLedger_DoesNotMutateInput(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)
	before := p.Clone()

	if _, _, err := l.Append(p, domain.ActionSharePromo, 25, gamification.EntryOptions{At: t0}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p, before) {
		t.Error("Append modified its input profile")
	}
}

func TestHistory_FilterAndRestart(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)
	p, _, _ = l.Append(p, domain.ActionSharePromo, 25, gamification.EntryOptions{At: t0})
	p, _, _ = l.Append(p, domain.ActionRedeemReward, -40, gamification.EntryOptions{ReferenceID: "r1", At: t0})

	tests := []struct {
		filter domain.HistoryFilter
		count  int
		total  int64
	}{
		{domain.HistoryAll, 3, 85},
		{domain.HistoryEarned, 2, 125},
		{domain.HistorySpent, 1, -40},
	}
	for _, tt := range tests {
		seq := gamification.History(p, tt.filter)
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		if len(first) != tt.count || gamification.LedgerTotal(first) != tt.total {
			t.Errorf("%s: %d entries totalling %d, want %d totalling %d",
				tt.filter, len(first), gamification.LedgerTotal(first), tt.count, tt.total)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("%s: second iteration differs", tt.filter)
		}
	}
}

func TestHistory_EarlyStop(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	p := welcomed(t, l)
	p, _, _ = l.Append(p, domain.ActionSharePromo, 25, gamification.EntryOptions{At: t0})

	n := 0
	for range gamification.History(p, domain.HistoryAll) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("iterated %d entries after break", n)
	}
}

func TestAmountConversion(t *testing.T) {
	valid := []struct {
		in   json.Number
		want int64
	}{
		{"40", 40},
		{"40.0", 40},
		{"-15", -15},
		{"1e3", 1000},
	}
	for _, tt := range valid {
		got, err := gamification.AmountFromNumber(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("AmountFromNumber(%s) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}

	for _, in := range []json.Number{"12.5", "abc", "1e300"} {
		if _, err := gamification.AmountFromNumber(in); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("AmountFromNumber(%s) err = %v, want ErrInvalidAmount", in, err)
		}
	}
	for _, f := range []float64{math.NaN(), math.Inf(1), 0.1} {
		if _, err := gamification.AmountFromFloat(f); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("AmountFromFloat(%v) err = %v", f, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestAchievement_SingleUnlock(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	u := gamification.NewUnlocker(l, gamification.DefaultAchievements())
	p := welcomed(t, l)
	p.Avatar = "gato"

	p, unlocked, err := u.Evaluate(p, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 1 || unlocked[0].ID != "avatar_personalizado" {
		t.Fatalf("unlocked = %+v", unlocked)
	}
	if p.Points != 125 {
		t.Errorf("points = %d, want 125", p.Points)
	}
	if p.CountAction(domain.ActionAchievementUnlock) != 1 {
		t.Errorf("achievementUnlock entries = %d", p.CountAction(domain.ActionAchievementUnlock))
	}
	last := p.Ledger[len(p.Ledger)-1]
	if last.Delta != unlocked[0].PointsAwarded || last.ReferenceID != "avatar_personalizado" {
		t.Errorf("ledger entry = %+v", last)
	}
	if unlocked[0].UnlockedAt == nil || !unlocked[0].UnlockedAt.Equal(t0) {
		t.Errorf("UnlockedAt = %v", unlocked[0].UnlockedAt)
	}

	again, more, err := u.Evaluate(p, t0.Add(time.Hour))
	if err != nil || len(more) != 0 || again.Points != p.Points {
		t.Errorf("second evaluate unlocked %d, points %d, err %v", len(more), again.Points, err)
	}
}

func TestAchievement_ChainedLevelUnlock(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	defs := []gamification.AchievementDef{
		// Listed first so the chain needs a second pass.
		{
			Achievement: domain.Achievement{ID: "rich", PointsAwarded: 0},
			Predicate:   func(p domain.Profile) bool { return p.Points >= 500 },
		},
		{
			Achievement: domain.Achievement{ID: "sharer", PointsAwarded: 20},
			Predicate:   func(p domain.Profile) bool { return p.CountAction(domain.ActionSharePromo) > 0 },
		},
	}
	u := gamification.NewUnlocker(l, defs)

	p, _, _ := l.Append(domain.NewProfile("u1", t0), domain.ActionChallengeComplete, 480, gamification.EntryOptions{ReferenceID: "c1", At: t0})
	p, _, _ = l.Append(p, domain.ActionSharePromo, 0, gamification.EntryOptions{At: t0})

	p, unlocked, err := u.Evaluate(p, t0)
	if err != nil {
		t.Fatal(err)
	}
	if len(unlocked) != 2 || unlocked[0].ID != "sharer" || unlocked[1].ID != "rich" {
		t.Fatalf("unlocked = %+v", unlocked)
	}
	if p.Level != domain.LevelExperto {
		t.Errorf("level = %s, want Experto", p.Level)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Tests
// ═══════════════════════════════════════════════════════════════════════════

func newChallenge(t *testing.T) (*gamification.ChallengeTracker, domain.Profile) {
	t.Helper()
	l := gamification.NewLedger(gamification.DefaultCatalog())
	c := gamification.NewChallengeTracker(l)
	p, err := c.Assign(welcomed(t, l), domain.ChallengeDef{
		ID: "compartir_3", Title: "Comparte 3", Action: domain.ActionSharePromo,
		Target: 3, Reward: 100, ExpiresAt: t0.Add(48 * time.Hour),
	}, t0)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	return c, p
}

func TestChallenge_Lifecycle(t *testing.T) {
	c, p := newChallenge(t)

	p, err := c.Advance(p, "compartir_3", 2, t0)
	if err != nil {
		t.Fatal(err)
	}
	if ch := p.Challenges["compartir_3"]; ch.Progress != 2 || ch.Status != domain.ChallengeActive {
		t.Fatalf("after 2: %+v", ch)
	}

	if _, _, err := c.Claim(p, "compartir_3", t0); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("early claim err = %v", err)
	}

	p, err = c.Advance(p, "compartir_3", 5, t0)
	if err != nil {
		t.Fatal(err)
	}
	if ch := p.Challenges["compartir_3"]; ch.Progress != 3 || ch.Status != domain.ChallengeCompleted {
		t.Fatalf("after overshoot: %+v", ch)
	}

	p, paid, err := c.Claim(p, "compartir_3", t0)
	if err != nil || !paid {
		t.Fatalf("claim: paid=%v err=%v", paid, err)
	}
	if p.Points != 200 || p.Challenges["compartir_3"].Status != domain.ChallengeClaimed {
		t.Errorf("after claim: points=%d status=%s", p.Points, p.Challenges["compartir_3"].Status)
	}

	again, paid, err := c.Claim(p, "compartir_3", t0)
	if err != nil || paid || again.Points != 200 {
		t.Errorf("double claim: paid=%v points=%d err=%v", paid, again.Points, err)
	}
}

func TestChallenge_Expiry(t *testing.T) {
	c, p := newChallenge(t)
	late := t0.Add(72 * time.Hour)

	p, expired := c.Expire(p, late)
	if !expired || p.Challenges["compartir_3"].Status != domain.ChallengeExpired {
		t.Fatalf("expire: moved=%v status=%s", expired, p.Challenges["compartir_3"].Status)
	}

	after, err := c.Advance(p, "compartir_3", 1, late)
	if err != nil || after.Challenges["compartir_3"].Progress != 0 {
		t.Errorf("advance after expiry: progress=%d err=%v", after.Challenges["compartir_3"].Progress, err)
	}
	if _, _, err := c.Claim(p, "compartir_3", late); !errors.Is(err, domain.ErrNotClaimable) {
		t.Errorf("claim expired err = %v", err)
	}
}

func TestChallenge_CompletedSurvivesExpiry(t *testing.T) {
	c, p := newChallenge(t)
	p, _ = c.Advance(p, "compartir_3", 3, t0)

	_, paid, err := c.Claim(p, "compartir_3", t0.Add(72*time.Hour))
	if err != nil || !paid {
		t.Fatalf("claim after deadline: paid=%v err=%v", paid, err)
	}
}

func TestChallenge_AdvanceForAction(t *testing.T) {
	c, p := newChallenge(t)

	var completed []domain.ChallengeState
	for i := 0; i < 3; i++ {
		p, completed = c.AdvanceForAction(p, domain.ActionSharePromo, t0)
	}
	if len(completed) != 1 || completed[0].ID != "compartir_3" {
		t.Fatalf("completed = %+v", completed)
	}

	p, completed = c.AdvanceForAction(p, domain.ActionSharePromo, t0)
	if len(completed) != 0 || p.Challenges["compartir_3"].Progress != 3 {
		t.Errorf("completed challenge advanced again: %+v", p.Challenges["compartir_3"])
	}
}

func TestChallenge_Errors(t *testing.T) {
	c, p := newChallenge(t)

	if _, err := c.Advance(p, "nope", 1, t0); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Errorf("advance unknown err = %v", err)
	}
	if _, err := c.Advance(p, "compartir_3", 0, t0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("advance 0 err = %v", err)
	}
	if _, _, err := c.Claim(p, "nope", t0); !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Errorf("claim unknown err = %v", err)
	}

	bad := []domain.ChallengeDef{
		{ID: "", Target: 1, ExpiresAt: t0},
		{ID: "x", Target: 0, ExpiresAt: t0},
		{ID: "x", Target: 1, Reward: -1, ExpiresAt: t0},
		{ID: "x", Target: 1},
	}
	for _, def := range bad {
		if _, err := c.Assign(p, def, t0); !errors.Is(err, domain.ErrInvalidChallenge) {
			t.Errorf("Assign(%+v) err = %v", def, err)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Codec Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestCodec_RoundTrip(t *testing.T) {
	c, p := newChallenge(t)
	p, _ = c.Advance(p, "compartir_3", 3, t0)
	p, _, _ = c.Claim(p, "compartir_3", t0)
	p = withBadges(t, p)
	p.StreakDays, p.LongestStreak, p.LastActiveDate = 2, 5, date(t, "2026-03-02")
	p.Version = 7

	b, err := gamification.EncodeProfile(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := gamification.DecodeProfile(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
}

// withBadges unlocks "a" (+10) and then "b" (+20) the way the unlocker
// does, one ledger entry per achievement.
func withBadges(t *testing.T, p domain.Profile) domain.Profile {
	t.Helper()
	l := gamification.NewLedger(gamification.DefaultCatalog())
	for i, id := range []string{"a", "b"} {
		at := t0.Add(time.Duration(i) * time.Hour)
		bonus := int64(10 * (i + 1))
		next, _, err := l.Append(p, domain.ActionAchievementUnlock, bonus, gamification.EntryOptions{ReferenceID: id, At: at})
		if err != nil {
			t.Fatalf("unlock %s: %v", id, err)
		}
		p = next.Clone()
		p.Achievements = append(p.Achievements, domain.Achievement{ID: id, Title: id, PointsAwarded: bonus, UnlockedAt: &at})
	}
	return p
}

func TestCodec_Corrupt(t *testing.T) {
	l := gamification.NewLedger(gamification.DefaultCatalog())
	good := withBadges(t, welcomed(t, l))
	if err := gamification.ValidateProfile(good); err != nil {
		t.Fatalf("baseline profile invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *domain.Profile)
	}{
		{"points mismatch", func(p *domain.Profile) { p.Points = 999 }},
		{"missing user", func(p *domain.Profile) { p.UserID = "" }},
		{"negative streak", func(p *domain.Profile) { p.StreakDays = -1 }},
		{"unknown action", func(p *domain.Profile) { p.Ledger[0].ActionKind = "bogus" }},
		{"progress over target", func(p *domain.Profile) {
			p.Challenges["c"] = domain.ChallengeState{ID: "c", Target: 1, Progress: 2, Status: domain.ChallengeActive}
		}},
		{"claimed without payout", func(p *domain.Profile) {
			p.Challenges["c"] = domain.ChallengeState{ID: "c", Target: 1, Progress: 1, Status: domain.ChallengeClaimed}
		}},
		{"bad status", func(p *domain.Profile) {
			p.Challenges["c"] = domain.ChallengeState{ID: "c", Target: 1, Status: "Paused"}
		}},
		{"achievements out of order", func(p *domain.Profile) {
			earlier := t0.Add(-time.Hour)
			p.Achievements[1].UnlockedAt = &earlier
		}},
		{"achievement without unlock entry", func(p *domain.Profile) {
			at := t0.Add(2 * time.Hour)
			p.Achievements = append(p.Achievements, domain.Achievement{ID: "c", UnlockedAt: &at})
		}},
		{"bonus differs from unlock entry", func(p *domain.Profile) { p.Achievements[0].PointsAwarded = 99 }},
		{"unlock entry without achievement", func(p *domain.Profile) { p.Achievements = p.Achievements[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := good.Clone()
			tt.mutate(&p)
			b, err := json.Marshal(p)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := gamification.DecodeProfile(b); !errors.Is(err, domain.ErrCorruptState) {
				t.Errorf("err = %v, want ErrCorruptState", err)
			}
		})
	}

	if _, err := gamification.DecodeProfile([]byte("{not json")); !errors.Is(err, domain.ErrCorruptState) {
		t.Errorf("garbage err = %v", err)
	}
}
