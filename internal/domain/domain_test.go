package domain_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
)

// ─── Date ───────────────────────────────────────────────────────────────────

func TestDateJSON(t *testing.T) {
	var holder struct {
		D domain.Date `json:"d"`
	}
	if err := json.Unmarshal([]byte(`{"d":"2026-03-02"}`), &holder); err != nil {
		t.Fatal(err)
	}
	if holder.D != (domain.Date{Year: 2026, Month: time.March, Day: 2}) {
		t.Errorf("parsed %+v", holder.D)
	}
	b, _ := json.Marshal(holder)
	if string(b) != `{"d":"2026-03-02"}` {
		t.Errorf("marshal = %s", b)
	}

	for _, in := range []string{`{"d":null}`, `{"d":""}`} {
		holder.D = domain.Date{Year: 1}
		if err := json.Unmarshal([]byte(in), &holder); err != nil || !holder.D.IsZero() {
			t.Errorf("%s -> %+v, %v", in, holder.D, err)
		}
	}
	b, _ = json.Marshal(holder)
	if string(b) != `{"d":null}` {
		t.Errorf("zero date marshal = %s", b)
	}

	for _, in := range []string{`{"d":"02/03/2026"}`, `{"d":20260302}`} {
		if err := json.Unmarshal([]byte(in), &holder); err == nil {
			t.Errorf("%s: expected error", in)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d, err := domain.ParseDate("2026-02-28")
	if err != nil {
		t.Fatal(err)
	}
	if got := d.AddDays(1).String(); got != "2026-03-01" {
		t.Errorf("AddDays(1) = %s", got)
	}
	if got := d.AddDays(-59).String(); got != "2025-12-31" {
		t.Errorf("AddDays(-59) = %s", got)
	}
	if n := d.AddDays(10).DaysSince(d); n != 10 {
		t.Errorf("DaysSince = %d, want 10", n)
	}
	if !d.Before(d.AddDays(1)) || d.After(d) {
		t.Error("ordering broken")
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	instant := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	if got := domain.DateOf(instant.In(loc)).String(); got != "2026-03-02" {
		t.Errorf("DateOf in UTC-5 = %s", got)
	}
}

// ─── Profile ────────────────────────────────────────────────────────────────

func TestProfileCloneIsDeep(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	p := domain.NewProfile("ana", now)
	p.Achievements = append(p.Achievements, domain.Achievement{ID: "a", UnlockedAt: &now})
	p.Challenges["c"] = domain.ChallengeState{ID: "c", Progress: 1}
	p.Ledger = append(p.Ledger, domain.PointsHistoryEntry{ID: "e1", Delta: 5})

	cp := p.Clone()
	later := now.Add(time.Hour)
	*cp.Achievements[0].UnlockedAt = later
	cp.Challenges["c"] = domain.ChallengeState{ID: "c", Progress: 9}
	cp.Ledger[0].Delta = 99

	if !p.Achievements[0].UnlockedAt.Equal(now) {
		t.Error("clone shares achievement timestamps")
	}
	if p.Challenges["c"].Progress != 1 {
		t.Error("clone shares challenge map")
	}
	if p.Ledger[0].Delta != 5 {
		t.Error("clone shares ledger")
	}
}

func TestProfileHelpers(t *testing.T) {
	p := domain.NewProfile("ana", time.Now())
	if p.HasCustomAvatar() {
		t.Error("default avatar counted as custom")
	}
	p.Avatar = "gato"
	if !p.HasCustomAvatar() {
		t.Error("custom avatar not detected")
	}

	p.Ledger = []domain.PointsHistoryEntry{
		{ActionKind: domain.ActionSharePromo},
		{ActionKind: domain.ActionSharePromo},
		{ActionKind: domain.ActionVerifyPromo},
	}
	if n := p.CountAction(domain.ActionSharePromo); n != 2 {
		t.Errorf("CountAction = %d", n)
	}
}

func TestChallengeProgressPct(t *testing.T) {
	tests := []struct {
		progress, target int64
		want             float64
	}{
		{0, 4, 0},
		{1, 4, 25},
		{4, 4, 100},
		{0, 0, 100},
	}
	for _, tt := range tests {
		c := domain.ChallengeState{Progress: tt.progress, Target: tt.target}
		if got := c.ProgressPct(); got != tt.want {
			t.Errorf("ProgressPct(%d/%d) = %v, want %v", tt.progress, tt.target, got, tt.want)
		}
	}
}

func TestActionKindValid(t *testing.T) {
	if !domain.ActionRedeemReward.Valid() {
		t.Error("redeemReward not valid")
	}
	if domain.ActionKind("teleport").Valid() {
		t.Error("unknown kind reported valid")
	}
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInsufficientPoints, "insufficient_points"},
		{fmt.Errorf("claim x: %w", domain.ErrNotClaimable), "not_claimable"},
		{fmt.Errorf("profile a: %w", fmt.Errorf("%w: bad", domain.ErrCorruptState)), "corrupt_state"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		if got := domain.ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
