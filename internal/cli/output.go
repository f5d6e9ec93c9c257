package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/domain"
)

// printProfile renders a profile summary followed by its challenges.
func printProfile(out io.Writer, p domain.Profile, achievementsTotal int) error {
	info := gamification.LevelOf(p.Points)

	name := p.UserID
	if p.DisplayName != "" {
		name = fmt.Sprintf("%s (%s)", p.UserID, p.DisplayName)
	}
	fmt.Fprintf(out, "User:          %s\n", name)
	fmt.Fprintf(out, "Points:        %d\n", p.Points)
	fmt.Fprintf(out, "Level:         %s\n", formatLevel(info))

	last := "never"
	if !p.LastActiveDate.IsZero() {
		last = p.LastActiveDate.String()
	}
	fmt.Fprintf(out, "Streak:        %d day(s), best %d, last active %s\n", p.StreakDays, p.LongestStreak, last)
	fmt.Fprintf(out, "Achievements:  %d/%d\n", len(p.Achievements), achievementsTotal)

	if len(p.Challenges) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	return printChallenges(out, p)
}

func formatLevel(info domain.LevelInfo) string {
	if info.PointsToNext == 0 {
		return fmt.Sprintf("%s (max)", info.Level)
	}
	return fmt.Sprintf("%s %s %.0f%%, %d to next", info.Level, progressBar(info.ProgressFraction, 20), info.ProgressFraction*100, info.PointsToNext)
}

func progressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	filled = max(0, min(width, filled))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func printChallenges(out io.Writer, p domain.Profile) error {
	ids := make([]string, 0, len(p.Challenges))
	for id := range p.Challenges {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHALLENGE\tSTATUS\tPROGRESS\tREWARD\tEXPIRES")
	for _, id := range ids {
		ch := p.Challenges[id]
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
			ch.ID,
			ch.Status,
			ch.Progress, ch.Target,
			ch.Reward,
			ch.ExpiresAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

func printHistory(out io.Writer, entries []domain.PointsHistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No ledger entries.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tDELTA\tREFERENCE")
	for _, e := range entries {
		action := string(e.ActionKind)
		if e.Variant != domain.VariantNone {
			action += "/" + string(e.Variant)
		}
		fmt.Fprintf(w, "%s\t%s\t%+d\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04"),
			action,
			e.Delta,
			e.ReferenceID,
		)
	}
	fmt.Fprintf(w, "\t\t%+d\t(total)\n", gamification.LedgerTotal(entries))
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
