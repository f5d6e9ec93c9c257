package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/daemon"
)

func init() {
	rootCmd.AddCommand(levelCmd, catalogCmd, usersCmd)
}

var levelCmd = &cobra.Command{
	Use:   "level <points>",
	Short: "Show the level for a point total",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid points %q: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, formatLevel(gamification.LevelOfValue(v)))
		fmt.Fprintln(out)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tFROM\tTO")
		for _, t := range gamification.Tiers() {
			fmt.Fprintf(w, "%s\t%d\t%d\n", t.Level, t.Min, t.Max)
		}
		return w.Flush()
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List point rules and achievements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACTION\tVARIANT\tPOINTS\tRULE")
		for _, r := range gamification.DefaultCatalog().Rules() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Kind, orDash(string(r.Variant)), formatPoints(r), ruleFlags(r))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(out)

		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACHIEVEMENT\tPOINTS\tDESCRIPTION")
		for _, a := range gamification.DefaultAchievements() {
			fmt.Fprintf(w, "%s %s\t%d\t%s\n", a.Icon, a.ID, a.PointsAwarded, a.Description)
		}
		return w.Flush()
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List stored profiles, most recently updated first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			ids, err := d.Store.UserIDs(cmd.Context())
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No profiles yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tPOINTS\tLEVEL\tSTREAK\tVERSION")
			for _, id := range ids {
				p, err := d.Engine.Profile(cmd.Context(), id)
				if err != nil {
					fmt.Fprintf(w, "%s\t-\t-\t-\t%s\n", id, err)
					continue
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\tv%d\n", p.UserID, p.Points, p.Level, p.StreakDays, p.Version)
			}
			return w.Flush()
		})
	},
}

func formatPoints(r gamification.ActionRule) string {
	switch {
	case r.Spend:
		return "-amount"
	case r.Variable:
		return "amount"
	default:
		return strconv.FormatInt(r.Points, 10)
	}
}

func ruleFlags(r gamification.ActionRule) string {
	switch {
	case r.RequiresReference:
		return "once per reference"
	case r.Idempotent:
		return "once"
	default:
		return "repeatable"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
