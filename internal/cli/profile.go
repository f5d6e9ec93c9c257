package cli

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/puntos-app/puntos/internal/app/gamification"
	"github.com/puntos-app/puntos/internal/daemon"
	"github.com/puntos-app/puntos/internal/domain"
)

func init() {
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "Print the stored JSON document")

	recordCmd.Flags().StringVar(&recordVariant, "variant", "", "Sub-kind, e.g. promo or priceResult for favoritePromo")
	recordCmd.Flags().StringVar(&recordRef, "ref", "", "Reference id (referral, redemption, ...)")
	recordCmd.Flags().StringVar(&recordAmount, "amount", "", "Amount for variable actions such as redeemReward")

	streakCmd.Flags().StringVar(&streakDate, "date", "", "Activity date YYYY-MM-DD (default today)")

	historyCmd.Flags().StringVar(&historyFilter, "filter", "all", "all, earned or spent")

	detailsCmd.Flags().StringVar(&detailsName, "name", "", "Display name")
	detailsCmd.Flags().StringVar(&detailsAvatar, "avatar", "", "Avatar id")

	rootCmd.AddCommand(registerCmd, profileCmd, recordCmd, streakCmd, historyCmd, detailsCmd)
}

var (
	profileJSON   bool
	recordVariant string
	recordRef     string
	recordAmount  string
	streakDate    string
	historyFilter string
	detailsName   string
	detailsAvatar string
)

var registerCmd = &cobra.Command{
	Use:   "register <user>",
	Short: "Create a profile with its welcome bonus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.Register(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printProfile(cmd.OutOrStdout(), p, len(d.Engine.Achievements()))
		})
	},
}

var profileCmd = &cobra.Command{
	Use:     "profile <user>",
	Aliases: []string{"show"},
	Short:   "Show a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if profileJSON {
				return printJSON(cmd.OutOrStdout(), p)
			}
			return printProfile(cmd.OutOrStdout(), p, len(d.Engine.Achievements()))
		})
	},
}

var recordCmd = &cobra.Command{
	Use:   "record <user> <action>",
	Short: "Record a user action",
	Long: `Record a user action and apply its points, streak, challenge progress
and achievements. Run 'puntos catalog' for the list of actions.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := gamification.RecordOptions{
			Variant:     domain.Variant(recordVariant),
			ReferenceID: recordRef,
		}
		if recordAmount != "" {
			amount, err := gamification.AmountFromNumber(json.Number(recordAmount))
			if err != nil {
				return err
			}
			opts.Amount = amount
		}

		return withDaemon(cmd, func(d *daemon.Daemon) error {
			before, err := d.Engine.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := d.Engine.Record(cmd.Context(), args[0], domain.ActionKind(args[1]), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.Version == before.Version {
				fmt.Fprintln(out, "Already recorded, nothing changed.")
			} else {
				fmt.Fprintf(out, "%+d points\n", p.Points-before.Points)
				for _, a := range p.Achievements[len(before.Achievements):] {
					fmt.Fprintf(out, "Unlocked %s %s (+%d)\n", a.Icon, a.Title, a.PointsAwarded)
				}
			}
			return printProfile(out, p, len(d.Engine.Achievements()))
		})
	},
}

var streakCmd = &cobra.Command{
	Use:   "streak <user>",
	Short: "Record activity for the daily streak without points",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var day domain.Date
		if streakDate != "" {
			d, err := domain.ParseDate(streakDate)
			if err != nil {
				return err
			}
			day = d
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.TouchStreak(cmd.Context(), args[0], day)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Streak: %d day(s), best %d\n", p.StreakDays, p.LongestStreak)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "List ledger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := domain.HistoryFilter(historyFilter)
		switch filter {
		case domain.HistoryAll, domain.HistoryEarned, domain.HistorySpent:
		default:
			return fmt.Errorf("unknown filter %q (all, earned, spent)", historyFilter)
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			seq, err := d.Engine.History(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), slices.Collect(seq))
		})
	},
}

var detailsCmd = &cobra.Command{
	Use:   "details <user>",
	Short: "Set display name or avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var details domain.ProfileDetails
		if cmd.Flags().Changed("name") {
			details.DisplayName = &detailsName
		}
		if cmd.Flags().Changed("avatar") {
			details.Avatar = &detailsAvatar
		}
		if details.DisplayName == nil && details.Avatar == nil {
			return fmt.Errorf("nothing to change: pass --name and/or --avatar")
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.UpdateDetails(cmd.Context(), args[0], details)
			if err != nil {
				return err
			}
			return printProfile(cmd.OutOrStdout(), p, len(d.Engine.Achievements()))
		})
	},
}

// withDaemon opens the configured storage for one command.
func withDaemon(cmd *cobra.Command, fn func(d *daemon.Daemon) error) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(d)
}
