package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/puntos-app/puntos/internal/daemon"
	"github.com/puntos-app/puntos/internal/domain"
)

func init() {
	challengeAssignCmd.Flags().StringVar(&assignTitle, "title", "", "Title shown to the user")
	challengeAssignCmd.Flags().StringVar(&assignAction, "action", "", "Action that advances the challenge when recorded")
	challengeAssignCmd.Flags().Int64Var(&assignTarget, "target", 1, "Progress needed to complete")
	challengeAssignCmd.Flags().Int64Var(&assignReward, "reward", 0, "Points granted on claim")
	challengeAssignCmd.Flags().DurationVar(&assignDuration, "duration", 7*24*time.Hour, "Time until the challenge expires")

	challengeAdvanceCmd.Flags().Int64Var(&advanceAmount, "amount", 1, "Progress to add")

	challengeCmd.AddCommand(challengeAssignCmd, challengeAdvanceCmd, challengeClaimCmd, challengeListCmd)
	rootCmd.AddCommand(challengeCmd)
}

var (
	assignTitle    string
	assignAction   string
	assignTarget   int64
	assignReward   int64
	assignDuration time.Duration
	advanceAmount  int64
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Assign, advance and claim challenges",
}

var challengeListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List a user's challenges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(p.Challenges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No challenges.")
				return nil
			}
			return printChallenges(cmd.OutOrStdout(), p)
		})
	},
}

var challengeAssignCmd = &cobra.Command{
	Use:   "assign <user> <challenge-id>",
	Short: "Assign a challenge to a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := assignTitle
		if title == "" {
			title = args[1]
		}
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			def := domain.ChallengeDef{
				ID:        args[1],
				Title:     title,
				Action:    domain.ActionKind(assignAction),
				Target:    assignTarget,
				Reward:    assignReward,
				ExpiresAt: time.Now().Add(assignDuration),
			}
			p, err := d.Engine.AssignChallenge(cmd.Context(), args[0], def)
			if err != nil {
				return err
			}
			return printChallenges(cmd.OutOrStdout(), p)
		})
	},
}

var challengeAdvanceCmd = &cobra.Command{
	Use:   "advance <user> <challenge-id>",
	Short: "Add progress to a challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			p, err := d.Engine.AdvanceChallenge(cmd.Context(), args[0], args[1], advanceAmount)
			if err != nil {
				return err
			}
			ch := p.Challenges[args[1]]
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d (%s)\n", ch.ID, ch.Progress, ch.Target, ch.Status)
			return nil
		})
	},
}

var challengeClaimCmd = &cobra.Command{
	Use:   "claim <user> <challenge-id>",
	Short: "Claim the reward of a completed challenge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(d *daemon.Daemon) error {
			before, err := d.Engine.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := d.Engine.ClaimChallenge(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if p.Version == before.Version {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was already claimed.\n", args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Claimed %s: %+d points, now %d\n", args[1], p.Points-before.Points, p.Points)
			return nil
		})
	},
}
