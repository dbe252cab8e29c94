package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/domain"
)

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().String("cohort", "", "Comma separated user IDs to rank")
	leaderboardCmd.Flags().String("friends-of", "", "Rank this user and their friends")
	leaderboardCmd.Flags().String("now", "", "RFC3339 instant whose week is scored (default: now)")
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Print the weekly leaderboard of a cohort",
	Args:  cobra.NoArgs,
	RunE:  runLeaderboard,
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	rawCohort, _ := cmd.Flags().GetString("cohort")
	friendsOf, _ := cmd.Flags().GetString("friends-of")
	rawNow, _ := cmd.Flags().GetString("now")

	cohort := splitList(rawCohort)
	if len(cohort) == 0 && friendsOf == "" {
		return errors.New("either --cohort or --friends-of is required")
	}

	var now time.Time
	if rawNow != "" {
		parsed, err := time.Parse(time.RFC3339, rawNow)
		if err != nil {
			return fmt.Errorf("--now: %w", err)
		}
		now = parsed
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if friendsOf != "" {
		friends, err := b.service.FriendCohort(cmd.Context(), friendsOf)
		if err != nil {
			return err
		}
		cohort = append(cohort, friends...)
	}

	board, err := b.service.Leaderboard(cmd.Context(), domain.LeaderboardQuery{CohortUserIDs: cohort, Now: now})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "week %s .. %s\n", board.Window.Start.Format(time.RFC3339), board.Window.End.Format(time.RFC3339))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tMEDAL\tUSER\tSCORE\tWORKOUTS\tVOLUME\tSTREAK\tLEVEL\tRANK")
	for _, e := range board.Entries {
		medal := string(e.Medal)
		if medal == "" {
			medal = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%d\t%.1f\t%d\t%d\t%s\n",
			e.Position, medal, e.Username, e.Score, e.WeeklyWorkouts, e.WeeklyVolume, e.Streak, e.Level, e.Rank.Name)
	}
	return tw.Flush()
}
