package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/domain"
)

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersProgressCmd)

	usersCreateCmd.Flags().String("id", "", "User ID (the token subject)")
	usersCreateCmd.Flags().String("username", "", "Display name (default: the ID)")
	usersCreateCmd.Flags().Float64("height-cm", 0, "Body height in centimetres")
	usersCreateCmd.Flags().Float64("weight-kg", 0, "Body weight in kilograms")
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage engine user profiles",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with zero XP",
	Args:  cobra.NoArgs,
	RunE:  runUsersCreate,
}

func runUsersCreate(cmd *cobra.Command, args []string) error {
	id, _ := cmd.Flags().GetString("id")
	username, _ := cmd.Flags().GetString("username")
	height, _ := cmd.Flags().GetFloat64("height-cm")
	weight, _ := cmd.Flags().GetFloat64("weight-kg")

	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("--id is required")
	}
	if username == "" {
		username = id
	}
	if height < 0 || weight < 0 {
		return errors.New("body measurements must be positive")
	}

	user := domain.User{ID: id, Username: username}
	if height > 0 {
		user.HeightCm = &height
	}
	if weight > 0 {
		user.WeightKg = &weight
	}

	b, err := openBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	if err := b.store.CreateUser(cmd.Context(), user); err != nil {
		return fmt.Errorf("create user %s: %w", id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", id, username)
	return nil
}

var usersProgressCmd = &cobra.Command{
	Use:   "progress USER_ID",
	Short: "Show a user's level, rank and streak",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBackend(cmd)
		if err != nil {
			return err
		}
		defer b.close()

		p, err := b.service.Progress(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "user:     %s\n", p.UserID)
		fmt.Fprintf(out, "xp:       %d (level %d, %.1f%% to %d)\n", p.XP, p.Level, p.LevelProgress, p.NextLevelXP)
		fmt.Fprintf(out, "rank:     %s\n", p.Rank.Name)
		fmt.Fprintf(out, "streak:   %d\n", p.Streak)
		if p.BMI != nil {
			fmt.Fprintf(out, "bmi:      %.1f (%s)\n", *p.BMI, p.BMICategory)
		}
		return nil
	},
}
