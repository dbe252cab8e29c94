package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Chirraaa/gymbros/internal/config"
)

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesDumpCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the progression and scoring rules",
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective rules as TOML",
	Long: `Print the rules the engine runs with: the defaults merged with the
file given by --rules or $RULES_FILE. The output is a valid rules file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules(cmd)
		if err != nil {
			return err
		}
		return config.WriteRules(cmd.OutOrStdout(), rules)
	},
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Validate a rules file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := config.LoadRules(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d tiers, %d streak milestones, level base %d)\n",
			args[0], len(rules.Progression.Tiers), len(rules.Rewards.StreakMilestones), rules.Progression.LevelBase)
		return nil
	},
}
