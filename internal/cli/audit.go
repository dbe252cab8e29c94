package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().String("users", "", "Comma separated user IDs (default: every user)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that every user's XP equals the sum of their ledger",
	Long: `Recompute the XP ledger total of each user and compare it with the
stored XP. Exits non-zero when any user drifted or does not exist.`,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	b, err := openBackend(cmd)
	if err != nil {
		return err
	}
	defer b.close()

	rawUsers, _ := cmd.Flags().GetString("users")
	ids := splitList(rawUsers)
	if len(ids) == 0 {
		if ids, err = b.store.ListUserIDs(cmd.Context()); err != nil {
			return fmt.Errorf("list users: %w", err)
		}
	}

	audits, err := b.service.AuditLedger(cmd.Context(), ids)
	if err != nil {
		return fmt.Errorf("audit ledger: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tXP\tLEDGER\tSTATUS")
	failed := 0
	for _, a := range audits {
		status := "ok"
		if a.Err != nil {
			status = a.Err.Error()
			failed++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", a.UserID, a.XP, a.LedgerTotal, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d users failed the ledger audit", failed, len(audits))
	}
	return nil
}
