package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and event-family status",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		status, err := eng.orch.Status(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		fmt.Printf("Active event families:  %d\n", status.ActiveEFs)
		fmt.Printf("Merged event families:  %d\n", status.MergedEFs)
		fmt.Printf("Unassigned items:       %d\n", status.UnassignedItems)
		if len(status.RecentEFs) > 0 {
			fmt.Println("\nRecent event families:")
			for _, ef := range status.RecentEFs {
				fmt.Printf("  %-38s %s / %s (%d items)\n",
					truncateLine(ef.Title), ef.Theater, ef.EventType, ef.ItemCount())
			}
		}
		return nil
	},
}

// repairCmd represents the repair command
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Consolidate fragmented event families now",
	Long: `Run the fragmentation remediation immediately instead of waiting for
the next scheduled merge pass. Safe to re-run: a second invocation
after a successful repair finds nothing to consolidate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		result, err := eng.orch.Repair(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			fmt.Printf("Repair merged %d families: %d active before, %d after\n",
				result.Merged, result.ActiveBefore, result.ActiveAfter)
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "  error: %s\n", e)
			}
		}

		if len(result.Errors) > 0 {
			return fmt.Errorf("repair finished with %d errors", len(result.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(repairCmd)
}
