package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/storylinehq/storyline/internal/model"
)

var (
	dryRun   bool
	maxItems int
	maxEFs   int
)

// summaryRound keeps printed durations readable.
const summaryRound = time.Millisecond

// assignCmd represents the assign command
var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Run one assignment pass",
	Long: `Attach unassigned strategic items to event families. Each item is
matched against active families (same event type, matching theater or
overlapping key actors), validated by the external classifier, and
committed at most once. Items no family accepts seed new families.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		result := eng.orch.RunAssignmentPass(cmd.Context(), maxItems, dryRun)
		return printPassResult(result)
	},
}

// mergeCmd represents the merge command
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Run one merge pass",
	Long: `Detect fragmented event families (several active families sharing a
theater and event type) and consolidate each group into its largest
member. Re-running after a clean pass is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		result := eng.orch.RunMergePass(cmd.Context(), maxEFs, dryRun)
		return printPassResult(result)
	},
}

// cycleCmd represents the cycle command
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run the daily cycle (assignment then merge)",
	Long: `Run the full scheduled cycle: an assignment pass over unassigned
strategic items followed by a merge pass over active event families.
Either pass skips itself when it has nothing to do. Pass failures are
reported in the summary; the cycle always runs to completion.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		summary := eng.orch.RunDailyCycle(cmd.Context(), maxItems, maxEFs, dryRun)

		if jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
		} else {
			for _, pass := range summary.PassResults {
				printPassText(pass)
			}
			fmt.Printf("\nCycle finished in %s", summary.TotalDuration.Round(summaryRound))
			if summary.DryRun {
				fmt.Print(" (dry run)")
			}
			fmt.Println()
		}

		if !summary.Success {
			return fmt.Errorf("cycle finished with %d errors", len(summary.Errors))
		}
		return nil
	},
}

func printPassResult(result model.PassResult) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printPassText(result)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%s pass finished with %d errors", result.Pass, len(result.Errors))
	}
	return nil
}

func printPassText(result model.PassResult) {
	if result.Skipped {
		fmt.Printf("%s pass: skipped (nothing to do)\n", result.Pass)
		return
	}
	fmt.Printf("%s pass: %d processed, %d succeeded, %d failed in %s\n",
		result.Pass, result.Processed, result.Succeeded, result.Failed,
		result.Duration.Round(summaryRound))
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
}

func init() {
	for _, cmd := range []*cobra.Command{assignCmd, mergeCmd, cycleCmd} {
		cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	}
	assignCmd.Flags().IntVar(&maxItems, "max-items", 0, "cap items per pass (0 = no cap)")
	cycleCmd.Flags().IntVar(&maxItems, "max-items", 0, "cap items per assignment pass (0 = no cap)")
	mergeCmd.Flags().IntVar(&maxEFs, "max-efs", 0, "cap families examined per pass (0 = no cap)")
	cycleCmd.Flags().IntVar(&maxEFs, "max-efs", 0, "cap families examined per merge pass (0 = no cap)")

	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(cycleCmd)
}
