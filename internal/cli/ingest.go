package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest headlines from a file or stdin",
	Long: `Read headlines (one per line) from a file or stdin, classify each
one, and persist it. Lines may optionally carry an id as
"id<TAB>headline"; items without one get a generated id.

Ingested strategic items stay unassigned until the next assignment
pass (see "storyline assign" or "storyline cycle").`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}
		defer eng.close()

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening input: %w", err)
			}
			defer f.Close()
			in = f
		}

		var total, strategic, failed int
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			var id, text string
			if tab := strings.IndexByte(line, '\t'); tab >= 0 {
				id, text = strings.TrimSpace(line[:tab]), strings.TrimSpace(line[tab+1:])
			} else {
				text = line
			}

			total++
			item, err := eng.orch.IngestItem(cmd.Context(), id, text)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if item.IsStrategic {
				strategic++
				if verbose {
					fmt.Printf("  [GO]   %s (%s / %s)\n", truncateLine(text), item.EventType, item.Theater)
				}
			} else if verbose {
				fmt.Printf("  [skip] %s\n", truncateLine(text))
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		fmt.Printf("Ingested %d headlines: %d strategic, %d discarded, %d failed\n",
			total, strategic, total-strategic-failed, failed)
		if failed > 0 {
			return fmt.Errorf("%d headlines failed", failed)
		}
		return nil
	},
}

func truncateLine(s string) string {
	const max = 70
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
