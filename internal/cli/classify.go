package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storylinehq/storyline/internal/enrich"
	"github.com/storylinehq/storyline/internal/theater"
	"github.com/storylinehq/storyline/internal/vocab"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <headline>",
	Short: "Classify a single headline without storing it",
	Long: `Run the taxonomy matcher, country enrichment, and theater inference
over one headline and print the verdict. Nothing is written to the
store; use this to inspect vocabulary coverage.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log, err := newLogger()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer log.Sync()

		provider := vocab.NewFileProvider(cfg.Vocab.Dir)
		goGroups, err := provider.LoadGoVocabularies()
		if err != nil {
			return fmt.Errorf("loading go vocabularies: %w", err)
		}
		stopGroup, err := provider.LoadStopVocabulary()
		if err != nil {
			return fmt.Errorf("loading stop vocabulary: %w", err)
		}
		meta, err := provider.LoadEntityMetadata()
		if err != nil {
			return fmt.Errorf("loading entity metadata: %w", err)
		}

		matcher, err := vocab.NewMatcher(goGroups, stopGroup, enrich.NewEnricher(meta, log), log)
		if err != nil {
			return fmt.Errorf("compiling vocabularies: %w", err)
		}

		text := args[0]
		result := matcher.Classify(text)

		var theaterName string
		var confidence float64
		if result.IsStrategic {
			theaterName, confidence = theater.NewEngine(log).Infer(result.Entities, result.EventType)
		}

		if jsonOut {
			out := struct {
				Text        string   `json:"text"`
				IsStrategic bool     `json:"is_strategic"`
				EventType   string   `json:"event_type,omitempty"`
				Entities    []string `json:"entities,omitempty"`
				Theater     string   `json:"theater,omitempty"`
				Confidence  float64  `json:"confidence,omitempty"`
			}{text, result.IsStrategic, result.EventType, result.Entities, theaterName, confidence}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if !result.IsStrategic {
			fmt.Println("Not strategic")
			return nil
		}

		fmt.Println("Strategic")
		fmt.Printf("  Event type: %s\n", result.EventType)
		fmt.Printf("  Entities:   %s\n", strings.Join(result.Entities, ", "))
		fmt.Printf("  Theater:    %s (confidence %.2f)\n", theaterName, confidence)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
