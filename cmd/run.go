package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/pipeline"
	"github.com/sells-group/opportunity-cli/pkg/anthropic"
)

var (
	runFile  string
	runTitle string
	runBody  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one document through the pipeline without the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadDocument()
		if err != nil {
			return err
		}

		aiClient := anthropic.NewClient(cfg.Anthropic.Key)
		pipe := pipeline.New(cfg, aiClient)

		state, usage, err := pipe.Run(cmd.Context(), "run-"+uuid.NewString(), []model.Document{doc})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		printReport(state, usage)
		return nil
	},
}

// loadDocument builds the input document from --file (JSON or YAML by
// extension) or the inline flags.
func loadDocument() (model.Document, error) {
	if runFile == "" {
		if runTitle == "" {
			return model.Document{}, eris.New("either --file or --title is required")
		}
		return model.Document{
			ID:        "inline-" + uuid.NewString(),
			Title:     runTitle,
			Body:      runBody,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	data, err := os.ReadFile(runFile)
	if err != nil {
		return model.Document{}, eris.Wrap(err, "read document file")
	}

	var doc model.Document
	switch strings.ToLower(filepath.Ext(runFile)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return model.Document{}, eris.Wrap(err, "parse document file")
	}
	if doc.ID == "" {
		doc.ID = "file-" + uuid.NewString()
	}
	return doc, nil
}

func printReport(state *model.PipelineState, usage anthropic.TokenUsage) {
	fmt.Printf("Workflow %s finished at step %s\n\n", state.WorkflowID, state.CurrentStep)

	fmt.Printf("Pain points (%d):\n", len(state.PainPoints))
	for _, p := range state.PainPoints {
		fmt.Printf("  [%s/%s] %s\n", p.Severity, p.Category, p.Description)
	}

	fmt.Printf("\nIdeas (%d):\n", len(state.Ideas))
	for _, idea := range state.Ideas {
		fmt.Printf("  %-24s %5.1f  %s\n", idea.Name, idea.Score, idea.Pitch)
		if b := idea.ScoreBreakdown; b != nil {
			fmt.Printf("    pain %.1f  market %.1f  competition %.1f  feasibility %.1f  engagement %.1f\n",
				b.PainSeverity, b.MarketSize, b.Competition, b.Feasibility, b.Engagement)
		}
	}

	if len(state.Errors) > 0 {
		fmt.Printf("\nStage errors (%d):\n", len(state.Errors))
		for _, e := range state.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	fmt.Printf("\nTokens: %d in / %d out (est. $%.4f)\n",
		usage.InputTokens, usage.OutputTokens, usage.EstimateCost(cfg.Anthropic.Model))
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "document file (JSON or YAML)")
	runCmd.Flags().StringVar(&runTitle, "title", "", "inline document title")
	runCmd.Flags().StringVar(&runBody, "body", "", "inline document body")
	rootCmd.AddCommand(runCmd)
}
