package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klasterhq/klaster/internal/llm"
	"github.com/klasterhq/klaster/internal/models"
	"github.com/klasterhq/klaster/internal/quality"
)

var (
	reportFormat    string
	reportNarrative bool
)

var reportCmd = &cobra.Command{
	Use:   "report [session-id]",
	Short: "Generate a session report",
	Long: `Generate a report of a session: run facts, cluster breakdown,
adjustment history, and the quality score.

With --narrative, a short prose summary is generated via the Anthropic
API (requires anthropic.api_key in config or KLASTER_ANTHROPIC_API_KEY).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(args)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "Output format: markdown, json")
	reportCmd.Flags().BoolVar(&reportNarrative, "narrative", false, "Add an AI-generated prose summary")
	rootCmd.AddCommand(reportCmd)
}

func reportRun(args []string) error {
	ctx := context.Background()
	sessionID, err := requireActiveSession(ctx, args)
	if err != nil {
		return err
	}
	if _, err := getController(ctx); err != nil {
		return err
	}

	session, err := lc.Select(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	defer persistSessionState(ctx)

	score := quality.NewScorer().Score(session)

	narrative := ""
	if reportNarrative {
		narrative, err = generateNarrative(ctx, session, score.Total)
		if err != nil {
			ui.Warning("Narrative generation failed: %v", err)
		}
	}

	switch reportFormat {
	case "json":
		return reportJSON(session, score, narrative)
	case "markdown":
		return reportMarkdown(session, score, narrative)
	default:
		return fmt.Errorf("unknown format: %s (use: markdown, json)", reportFormat)
	}
}

func generateNarrative(ctx context.Context, session *models.Session, score int) (string, error) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return "", fmt.Errorf("anthropic.api_key is not configured")
	}
	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
	return client.SessionNarrative(ctx, session, score)
}

func reportJSON(session *models.Session, score *quality.Score, narrative string) error {
	out := struct {
		Session   *models.Session `json:"session"`
		Quality   map[string]int  `json:"quality"`
		Narrative string          `json:"narrative,omitempty"`
	}{session, map[string]int{
		"total":       score.Total,
		"balance":     score.Balance,
		"granularity": score.Granularity,
		"labeling":    score.Labeling,
		"curation":    score.Curation,
	}, narrative}

	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func reportMarkdown(session *models.Session, score *quality.Score, narrative string) error {
	fmt.Fprintf(ui.Out, "# Session %s\n\n", session.SessionID)
	fmt.Fprintf(ui.Out, "- Status: %s\n", session.Status)
	fmt.Fprintf(ui.Out, "- Algorithm: %s\n", session.Algorithm)
	if session.OriginalFilename != "" {
		fmt.Fprintf(ui.Out, "- File: %s\n", session.OriginalFilename)
	}
	if session.ProcessingTimeSec != nil {
		fmt.Fprintf(ui.Out, "- Processing time: %.1fs\n", *session.ProcessingTimeSec)
	}
	fmt.Fprintf(ui.Out, "- Quality: %d/100 (balance %d, granularity %d, labeling %d, curation %d)\n",
		score.Total, score.Balance, score.Granularity, score.Labeling, score.Curation)

	if narrative != "" {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "## Summary")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, narrative)
	}

	if len(session.Clusters) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "## Clusters")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| Cluster | Name | Size |")
		fmt.Fprintln(ui.Out, "|---------|------|------|")

		clusters := append([]models.Cluster(nil), session.Clusters...)
		sort.Slice(clusters, func(i, j int) bool { return clusters[i].Size > clusters[j].Size })
		for _, c := range clusters {
			name := c.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(ui.Out, "| %s | %s | %d |\n", c.ID, name, c.Size)
		}
	}

	if len(session.Adjustments) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "## Adjustments")
		fmt.Fprintln(ui.Out)
		for _, a := range session.Adjustments {
			fmt.Fprintf(ui.Out, "- %s %s\n", a.Timestamp.Format("2006-01-02 15:04"), a.ActionType)
		}
	}

	return nil
}
