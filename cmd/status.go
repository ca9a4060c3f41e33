package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/klasterhq/klaster/internal/output"
	"github.com/klasterhq/klaster/internal/quality"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a dashboard of all sessions",
	Long: `Show a cross-session overview: status, cluster count, and the
quality score for every result-bearing session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		ui.Info("No sessions. Use 'klaster start <embeddings-file>' to submit one.")
		return nil
	}

	if _, err := getController(ctx); err != nil {
		return err
	}
	reg.SetSummaries(sessions)
	active := reg.ActiveID()
	scorer := quality.NewScorer()

	table := ui.Table([]string{"", "Session", "Status", "Clusters", "Quality", "Adjustments"})
	for _, sum := range sessions {
		marker := ""
		if sum.SessionID == active {
			marker = "*"
		}

		clusters := "-"
		qualityCol := "-"
		adjustments := "-"
		if sum.Status.ResultBearing() {
			// The quality score needs the full detail.
			session, err := client.GetSession(ctx, sum.SessionID)
			if err == nil {
				clusters = fmt.Sprintf("%d", len(session.Clusters))
				qualityCol = output.QualityColor(scorer.Score(session).Total)
				adjustments = fmt.Sprintf("%d", len(session.Adjustments))
			}
		}

		table.Append([]string{
			marker,
			sum.SessionID,
			output.StatusColor(string(sum.Status)),
			clusters,
			qualityCol,
			adjustments,
		})
	}
	table.Render()
	return nil
}
