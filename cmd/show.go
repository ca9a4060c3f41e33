package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klasterhq/klaster/internal/models"
	"github.com/klasterhq/klaster/internal/output"
	"github.com/klasterhq/klaster/internal/quality"
)

var showWatch bool

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Show session detail with its clusters",
	Long: `Show one session: run facts, cluster table, and adjustment log.

Without an argument the active session is shown. With --watch the
command refetches on the poll interval and prints status transitions
until the session reaches a terminal status.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		sessionID, err := requireActiveSession(ctx, args)
		if err != nil {
			return err
		}
		return showRun(sessionID, showWatch)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showWatch, "watch", false, "Refetch until the session reaches a terminal status")
	rootCmd.AddCommand(showCmd)
}

func showRun(sessionID string, watch bool) error {
	ctx := context.Background()
	if _, err := getController(ctx); err != nil {
		return err
	}

	session, err := lc.Select(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	defer persistSessionState(ctx)

	if watch && !session.Status.Terminal() {
		if err := watchSession(ctx, sessionID); err != nil {
			return err
		}
		session = reg.Active()
		if session == nil {
			return fmt.Errorf("session %s is no longer available", sessionID)
		}
	}

	printSession(session)
	return nil
}

// watchSession refetches in the foreground until the session reaches a
// terminal status, printing each transition. Ctrl-C stops watching
// without cancelling the job server-side.
func watchSession(ctx context.Context, sessionID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	interval, err := time.ParseDuration(viper.GetString("poll.interval"))
	if err != nil {
		return fmt.Errorf("invalid poll.interval: %w", err)
	}

	// The background poller would race the foreground loop.
	lc.StopPolling()

	last := models.SessionStatus("")
	if s := reg.Active(); s != nil {
		last = s.Status
		ui.Info("Session %s: %s", sessionID, output.StatusColor(string(last)))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ui.Info("Stopped watching. The job keeps running server-side.")
			return nil
		case <-ticker.C:
			session, err := lc.FetchOnce(ctx, sessionID)
			if err != nil {
				ui.VerboseLog("poll failed: %v", err)
				continue
			}
			if session == nil {
				return fmt.Errorf("session %s disappeared", sessionID)
			}
			if session.Status != last {
				ui.Info("Session %s: %s", sessionID, output.StatusColor(string(session.Status)))
				last = session.Status
			}
			if session.Status.Terminal() {
				return nil
			}
		}
	}
}

func printSession(session *models.Session) {
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(session.SessionID), output.StatusColor(string(session.Status)))
	fmt.Fprintf(ui.Out, "  Algorithm: %s\n", session.Algorithm)
	if len(session.Params) > 0 {
		fmt.Fprintf(ui.Out, "  Params:    %v\n", session.Params)
	}
	if session.OriginalFilename != "" {
		fmt.Fprintf(ui.Out, "  File:      %s\n", session.OriginalFilename)
	}
	if session.ProcessingTimeSec != nil {
		fmt.Fprintf(ui.Out, "  Took:      %.1fs\n", *session.ProcessingTimeSec)
	}
	if session.Error != "" {
		ui.Error("%s", session.Error)
	}

	if len(session.Clusters) > 0 {
		score := quality.NewScorer().Score(session)
		fmt.Fprintf(ui.Out, "  Quality:   %s/100\n", output.QualityColor(score.Total))
		fmt.Fprintln(ui.Out)

		table := ui.Table([]string{"", "Cluster", "Name", "Size"})
		for _, c := range session.Clusters {
			marker := ""
			if sel != nil && sel.Contains(c.ID) {
				marker = "*"
			}
			name := c.Name
			if name == "" {
				name = "-"
			}
			table.Append([]string{marker, c.ID, name, fmt.Sprintf("%d", c.Size)})
		}
		table.Render()
	}

	if len(session.Adjustments) > 0 {
		fmt.Fprintln(ui.Out)
		fmt.Fprintf(ui.Out, "  Adjustments (%d):\n", len(session.Adjustments))
		for _, a := range session.Adjustments {
			fmt.Fprintf(ui.Out, "    %s  %s\n", a.Timestamp.Format("2006-01-02 15:04"), a.ActionType)
		}
	}
}
