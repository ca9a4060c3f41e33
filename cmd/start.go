package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klasterhq/klaster/internal/api"
)

var (
	startAlgorithm string
	startParams    []string
	startImages    string
	startWatch     bool
)

var startCmd = &cobra.Command{
	Use:   "start <embeddings-file>",
	Short: "Submit a new clustering job",
	Long: `Submit an embeddings file for clustering.

The file is uploaded as-is; the server decides how to parse it.
Algorithm parameters are passed as repeated --param key=value flags,
numeric values are sent as numbers:

  klaster start embeddings.npy --algorithm kmeans --param n_clusters=8

An optional --images archive is uploaded alongside the embeddings so
the server can render contact sheets. With --watch the command stays
in the foreground and prints status transitions until the job ends.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startRun(args[0])
	},
}

func init() {
	startCmd.Flags().StringVar(&startAlgorithm, "algorithm", "kmeans", "Clustering algorithm (kmeans, dbscan, hierarchical)")
	startCmd.Flags().StringArrayVar(&startParams, "param", nil, "Algorithm parameter key=value (repeatable)")
	startCmd.Flags().StringVar(&startImages, "images", "", "Optional image archive for contact sheets")
	startCmd.Flags().BoolVar(&startWatch, "watch", false, "Wait in the foreground and print status transitions")
	rootCmd.AddCommand(startCmd)
}

// parseParams turns repeated key=value flags into the params map.
// Values that parse as numbers or bools are sent typed, everything
// else as strings.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		switch {
		case value == "true" || value == "false":
			params[key] = value == "true"
		default:
			if i, err := strconv.Atoi(value); err == nil {
				params[key] = i
			} else if f, err := strconv.ParseFloat(value, 64); err == nil {
				params[key] = f
			} else {
				params[key] = value
			}
		}
	}
	return params, nil
}

func startRun(embeddingsPath string) error {
	params, err := parseParams(startParams)
	if err != nil {
		return err
	}

	embeddings, err := os.Open(embeddingsPath)
	if err != nil {
		return fmt.Errorf("open embeddings file: %w", err)
	}
	defer embeddings.Close()

	job := api.StartJob{
		EmbeddingFile:     embeddings,
		EmbeddingFilename: filepath.Base(embeddingsPath),
		Algorithm:         startAlgorithm,
		Params:            params,
	}

	if startImages != "" {
		archive, err := os.Open(startImages)
		if err != nil {
			return fmt.Errorf("open image archive: %w", err)
		}
		defer archive.Close()
		job.ImageArchive = archive
		job.ArchiveFilename = filepath.Base(startImages)
	}

	client, err := getClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	sessionID, err := client.StartClustering(ctx, job)
	if err != nil {
		return fmt.Errorf("start clustering: %w", err)
	}

	ui.Success("Session %s started (%s)", sessionID, startAlgorithm)

	// The new session becomes the active one.
	if _, err := getController(ctx); err != nil {
		return err
	}
	if _, err := lc.Select(ctx, sessionID); err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}
	defer persistSessionState(ctx)

	if startWatch {
		return watchSession(ctx, sessionID)
	}

	ui.Info("Poll with 'klaster show --watch' or 'klaster sessions'.")
	return nil
}
