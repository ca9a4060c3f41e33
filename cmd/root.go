package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klasterhq/klaster/internal/adjust"
	"github.com/klasterhq/klaster/internal/api"
	"github.com/klasterhq/klaster/internal/lifecycle"
	"github.com/klasterhq/klaster/internal/output"
	"github.com/klasterhq/klaster/internal/registry"
	"github.com/klasterhq/klaster/internal/selection"
	"github.com/klasterhq/klaster/internal/state"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui         *output.UI
	localStore state.Store
	apiClient  *api.Client

	reg   *registry.Registry
	sel   *selection.Set
	lc    *lifecycle.Controller
	coord *adjust.Coordinator

	verbose bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "klaster",
	Short: "Klaster - submit and curate embedding clustering sessions",
	Long: `klaster is a client for the Klaster clustering service.
It submits embedding files for clustering, polls session status,
and curates the resulting clusters: rename, merge, split, delete.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/klaster/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "klaster")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("KLASTER")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "klaster")

	viper.SetDefault("state_dir", defaultConfigDir)
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "klaster.db"))
	viper.SetDefault("server.url", "http://localhost:5000")
	viper.SetDefault("server.timeout", "30s")
	viper.SetDefault("poll.interval", "5s")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Store and API client are initialized lazily — only when commands
	// actually need them. This allows config/version commands to run
	// without a db or a reachable server.
}

// rootRun handles `klaster` with no subcommand: show the saved active
// session if there is one, otherwise print help.
func rootRun(cmd *cobra.Command) error {
	s, err := getLocalStore()
	if err != nil {
		return cmd.Help()
	}

	active, err := s.ActiveSession(context.Background())
	if err != nil || active == "" {
		return cmd.Help()
	}
	return showRun(active, false)
}

// getLocalStore returns the shared local store, initializing it on first call.
func getLocalStore() (state.Store, error) {
	if localStore != nil {
		return localStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := state.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	localStore = s
	return localStore, nil
}

// getClient returns the shared API client. Saved credentials for the
// configured server are installed as the bearer token; a 401 from any
// endpoint drops them so the next call starts clean.
func getClient() (*api.Client, error) {
	if apiClient != nil {
		return apiClient, nil
	}

	serverURL := viper.GetString("server.url")
	timeout, err := time.ParseDuration(viper.GetString("server.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid server.timeout: %w", err)
	}

	opts := []api.Option{
		api.WithTimeout(timeout),
		api.WithUnauthorizedHook(dropCredentials),
	}

	if s, err := getLocalStore(); err == nil {
		if creds, err := s.GetCredentials(context.Background(), serverURL); err == nil && creds != nil {
			opts = append(opts, api.WithToken(creds.Token))
		}
	}

	apiClient = api.New(serverURL, opts...)
	return apiClient, nil
}

// dropCredentials clears the saved token after a 401. Runs as the
// client's unauthorized hook, so every endpoint shares the behavior.
func dropCredentials() {
	s, err := getLocalStore()
	if err != nil {
		return
	}
	serverURL := viper.GetString("server.url")
	if err := s.DeleteCredentials(context.Background(), serverURL); err == nil {
		ui.Warning("Session expired, credentials cleared. Run 'klaster login' again.")
	}
}

// getController wires the registry, selection set, lifecycle controller,
// and adjustment coordinator around the shared client, hydrating the
// active session id and the persisted selection from the local store.
func getController(ctx context.Context) (*lifecycle.Controller, error) {
	if lc != nil {
		return lc, nil
	}

	client, err := getClient()
	if err != nil {
		return nil, err
	}

	interval, err := time.ParseDuration(viper.GetString("poll.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid poll.interval: %w", err)
	}

	reg = registry.New()
	sel = selection.New()
	lc = lifecycle.New(client, reg, sel,
		lifecycle.WithInterval(interval),
		lifecycle.WithLogf(ui.VerboseLog),
	)
	coord = adjust.New(client, reg, sel, lc, ui)

	if s, err := getLocalStore(); err == nil {
		if active, err := s.ActiveSession(ctx); err == nil && active != "" {
			reg.SetActive(active)
			if ids, err := s.GetSelection(ctx, active); err == nil && len(ids) > 0 {
				sel.Replace(ids)
			}
		}
	}

	return lc, nil
}

// persistSessionState writes the in-memory active session id and
// selection back to the local store before the process exits.
func persistSessionState(ctx context.Context) {
	if reg == nil {
		return
	}
	s, err := getLocalStore()
	if err != nil {
		return
	}

	active := reg.ActiveID()
	_ = s.SetActiveSession(ctx, active)
	if active != "" && sel != nil {
		_ = s.SaveSelection(ctx, active, sel.IDs())
	}
}

// requireActiveSession resolves the session to act on: an explicit
// argument wins, otherwise the saved active session.
func requireActiveSession(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if _, err := getController(ctx); err != nil {
		return "", err
	}
	if active := reg.ActiveID(); active != "" {
		return active, nil
	}
	return "", fmt.Errorf("no session selected: pass a session id or run 'klaster use <session-id>'")
}
