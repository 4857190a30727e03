// Command gitpanel drives a running gitpanel server from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitpanel/client"
	"gitpanel/internal/config"
	"gitpanel/internal/logging"
)

var (
	logger    = logging.Nop()
	api       *client.Client
	serverURL string
	repoDir   string
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "gitpanel",
	Short: "gitpanel is a changelist-aware git client",
	Long: `gitpanel groups working tree changes into changelists, down to single
hunks, and commits each changelist on its own without touching the index.

The CLI talks to a running gitpanel server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ConfigPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		level := cfg.LogLevel
		if v := os.Getenv("GITPANEL_LOG_LEVEL"); v != "" {
			level = v
		}
		l, err := logging.NewDevelopment(level)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		logger = l

		if serverURL == "" {
			serverURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		api = client.New(serverURL)
		logger.Debug("using server", zap.String("url", serverURL))
		return nil
	},
}

func init() {
	// Load .env file if present
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("GITPANEL_SERVER"), "Server URL (defaults to the configured host and port)")
	rootCmd.PersistentFlags().StringVarP(&repoDir, "repo", "C", ".", "Repository directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON instead of text")
}

// openRepo registers the --repo directory with the server and returns its id.
func openRepo(ctx context.Context) (string, error) {
	dir, err := filepath.Abs(repoDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", repoDir, err)
	}
	h, err := api.Open(ctx, dir)
	if err != nil {
		return "", err
	}
	return h.RepoID, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		logger.Sync()
		stop()
		os.Exit(1)
	}
	logger.Sync()
}
