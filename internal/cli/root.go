package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	defaultPort       = "8080"
	defaultConfigPath = "config/config.yaml"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz-match-service",
		Short: "Real-time multiplayer quiz matches",
		Long: `Hosts quiz match rooms over WebSocket with a small HTTP control API.

  start    serve /ws, /matches and /healthz
  migrate  apply the Postgres schema for quizzes, match results and ratings

Without redis.addr or postgres.url in the config the server runs fully in memory
with a built-in sample quiz.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&port, "port", envOr("PORT", ""), "port to listen on (env PORT, else server.port, else "+defaultPort+")")
	cmd.PersistentFlags().StringVar(&configPath, "config", envOr("CONFIG_PATH", defaultConfigPath), "path to YAML config (env CONFIG_PATH)")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
