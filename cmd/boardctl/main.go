// Command boardctl is a terminal client for a crewboard server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewboard/crewboard-backend/internal/client"
)

var (
	serverURL string
	token     string
)

var rootCmd = &cobra.Command{
	Use:          "boardctl",
	Short:        "Watch and move tasks on a crewboard project",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			token = os.Getenv("CREWBOARD_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("a bearer token is required (--token or CREWBOARD_TOKEN)")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("CREWBOARD_URL", "http://localhost:8080"), "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default $CREWBOARD_TOKEN)")

	rootCmd.AddCommand(watchCmd, moveCmd)
}

func apiClient() *client.Client {
	return client.NewClient(serverURL, token)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
