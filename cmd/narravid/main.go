// Package main provides the entry point for the narravid CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rootCmd := &cobra.Command{
		Use:     "narravid",
		Short:   "Turn narrative chapters into narrated, illustrated video",
		Version: version,
	}

	rootCmd.AddCommand(
		newInitCmd(),
		newProcessCmd(),
		newValidateCmd(),
		newServeCmd(),
		newEntitiesCmd(),
		newStatusCmd(),
		newRenderCmd(),
		newExportCmd(),
		newImportCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}
