package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/narravid/narravid/internal/infrastructure/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a narravid project in the current directory",
		Long:  "Creates the .narravid directory with a default config, plus the chapters/ directory for source text.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	if config.Exists(cwd) {
		return fmt.Errorf("project already initialized (%s exists)", config.ConfigFilePath(cwd))
	}

	cfg := config.Default()
	if err := cfg.Write(cwd); err != nil {
		return err
	}

	for _, dir := range []string{
		config.ChaptersDir(cwd),
		config.AudioDir(cwd),
		config.ImagesDir(cwd),
		config.ClipsDir(cwd),
		config.OutputDir(cwd),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	fmt.Printf("Initialized narravid project in %s\n", cwd)
	fmt.Printf("Drop chapter .txt or .md files into %s and run 'narravid process'.\n", config.ChaptersDir(cwd))
	return nil
}
