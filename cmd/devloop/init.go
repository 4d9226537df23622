package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devloop/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory, settings, and database",
	Long: `Create the data directory, write default settings, and initialize the
request database with its schema and infrastructure option catalog.
Safe to run repeatedly; existing settings and data are kept.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := os.MkdirAll(config.DocsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create docs directory: %w", err)
	}

	// Persist settings so the file exists for hand editing.
	if err := config.Set(config.Get()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	fmt.Printf("Initialized %s\n", config.DataDir())
	fmt.Printf("  database: %s\n", config.DatabasePath())
	fmt.Printf("  settings: %s\n", config.SettingsPath())
	fmt.Printf("  docs:     %s\n", config.DocsDir())
	fmt.Println("\nNext: run 'devloop wizard' to create a project and first request.")
	return nil
}
