package main

import (
	"github.com/spf13/cobra"

	"devloop/pkg/wizard"
)

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactively create a project and its first request",
	RunE:  runWizard,
}

func init() {
	rootCmd.AddCommand(wizardCmd)
}

func runWizard(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	_, err = wizard.New(store).Run()
	return err
}
