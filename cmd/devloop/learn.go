package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"devloop/pkg/persistence"
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Manage learnings fed back into prompts",
	Long: `Learnings are short notes about past failures or conventions. They are
appended to every prompt for their project; global learnings (--global)
are appended for every project. The processor records one automatically
whenever a request fails fatally.`,
}

var learnAddCmd = &cobra.Command{
	Use:   "add TEXT...",
	Short: "Record a learning",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLearnAdd,
}

var learnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learnings for a project, including global ones",
	Args:  cobra.NoArgs,
	RunE:  runLearnList,
}

var learnRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a learning",
	Args:  cobra.ExactArgs(1),
	RunE:  runLearnRm,
}

func init() {
	for _, c := range []*cobra.Command{learnAddCmd, learnListCmd} {
		c.Flags().String("project", "", "Project name or id")
		c.Flags().Bool("global", false, "Apply to every project")
	}

	learnCmd.AddCommand(learnAddCmd)
	learnCmd.AddCommand(learnListCmd)
	learnCmd.AddCommand(learnRmCmd)
	rootCmd.AddCommand(learnCmd)
}

// learnScope resolves --project/--global into a learning project id.
func learnScope(cmd *cobra.Command, store *persistence.Store) (int64, error) {
	if global, _ := cmd.Flags().GetBool("global"); global {
		return persistence.GlobalProjectID, nil
	}
	projectArg, _ := cmd.Flags().GetString("project")
	if projectArg == "" {
		return 0, fmt.Errorf("either --project or --global is required")
	}
	project, err := findProject(store, projectArg)
	if err != nil {
		return 0, err
	}
	return project.ID, nil
}

func runLearnAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projectID, err := learnScope(cmd, store)
	if err != nil {
		return err
	}
	learning, err := store.AddLearning(projectID, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Printf("Learning %d recorded\n", learning.ID)
	return nil
}

func runLearnList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projectID, err := learnScope(cmd, store)
	if err != nil {
		return err
	}
	learnings, err := store.ListLearnings(projectID)
	if err != nil {
		return err
	}
	if len(learnings) == 0 {
		fmt.Println("No learnings.")
		return nil
	}
	for _, l := range learnings {
		scope := "project"
		if l.ProjectID == persistence.GlobalProjectID {
			scope = "global"
		}
		fmt.Printf("%d [%s] %s\n", l.ID, scope, l.Description)
	}
	return nil
}

func runLearnRm(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid learning id %q", args[0])
	}
	if err := store.DeleteLearning(id); err != nil {
		return err
	}
	fmt.Printf("Learning %d deleted\n", id)
	return nil
}
