package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devloop/pkg/persistence"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectAdd,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show NAME|ID",
	Short: "Show a project with its infrastructure and requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update NAME|ID",
	Short: "Update project fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectUpdate,
}

var projectRmCmd = &cobra.Command{
	Use:   "rm NAME|ID",
	Short: "Delete a project and all its requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectRm,
}

func init() {
	for _, c := range []*cobra.Command{projectAddCmd, projectUpdateCmd} {
		c.Flags().String("version", "", "Version label")
		c.Flags().Int("priority", 0, "Priority 1-10 (1 = highest)")
		c.Flags().String("desc", "", "Description")
		c.Flags().String("code-dir", "", "Default code directory for requests")
		c.Flags().String("prompt", "", "Extra prompt text prepended to every request")
		c.Flags().String("claude-md", "", "Path to a project instructions file included in prompts")
		c.Flags().Bool("commit", true, "Allow the commit phase for this project")
		c.Flags().String("commit-branch-mode", "", "Commit branch mode: current or other")
		c.Flags().String("commit-branch", "", "Branch name when mode is other")
	}
	projectUpdateCmd.Flags().String("phase", "", "Project phase context")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectUpdateCmd)
	projectCmd.AddCommand(projectRmCmd)
	rootCmd.AddCommand(projectCmd)
}

// findProject resolves a project by numeric id or unique name.
func findProject(store *persistence.Store, arg string) (*persistence.Project, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		p, err := store.GetProject(id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}
	}
	return store.GetProjectByName(arg)
}

func runProjectAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	version, _ := cmd.Flags().GetString("version")
	priority, _ := cmd.Flags().GetInt("priority")
	desc, _ := cmd.Flags().GetString("desc")
	codeDir, _ := cmd.Flags().GetString("code-dir")
	promptText, _ := cmd.Flags().GetString("prompt")
	claudeMD, _ := cmd.Flags().GetString("claude-md")
	branchMode, _ := cmd.Flags().GetString("commit-branch-mode")
	branchName, _ := cmd.Flags().GetString("commit-branch")

	project := &persistence.Project{
		Name:             args[0],
		Version:          version,
		Priority:         priority,
		Description:      desc,
		CodeDir:          codeDir,
		PromptText:       promptText,
		ClaudeMDRef:      claudeMD,
		CommitBranchMode: branchMode,
		CommitBranchName: branchName,
	}
	if err := store.CreateProject(project); err != nil {
		return err
	}

	// An explicit --commit=false is a post-creation update; creation always
	// starts from the inherit default.
	if cmd.Flags().Changed("commit") {
		if enabled, _ := cmd.Flags().GetBool("commit"); !enabled {
			project.CommitEnabled = persistence.CommitDisabled
			if err := store.UpdateProject(project); err != nil {
				return err
			}
		}
	}

	fmt.Printf("Project %q created (ID %d)\n", project.Name, project.ID)
	return nil
}

func runProjectList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projects, err := store.ListProjects()
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		fmt.Println("No projects. Run 'devloop wizard' or 'devloop project add'.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tPRIORITY\tPHASE\tDESCRIPTION")
	for _, p := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, p.Version, p.Priority, p.Phase, p.Description)
	}
	return tw.Flush()
}

func runProjectShow(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := findProject(store, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Project %d: %s\n", project.ID, project.Name)
	fmt.Printf("  Version:  %s\n", project.Version)
	fmt.Printf("  Priority: %d\n", project.Priority)
	fmt.Printf("  Phase:    %s\n", project.Phase)
	if project.Description != "" {
		fmt.Printf("  Desc:     %s\n", project.Description)
	}
	if project.CodeDir != "" {
		fmt.Printf("  Code dir: %s\n", project.CodeDir)
	}
	if project.CommitEnabled == persistence.CommitDisabled {
		fmt.Println("  Commits:  disabled")
	}

	infra, err := store.ListInfrastructure(project.ID)
	if err != nil {
		return err
	}
	if len(infra) > 0 {
		fmt.Println("  Infrastructure:")
		for _, i := range infra {
			fmt.Printf("    %s: %s", i.Type, i.Provider)
			if i.Value != "" {
				fmt.Printf(" (%s)", i.Value)
			}
			fmt.Println()
		}
	}

	requests, err := store.ListRequests(project.ID)
	if err != nil {
		return err
	}
	if len(requests) > 0 {
		fmt.Println("  Requests:")
		for _, r := range requests {
			fmt.Printf("    %d: %s [%s/%s]\n", r.ID, r.Name, r.Phase, r.Status)
		}
	}
	return nil
}

func runProjectUpdate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := findProject(store, args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("version") {
		project.Version, _ = flags.GetString("version")
	}
	if flags.Changed("priority") {
		project.Priority, _ = flags.GetInt("priority")
	}
	if flags.Changed("desc") {
		project.Description, _ = flags.GetString("desc")
	}
	if flags.Changed("code-dir") {
		project.CodeDir, _ = flags.GetString("code-dir")
	}
	if flags.Changed("prompt") {
		project.PromptText, _ = flags.GetString("prompt")
	}
	if flags.Changed("claude-md") {
		project.ClaudeMDRef, _ = flags.GetString("claude-md")
	}
	if flags.Changed("phase") {
		project.Phase, _ = flags.GetString("phase")
	}
	if flags.Changed("commit") {
		enabled, _ := flags.GetBool("commit")
		if enabled {
			project.CommitEnabled = persistence.CommitInherit
		} else {
			project.CommitEnabled = persistence.CommitDisabled
		}
	}
	if flags.Changed("commit-branch-mode") {
		project.CommitBranchMode, _ = flags.GetString("commit-branch-mode")
	}
	if flags.Changed("commit-branch") {
		project.CommitBranchName, _ = flags.GetString("commit-branch")
	}

	if err := store.UpdateProject(project); err != nil {
		return err
	}
	fmt.Printf("Project %q updated\n", project.Name)
	return nil
}

func runProjectRm(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	project, err := findProject(store, args[0])
	if err != nil {
		return err
	}
	if err := store.DeleteProject(project.ID); err != nil {
		return err
	}
	fmt.Printf("Project %q deleted (requests cascade)\n", project.Name)
	return nil
}
