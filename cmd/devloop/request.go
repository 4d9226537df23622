package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devloop/pkg/persistence"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage development requests",
}

var requestAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Queue a new request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestAdd,
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List requests in scheduler order",
	Args:  cobra.NoArgs,
	RunE:  runRequestList,
}

var requestShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a request in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestShow,
}

var requestUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update request fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestUpdate,
}

var requestRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestRm,
}

var requestRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Re-queue a failed or timed-out request at its current phase",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestRetry,
}

func init() {
	requestAddCmd.Flags().String("project", "", "Owning project name or id (required)")
	_ = requestAddCmd.MarkFlagRequired("project")
	requestAddCmd.Flags().String("prompt", "", "What should be done (required)")
	_ = requestAddCmd.MarkFlagRequired("prompt")

	for _, c := range []*cobra.Command{requestAddCmd, requestUpdateCmd} {
		c.Flags().String("type", "", "Change type: new_feature, bug_fix, or enhancement")
		c.Flags().Int("priority", 0, "Priority 1-10 (1 = highest)")
		c.Flags().String("code-dir", "", "Code directory override")
		c.Flags().Bool("commit", true, "Commit policy override: --commit forces, --commit=false disables")
		c.Flags().String("commit-branch", "", "Branch to commit to")
	}
	requestUpdateCmd.Flags().String("prompt", "", "Replace the request prompt")

	requestListCmd.Flags().String("project", "", "Restrict to one project (name or id)")

	requestCmd.AddCommand(requestAddCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestShowCmd)
	requestCmd.AddCommand(requestUpdateCmd)
	requestCmd.AddCommand(requestRmCmd)
	requestCmd.AddCommand(requestRetryCmd)
	rootCmd.AddCommand(requestCmd)
}

func parseRequestID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid request id %q", arg)
	}
	return id, nil
}

func runRequestAdd(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	projectArg, _ := cmd.Flags().GetString("project")
	project, err := findProject(store, projectArg)
	if err != nil {
		return err
	}

	reqType, _ := cmd.Flags().GetString("type")
	priority, _ := cmd.Flags().GetInt("priority")
	promptText, _ := cmd.Flags().GetString("prompt")
	codeDir, _ := cmd.Flags().GetString("code-dir")
	branch, _ := cmd.Flags().GetString("commit-branch")

	req := &persistence.Request{
		ProjectID:    project.ID,
		Name:         args[0],
		Type:         reqType,
		Priority:     priority,
		Prompt:       promptText,
		CodeDir:      codeDir,
		CommitBranch: branch,
	}
	if cmd.Flags().Changed("commit") {
		if enabled, _ := cmd.Flags().GetBool("commit"); enabled {
			req.CommitEnabled = persistence.CommitForced
		}
	}
	if err := store.CreateRequest(req); err != nil {
		return err
	}

	// Explicit disable is a post-creation update, same as for projects.
	if cmd.Flags().Changed("commit") {
		if enabled, _ := cmd.Flags().GetBool("commit"); !enabled {
			req.CommitEnabled = persistence.CommitDisabled
			if err := store.UpdateRequest(req); err != nil {
				return err
			}
		}
	}

	fmt.Printf("Request %d queued for project %q\n", req.ID, project.Name)
	return nil
}

func runRequestList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var projectID int64
	if arg, _ := cmd.Flags().GetString("project"); arg != "" {
		project, err := findProject(store, arg)
		if err != nil {
			return err
		}
		projectID = project.ID
	}

	requests, err := store.ListRequests(projectID)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		fmt.Println("No requests.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tNAME\tTYPE\tPHASE\tSTATUS\tPRI\tRETRIES")
	for _, r := range requests {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.ID, r.ProjectID, r.Name, r.Type, r.Phase, r.Status, r.Priority, r.TestRetries)
	}
	return tw.Flush()
}

func runRequestShow(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseRequestID(args[0])
	if err != nil {
		return err
	}
	req, err := store.GetRequest(id)
	if err != nil {
		return err
	}

	fmt.Printf("Request %d: %s\n", req.ID, req.Name)
	fmt.Printf("  Project:  %d\n", req.ProjectID)
	fmt.Printf("  Type:     %s\n", req.Type)
	fmt.Printf("  Phase:    %s\n", req.Phase)
	fmt.Printf("  Status:   %s\n", req.Status)
	fmt.Printf("  Priority: %d\n", req.Priority)
	fmt.Printf("  Retries:  %d\n", req.TestRetries)
	fmt.Printf("  Touched:  %s\n", req.TouchedAt.Format("2006-01-02 15:04:05 MST"))
	if req.CodeDir != "" {
		fmt.Printf("  Code dir: %s\n", req.CodeDir)
	}
	if req.PlanPath != "" {
		fmt.Printf("  Plan:     %s\n", req.PlanPath)
	}
	if req.TestplanPath != "" {
		fmt.Printf("  Testplan: %s\n", req.TestplanPath)
	}
	if req.DocPath != "" {
		fmt.Printf("  Doc:      %s\n", req.DocPath)
	}
	if req.ErrorText != "" {
		fmt.Printf("  Error:    %s\n", req.ErrorText)
	}
	fmt.Printf("  Prompt:\n    %s\n", req.Prompt)

	overrides, err := store.ListRequestInfrastructure(req.ID)
	if err != nil {
		return err
	}
	if len(overrides) > 0 {
		fmt.Println("  Infrastructure overrides:")
		for _, i := range overrides {
			fmt.Printf("    %s: %s", i.Type, i.Provider)
			if i.Value != "" {
				fmt.Printf(" (%s)", i.Value)
			}
			fmt.Println()
		}
	}
	return nil
}

func runRequestUpdate(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseRequestID(args[0])
	if err != nil {
		return err
	}
	req, err := store.GetRequest(id)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("type") {
		req.Type, _ = flags.GetString("type")
	}
	if flags.Changed("priority") {
		req.Priority, _ = flags.GetInt("priority")
	}
	if flags.Changed("prompt") {
		req.Prompt, _ = flags.GetString("prompt")
	}
	if flags.Changed("code-dir") {
		req.CodeDir, _ = flags.GetString("code-dir")
	}
	if flags.Changed("commit") {
		if enabled, _ := flags.GetBool("commit"); enabled {
			req.CommitEnabled = persistence.CommitForced
		} else {
			req.CommitEnabled = persistence.CommitDisabled
		}
	}
	if flags.Changed("commit-branch") {
		req.CommitBranch, _ = flags.GetString("commit-branch")
	}

	if err := store.UpdateRequest(req); err != nil {
		return err
	}
	fmt.Printf("Request %d updated\n", req.ID)
	return nil
}

func runRequestRm(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseRequestID(args[0])
	if err != nil {
		return err
	}
	if err := store.DeleteRequest(id); err != nil {
		return err
	}
	fmt.Printf("Request %d deleted\n", id)
	return nil
}

func runRequestRetry(_ *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseRequestID(args[0])
	if err != nil {
		return err
	}
	req, err := store.GetRequest(id)
	if err != nil {
		return err
	}
	if req.Status != persistence.StatusError && req.Status != persistence.StatusTimeout {
		return fmt.Errorf("request %d is %s; only err or tmout requests can be retried", id, req.Status)
	}

	if err := store.UpdateRequestStatus(id, persistence.StatusTBD, ""); err != nil {
		return err
	}
	fmt.Printf("Request %d re-queued at phase %s\n", id, req.Phase)
	return nil
}
