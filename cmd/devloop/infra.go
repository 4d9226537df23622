package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"devloop/pkg/persistence"
)

var infraCmd = &cobra.Command{
	Use:   "infra",
	Short: "Manage infrastructure preferences",
	Long: `Infrastructure preferences tell the deploy and verify phases what to
target. Project-level rows are defaults; --request sets a per-request
override. A request whose resolved providers are all "local" skips the
deploy and verify phases entirely.`,
}

var infraSetCmd = &cobra.Command{
	Use:   "set TYPE PROVIDER",
	Short: "Set an infrastructure preference",
	Long: `Set an infrastructure preference for a project (default) or a single
request (--request).

Types:     compute, storage, queue, access, ui
Providers: local, container, aws, gcp, azure

Examples:
  devloop infra set compute aws --project myapp --value "ECS Fargate"
  devloop infra set storage local --project myapp
  devloop infra set queue aws --request 12`,
	Args: cobra.ExactArgs(2),
	RunE: runInfraSet,
}

var infraListCmd = &cobra.Command{
	Use:   "list",
	Short: "List infrastructure rows, or the option catalog with --options",
	Args:  cobra.NoArgs,
	RunE:  runInfraList,
}

var infraRmCmd = &cobra.Command{
	Use:   "rm TYPE",
	Short: "Remove an infrastructure preference",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfraRm,
}

func init() {
	for _, c := range []*cobra.Command{infraSetCmd, infraListCmd, infraRmCmd} {
		c.Flags().String("project", "", "Project name or id")
		c.Flags().Int64("request", 0, "Request id (per-request override)")
	}
	infraSetCmd.Flags().String("value", "", "Concrete stack value (e.g. \"ECS Fargate\", \"postgres\")")
	infraSetCmd.Flags().String("note", "", "Free-form note shown to the agent")
	infraListCmd.Flags().Bool("options", false, "Show the wizard's option catalog instead")

	infraCmd.AddCommand(infraSetCmd)
	infraCmd.AddCommand(infraListCmd)
	infraCmd.AddCommand(infraRmCmd)
	rootCmd.AddCommand(infraCmd)
}

func runInfraSet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	infraType, provider := args[0], args[1]
	value, _ := cmd.Flags().GetString("value")
	note, _ := cmd.Flags().GetString("note")

	if requestID, _ := cmd.Flags().GetInt64("request"); requestID != 0 {
		if _, err := store.GetRequest(requestID); err != nil {
			return err
		}
		err := store.UpsertRequestInfrastructure(&persistence.RequestInfrastructure{
			RequestID: requestID,
			Type:      infraType,
			Provider:  provider,
			Value:     value,
			Note:      note,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Request %d: %s = %s\n", requestID, infraType, provider)
		return nil
	}

	projectArg, _ := cmd.Flags().GetString("project")
	if projectArg == "" {
		return fmt.Errorf("either --project or --request is required")
	}
	project, err := findProject(store, projectArg)
	if err != nil {
		return err
	}
	err = store.UpsertInfrastructure(&persistence.Infrastructure{
		ProjectID: project.ID,
		Type:      infraType,
		Provider:  provider,
		Value:     value,
		Note:      note,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Project %q: %s = %s\n", project.Name, infraType, provider)
	return nil
}

func runInfraList(cmd *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if showOptions, _ := cmd.Flags().GetBool("options"); showOptions {
		options, err := store.ListInfraOptions("")
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tPROVIDER\tDESCRIPTION")
		for _, o := range options {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Type, o.Provider, o.Description)
		}
		return tw.Flush()
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPROVIDER\tVALUE\tNOTE")

	if requestID, _ := cmd.Flags().GetInt64("request"); requestID != 0 {
		rows, err := store.ListRequestInfrastructure(requestID)
		if err != nil {
			return err
		}
		for _, i := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.Type, i.Provider, i.Value, i.Note)
		}
		return tw.Flush()
	}

	projectArg, _ := cmd.Flags().GetString("project")
	if projectArg == "" {
		return fmt.Errorf("either --project or --request is required")
	}
	project, err := findProject(store, projectArg)
	if err != nil {
		return err
	}
	rows, err := store.ListInfrastructure(project.ID)
	if err != nil {
		return err
	}
	for _, i := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.Type, i.Provider, i.Value, i.Note)
	}
	return tw.Flush()
}

func runInfraRm(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	infraType := args[0]
	if requestID, _ := cmd.Flags().GetInt64("request"); requestID != 0 {
		if err := store.DeleteRequestInfrastructure(requestID, infraType); err != nil {
			return err
		}
		fmt.Printf("Request %d: %s override removed\n", requestID, infraType)
		return nil
	}

	projectArg, _ := cmd.Flags().GetString("project")
	if projectArg == "" {
		return fmt.Errorf("either --project or --request is required")
	}
	project, err := findProject(store, projectArg)
	if err != nil {
		return err
	}
	if err := store.DeleteInfrastructure(project.ID, infraType); err != nil {
		return err
	}
	fmt.Printf("Project %q: %s removed\n", project.Name, infraType)
	return nil
}
