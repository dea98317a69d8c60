package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"jt-wrs/backend/pkg/models"
)

var (
	listName    string
	listVersion string

	getVersion string

	registerEntry models.WorkflowEntry

	planVersion string
	planJobFile string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workflows of an owner as JSON",
	Long: `List the workflows of an owner as JSON.

Examples:
  wrsctl list --owner alice
  wrsctl list --owner alice --name rna-seq --version 0.2.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		workflows, err := registry.ListWorkflows(cmd.Context(), owner, listName, listVersion)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), workflows)
	},
}

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show one workflow as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		wf, err := registry.GetWorkflow(cmd.Context(), owner, args[0], getVersion)
		if err != nil {
			return err
		}
		if wf == nil {
			return fmt.Errorf("workflow %s/%s not found", owner, args[0])
		}
		return printJSON(cmd.OutOrStdout(), wf)
	},
}

var workflowfileCmd = &cobra.Command{
	Use:   "workflowfile <name> <version>",
	Short: "Print the workflow definition of a version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		text, found, err := registry.GetWorkflowfile(cmd.Context(), owner, args[0], args[1])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("workflowfile of %s/%s %s not found", owner, args[0], args[1])
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a workflow version from its git repository",
	Long: `Register a workflow version from its git repository.

The git tag must equal the version or <name>.<version>.

Examples:
  wrsctl register --owner alice --name rna-seq --version 0.2.0 \
    --git-account alice --git-repo rna-seq --git-path workflow --git-tag 0.2.0`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		wf, err := registry.RegisterWorkflow(cmd.Context(), owner, registerEntry)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), wf)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <name>",
	Short: "Compute the execution plan of a job",
	Long: `Compute the execution plan of a job against a registered version.

The job is read as a JSON object from --job, or from stdin when --job is "-".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireOwner(); err != nil {
			return err
		}
		job, err := readJob(cmd)
		if err != nil {
			return err
		}
		plan, err := registry.GetExecutionPlan(cmd.Context(), owner, args[0], planVersion, job)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), plan)
	},
}

func readJob(cmd *cobra.Command) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if planJobFile == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(planJobFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}

	var job map[string]any
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("job must be a JSON object: %w", err)
	}
	return job, nil
}

func init() {
	listCmd.Flags().StringVarP(&listName, "name", "n", "", "only this workflow")
	listCmd.Flags().StringVarP(&listVersion, "version", "v", "", "only this version")

	getCmd.Flags().StringVarP(&getVersion, "version", "v", "", "only this version")

	f := registerCmd.Flags()
	f.StringVar(&registerEntry.Name, "name", "", "workflow name")
	f.StringVar(&registerEntry.Version, "version", "", "workflow version")
	f.StringVar(&registerEntry.WorkflowType, "type", models.WorkflowTypeJTracker, "workflow type")
	f.StringVar(&registerEntry.GitAccount, "git-account", "", "git account holding the repository")
	f.StringVar(&registerEntry.GitRepo, "git-repo", "", "git repository")
	f.StringVar(&registerEntry.GitPath, "git-path", "", "directory of the workflow within the repository")
	f.StringVar(&registerEntry.GitTag, "git-tag", "", "git tag of the version")

	planCmd.Flags().StringVarP(&planVersion, "version", "v", "", "workflow version")
	planCmd.Flags().StringVarP(&planJobFile, "job", "j", "-", "job JSON file")
	_ = planCmd.MarkFlagRequired("version")

	rootCmd.AddCommand(listCmd, getCmd, workflowfileCmd, registerCmd, planCmd)
}
