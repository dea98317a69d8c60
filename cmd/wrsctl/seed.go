package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"jt-wrs/backend/internal/services"
	"jt-wrs/backend/pkg/models"
)

// manifest lists workflow versions to register for one owner.
type manifest struct {
	Owner     string          `yaml:"owner"`
	Workflows []manifestEntry `yaml:"workflows"`
}

type manifestEntry struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	WorkflowType string `yaml:"workflow_type"`
	GitAccount   string `yaml:"git_account"`
	GitRepo      string `yaml:"git_repo"`
	GitPath      string `yaml:"git_path"`
	GitTag       string `yaml:"git_tag"`
}

func (e manifestEntry) toEntry() models.WorkflowEntry {
	return models.WorkflowEntry{
		Name:         e.Name,
		Version:      e.Version,
		WorkflowType: e.WorkflowType,
		GitAccount:   e.GitAccount,
		GitRepo:      e.GitRepo,
		GitPath:      e.GitPath,
		GitTag:       e.GitTag,
	}
}

var seedCmd = &cobra.Command{
	Use:   "seed <manifest.yaml>",
	Short: "Register every workflow version listed in a manifest",
	Long: `Register every workflow version listed in a YAML manifest.

Versions that are already registered are skipped, so a manifest can be
applied repeatedly. --owner overrides the owner named in the manifest.

Manifest:
  owner: alice
  workflows:
    - name: rna-seq
      version: 0.2.0
      git_account: alice
      git_repo: rna-seq
      git_path: workflow
      git_tag: rna-seq.0.2.0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read manifest: %w", err)
		}
		var m manifest
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("failed to parse manifest: %w", err)
		}
		if owner != "" {
			m.Owner = owner
		}
		if m.Owner == "" {
			return fmt.Errorf("manifest names no owner and --owner is empty")
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, w := range m.Workflows {
			wf, err := registry.RegisterWorkflow(cmd.Context(), m.Owner, w.toEntry())
			switch {
			case errors.Is(err, services.ErrDuplicateRegistration):
				fmt.Fprintf(out, "skipped  %s %s (already registered)\n", w.Name, w.Version)
			case err != nil:
				failed++
				fmt.Fprintf(out, "failed   %s %s: %v\n", w.Name, w.Version, err)
			default:
				fmt.Fprintf(out, "seeded   %s %s (id %s)\n", w.Name, w.Version, wf.ID)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d workflow versions failed", failed, len(m.Workflows))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
