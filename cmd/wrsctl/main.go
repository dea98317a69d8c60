// Command wrsctl is an operator tool that works on the registry store
// directly, bypassing the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"jt-wrs/backend/internal/config"
	"jt-wrs/backend/internal/logging"
	"jt-wrs/backend/internal/repository"
	"jt-wrs/backend/internal/services"
)

var (
	version = "dev"
	cfgFile string
	owner   string

	store    repository.Store
	registry *services.WorkflowRegistry
)

var rootCmd = &cobra.Command{
	Use:     "wrsctl",
	Short:   "Operate on the JTracker workflow registry store",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		store, err = repository.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		registry = services.NewRegistryFromConfig(cfg, store, logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store == nil {
			return nil
		}
		return store.Close()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&owner, "owner", "o", "", "owner name")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func requireOwner() error {
	if owner == "" {
		return fmt.Errorf("--owner is required")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
