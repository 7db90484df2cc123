package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/adapter"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	var (
		force     bool
		serverURL string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the built-in collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if path == "" {
				path = adapter.DefaultConfigFile()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := adapter.DefaultConfig()
			if serverURL != "" {
				cfg.Server.URL = serverURL
			}
			cfg.Server.Token = token
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := adapter.SaveConfig(cfg, path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration file created at: %s\n", path)
			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintln(out, "  1. Edit the collections to match your backend")
			fmt.Fprintln(out, "  2. Load a collection with: tally load employees")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.Flags().StringVar(&serverURL, "server", "", "backend base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	return cmd
}
