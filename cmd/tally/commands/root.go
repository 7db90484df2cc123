// Package commands implements the tally CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile  string
	output      string
	metricsAddr string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "tally",
		Short: "tally - progressive loader for the tally dashboard",
		Long: `tally loads dashboard collections (employees, attendance) page by page.

Uncached queries trickle in fixed-size batches; once the backend reports a
cache hit the remainder is fetched in one request. Complete results are kept
as local snapshots.

Environment variables override the config file: TALLY_<SECTION>_<KEY>,
for example TALLY_SERVER_TOKEN or TALLY_LOADER_PAGE_SIZE.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: $HOME/.config/tally/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table|json|yaml)")
	root.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newLoadCmd(opts),
		newWatchCmd(opts),
		newSnapshotCmd(opts),
		newCollectionsCmd(opts),
		newInitCmd(opts),
		newVersionCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}
