package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/adapter"
	"github.com/tallydash/tally/internal/cli/output"
	"github.com/tallydash/tally/internal/domain"
)

func newSnapshotCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and clear stored snapshots",
		Long: `A snapshot is the last complete load of a collection for one filter.
Snapshots are stored per server under the cache directory.`,
	}
	cmd.AddCommand(
		newSnapshotListCmd(opts),
		newSnapshotShowCmd(opts),
		newSnapshotClearCmd(opts),
		newSnapshotPurgeCmd(opts),
	)
	return cmd
}

// snapshotList renders snapshot metadata.
type snapshotList []domain.SnapshotInfo

func (l snapshotList) Headers() []string {
	return []string{"Collection", "Filter", "Records", "Saved", "Signature"}
}

func (l snapshotList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, info := range l {
		rows = append(rows, []string{
			info.Collection,
			info.Filter.String(),
			strconv.Itoa(info.Count),
			info.SavedAt.Local().Format(time.DateTime),
			info.Signature,
		})
	}
	return rows
}

func newSnapshotListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [collection]",
		Short: "List stored snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withApp(cmd, opts, func(a *app) error {
				infos, err := a.queries.ListSnapshots(name)
				if err != nil {
					return err
				}
				if len(infos) == 0 && a.printer.Format() == output.FormatTable {
					a.printer.Printf("No snapshots stored.\n")
					return nil
				}
				return a.printer.Print(snapshotList(infos))
			})
		},
	}
}

func newSnapshotShowCmd(opts *globalOptions) *cobra.Command {
	var (
		filter filterFlags
		sel    selection
	)

	cmd := &cobra.Command{
		Use:   "show <collection>",
		Short: "Print the stored snapshot for a filter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				snap, err := a.queries.GetSnapshot(args[0], filter.filter())
				if err != nil {
					return err
				}
				records, err := sel.apply(snap.Records)
				if err != nil {
					return err
				}
				saved := snap.SavedAt
				return a.printer.Print(recordsOutput{
					Collection: snap.Collection,
					Filter:     snap.Filter.String(),
					Total:      snap.Total,
					Loaded:     len(snap.Records),
					Shown:      len(records),
					SavedAt:    &saved,
					Records:    viewRecords(records),
				})
			})
		},
	}

	filter.register(cmd)
	cmd.Flags().StringVar(&sel.find, "find", "", "rank records by fuzzy label match")
	cmd.Flags().StringVar(&sel.where, "where", "", "keep records whose field contains a value (field=value)")
	cmd.Flags().IntVar(&sel.limit, "limit", 0, "print at most this many records")
	return cmd
}

func newSnapshotClearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [collection]",
		Short: "Drop stored snapshots of a collection, or of every collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(a *app) error {
				if len(args) == 0 {
					a.commands.InvalidateAll()
					a.printer.Printf("Cleared all snapshots.\n")
					return nil
				}
				a.commands.NotifyDataChanged(args[0], "cleared from cli")
				a.printer.Printf("Cleared snapshots of %s.\n", args[0])
				return nil
			})
		},
	}
}

func newSnapshotPurgeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete the snapshot directory of every server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if err := adapter.ClearCache(cfg.Cache.Dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", cfg.Cache.Dir)
			return nil
		},
	}
}
