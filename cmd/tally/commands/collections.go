package commands

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/backend"
)

// collectionList renders configured collections.
type collectionList []backend.Collection

func (l collectionList) Headers() []string { return []string{"Name", "Path", "Keys", "Label"} }

func (l collectionList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, c := range l {
		keys := make([]string, 0, len(c.Keys))
		for _, k := range c.Keys {
			keys = append(keys, k.Name+"("+strings.Join(k.Fields, ",")+")")
		}
		rows = append(rows, []string{c.Name, c.Path, strings.Join(keys, " "), c.Label})
	}
	return rows
}

func newCollectionsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List configured collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			printer, err := newPrinter(cmd, opts)
			if err != nil {
				return err
			}

			list := make(collectionList, 0, len(cfg.Collections))
			for _, name := range cfg.CollectionNames() {
				coll, _ := cfg.Collection(name)
				list = append(list, coll)
			}
			return printer.Print(list)
		},
	}
}
