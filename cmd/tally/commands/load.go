package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/collection"
	"github.com/tallydash/tally/internal/domain"
	"golang.org/x/term"
)

// clearProgressLine clears the progress line from the terminal
const clearProgressLine = "\r                                        \r"

func newLoadCmd(opts *globalOptions) *cobra.Command {
	var (
		filter  filterFlags
		sel     selection
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "load <collection>",
		Short: "Load every record of a collection",
		Long: `Load every record of a collection for a filter and print them.

The first page decides the strategy: a cache hit fetches the rest in one
request, otherwise records trickle in page by page. A complete result is
saved as the collection's snapshot.

Examples:
  tally load employees --period last_6_months
  tally load attendance --period custom_month --year 2024 --month 3 -o json
  tally load employees --find "ann" --limit 10
  tally load employees --where department=sales`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				opts.output = "json"
			}
			return withApp(cmd, opts, func(a *app) error {
				ctx := cmd.Context()
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}

				progress := progressPrinter(cmd.ErrOrStderr())
				result, loadErr := a.commands.Load(ctx, args[0], filter.filter(), progress)
				if progress != nil {
					fmt.Fprint(cmd.ErrOrStderr(), clearProgressLine)
				}
				if loadErr != nil && !errors.Is(loadErr, domain.ErrIncomplete) {
					return loadErr
				}

				if err := printResult(a, result, sel); err != nil {
					return err
				}
				if loadErr != nil {
					return loadErr
				}
				if result.Empty {
					fmt.Fprintln(cmd.ErrOrStderr(), "No records match this filter.")
				}
				return nil
			})
		},
	}

	filter.register(cmd)
	fs := cmd.Flags()
	fs.StringVar(&sel.find, "find", "", "rank loaded records by fuzzy label match")
	fs.StringVar(&sel.where, "where", "", "keep records whose field contains a value (field=value)")
	fs.IntVar(&sel.limit, "limit", 0, "print at most this many records")
	fs.BoolVar(&asJSON, "json", false, "shorthand for --output json")
	fs.DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")
	return cmd
}

// progressPrinter reports progress on w when it is a terminal.
func progressPrinter(w io.Writer) domain.ProgressFunc {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return func(loaded, total int) {
		fmt.Fprintf(w, "\rloaded %d of %d records", loaded, total)
	}
}

func printResult(a *app, r collection.LoadResult, sel selection) error {
	records, err := sel.apply(r.Records)
	if err != nil {
		return err
	}

	out := recordsOutput{
		Collection: r.Collection,
		Filter:     r.Filter.String(),
		SessionID:  r.SessionID,
		Total:      r.Total,
		Loaded:     len(r.Records),
		Shown:      len(records),
		Requests:   r.Requests,
		Escalated:  r.Escalated,
		Duplicates: r.Duplicates,
		Retries:    r.Retries,
		Duration:   r.Duration.Round(time.Millisecond).String(),
		Records:    viewRecords(records),
	}
	return a.printer.Print(out)
}
