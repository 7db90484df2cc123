package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/tallydash/tally/internal/domain"
	"github.com/tallydash/tally/internal/tui"
	"golang.org/x/term"
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var filter filterFlags

	cmd := &cobra.Command{
		Use:   "watch <collection>",
		Short: "Monitor a collection load interactively",
		Long: `Open a terminal monitor for a collection. Changing the period or the
search term starts a new session; responses for the old one are dropped.

Keys: t next period, / search, f find, r retry, R data changed, q quit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return errors.New("watch needs an interactive terminal; use load instead")
			}
			if err := filter.filter().Validate(); err != nil {
				return err
			}
			return withApp(cmd, opts, func(a *app) error {
				return runWatch(cmd.Context(), a, args[0], filter.filter())
			})
		},
	}

	filter.register(cmd)
	return cmd
}

func runWatch(ctx context.Context, a *app, name string, filter domain.Filter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := make(chan domain.LoadProgress, 16)
	done := make(chan struct{})

	l, stop, err := a.commands.Watch(name, tui.NewChannelObserver(progress, done))
	if err != nil {
		return err
	}
	defer stop()

	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("loader stopped", "collection", name, "error", err)
		}
	}()
	go a.commands.RunInvalidator(ctx)

	model := tui.NewModel(name, filter, l, progress, a.commands.NotifyDataChanged, a.logger)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	a.logger.Info("starting monitor", "collection", name, "filter", filter.String())
	_, runErr := p.Run()

	// Release a loader blocked on a terminal signal, then wait for it
	close(done)
	cancel()
	<-l.Done()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		a.logger.Error("TUI error", "error", runErr)
		return fmt.Errorf("TUI error: %w", runErr)
	}
	a.logger.Info("shutting down")
	return nil
}
