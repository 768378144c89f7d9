package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pevans/newsledger"
	"github.com/pevans/newsledger/discovery"
	"github.com/spf13/cobra"
)

func newSubmitCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <url>",
		Short: "Fetch, store and anchor a single article URL",
		Long: `submit runs one article URL through the crawl pipeline: it is skipped when
already stored, otherwise extracted, persisted and anchored when a ledger is
configured. URLs on a catalog host use that source's extraction settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := discovery.Canonicalize(args[0]); err != nil {
				return fmt.Errorf("%w: %q: %w", newsledger.ErrInvalidURL, args[0], err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, err := a.crawler.Submit(ctx, args[0])
			if err != nil {
				return err
			}
			if err := printSubmission(cmd.OutOrStdout(), opts.format, outcome); err != nil {
				return err
			}
			if outcome.State.Failed() && outcome.State != newsledger.StateAnchorFailed {
				return fmt.Errorf("article not stored: %s", outcome.State)
			}
			return nil
		},
	}
}
