package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/pevans/newsledger/ledger"
	"github.com/spf13/cobra"
)

func newCrawlCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run a single crawl cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.crawler.RunCycle(ctx)
			return printCycleReport(cmd.OutOrStdout(), opts.format, report)
		},
	}
}

func newAnchorCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "anchor",
		Short: "Anchor stored articles that have no ledger reference yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if limit <= 0 {
				limit = a.cfg.Crawl.AnchorSweepLimit
			}

			outcomes, err := a.crawler.SweepPendingAnchors(ctx, limit)
			if errors.Is(err, ledger.ErrDisabled) {
				return errors.New("ledger is not configured: set POLYGON_RPC, CONTRACT_ADDRESS and PRIVATE_KEY")
			}
			if err != nil {
				return err
			}
			return printOutcomes(cmd.OutOrStdout(), opts.format, outcomes)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of articles to anchor (default crawl.anchor_sweep_limit)")
	return cmd
}
