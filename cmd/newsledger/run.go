package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/pevans/newsledger"
	"github.com/pevans/newsledger/api"
	"github.com/spf13/cobra"
)

func newRunCommand(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run crawl cycles on the configured schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("listen") {
				a.cfg.API.Listen = listen
			}

			return runService(ctx, a)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "admin API listen address, e.g. :8080 (overrides api.listen)")
	return cmd
}

// runService runs the scheduler and, when configured, the admin API until
// ctx is cancelled or the API fails. It waits for the running cycle before
// returning.
func runService(ctx context.Context, a *app) error {
	service, err := newsledger.NewService(a.crawler, a.cfg.Crawl.Schedule, a.log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	apiErr := make(chan error, 1)
	if a.cfg.API.Listen != "" {
		server := api.NewServer(a.crawler, service, a.log)
		go func() { apiErr <- server.ListenAndServe(ctx, a.cfg.API.Listen) }()
	}

	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		_ = service.Run(ctx)
	}()

	var runErr error
	select {
	case err := <-apiErr:
		if err != nil {
			a.log.Error("Admin API failed", "error", err)
			runErr = err
		}
	case <-ctx.Done():
	}

	a.log.Info("Shutting down gracefully")
	cancel()
	<-serviceDone
	return runErr
}
