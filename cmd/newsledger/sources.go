package main

import (
	"fmt"

	"github.com/pevans/newsledger/config"
	"github.com/spf13/cobra"
)

func newSourcesCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List and validate the source catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
				file = cfg.Crawl.SourcesFile
			}

			catalog, err := loadCatalog(file, opts.sources)
			if err != nil {
				return err
			}
			return printSources(cmd.OutOrStdout(), opts.format, catalog.List())
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "catalog file to validate (default crawl.sources_file, else built-in)")
	return cmd
}
