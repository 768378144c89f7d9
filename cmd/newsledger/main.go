package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	sources    []string
	format     string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "newsledger",
		Short: "Crawl news sources and anchor article fingerprints to a ledger",
		Long: `newsledger discovers articles from a fixed catalog of news sources,
stores each article once by canonical URL, and optionally records a SHA-256
fingerprint of its text on an EVM ledger for later integrity checks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.newsledger/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	flags.StringSliceVar(&opts.sources, "source", nil, "limit crawling to these source ids (repeatable)")
	flags.StringVar(&opts.format, "format", "table", "output format (table or json)")

	root.AddCommand(
		newRunCommand(opts),
		newCrawlCommand(opts),
		newAnchorCommand(opts),
		newVerifyCommand(opts),
		newSubmitCommand(opts),
		newSourcesCommand(opts),
	)

	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
