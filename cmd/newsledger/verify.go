package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newVerifyCommand(opts *globalOptions) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Check article text against stored fingerprints",
		Long: `verify hashes the given text and lists stored articles whose body has the
same fingerprint. Text is read from --text, the named file, or stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), text, args)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.crawler.Verify(cmd.Context(), content)
			if err != nil {
				return err
			}
			return printVerification(cmd.OutOrStdout(), opts.format, result)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "article text to verify")
	return cmd
}

// readContent returns the text to verify from the flag, a file or stdin.
func readContent(stdin io.Reader, text string, args []string) (string, error) {
	if text != "" {
		return text, nil
	}

	var data []byte
	var err error
	if len(args) == 1 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	// Stored bodies never end in a newline.
	content := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("no content to verify")
	}
	return content, nil
}
