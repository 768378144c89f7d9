package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsledger"
	"github.com/pevans/newsledger/sources"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func checkFormat(format string) error {
	if format != "table" && format != "json" {
		return fmt.Errorf("unknown format %q (use table or json)", format)
	}
	return nil
}

// printCycleReport prints per-source discovery results and state counts.
func printCycleReport(w io.Writer, format string, report *newsledger.CycleReport) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, report)
	}

	fmt.Fprintf(w, "Crawl cycle finished in %s\n\n", report.Duration().Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tLINKS\tSTATUS")
	for _, s := range report.Sources {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", s.SourceID, s.Links, status)
	}
	tw.Flush()

	fmt.Fprintln(w)
	printCounts(w, report.Outcomes)

	if len(report.Sweep) > 0 {
		fmt.Fprintln(w, "\nPending anchor sweep:")
		printCounts(w, report.Sweep)
	}
	return nil
}

// printOutcomes lists each URL outcome.
func printOutcomes(w io.Writer, format string, outcomes newsledger.Outcomes) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, outcomes)
	}

	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No articles pending.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tURL\tREFERENCE")
	for _, o := range outcomes {
		ref := o.Reference
		if o.Err != nil {
			ref = o.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.State, o.URL, ref)
	}
	return tw.Flush()
}

func printCounts(w io.Writer, outcomes newsledger.Outcomes) {
	counts := outcomes.Counts()
	if len(counts) == 0 {
		fmt.Fprintln(w, "No new links.")
		return
	}

	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, string(state))
	}
	sort.Strings(states)

	for _, state := range states {
		fmt.Fprintf(w, "  %-18s %d\n", state, counts[newsledger.State(state)])
	}
}

// printVerification prints whether the text matches a stored article.
func printVerification(w io.Writer, format string, result *newsledger.Verification) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, result)
	}

	fmt.Fprintf(w, "Fingerprint: %s\n", result.Fingerprint)
	if !result.Verified {
		fmt.Fprintln(w, "Not verified: no stored article has this fingerprint.")
		return nil
	}

	fmt.Fprintf(w, "Verified: %d matching article(s)\n\n", len(result.Articles))
	for _, a := range result.Articles {
		fmt.Fprintf(w, "%s\n", a.Title)
		fmt.Fprintf(w, "   %s | Published: %s\n", a.SourceName, a.PublishedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "   URL: %s\n", a.CanonicalURL)
		if a.Anchored() {
			fmt.Fprintf(w, "   Ledger: %s\n", *a.LedgerReference)
		}
		fmt.Fprintf(w, "   ID: %s\n\n", a.ID)
	}

	switch l := result.Ledger; {
	case l == nil:
	case l.Error != "":
		fmt.Fprintf(w, "Ledger check failed: %s\n", l.Error)
	case l.Verified:
		fmt.Fprintf(w, "Ledger: anchored %s by %s (%s)\n",
			l.Record.AnchoredAt.Format("2006-01-02 15:04"), l.Record.Submitter, l.Record.SourceURL)
	default:
		fmt.Fprintln(w, "Ledger: fingerprint not found on the ledger")
	}
	return nil
}

// printSubmission prints the outcome of a single submitted URL.
func printSubmission(w io.Writer, format string, outcome newsledger.Outcome) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, outcome)
	}

	fmt.Fprintf(w, "%s: %s\n", outcome.State, outcome.URL)
	fmt.Fprintf(w, "   Source: %s\n", outcome.SourceID)
	if outcome.ArticleID != uuid.Nil {
		fmt.Fprintf(w, "   ID: %s\n", outcome.ArticleID)
	}
	if outcome.Reference != "" {
		fmt.Fprintf(w, "   Ledger: %s\n", outcome.Reference)
	}
	if outcome.Error != "" {
		fmt.Fprintf(w, "   Error: %s\n", outcome.Error)
	}
	return nil
}

// printSources lists catalog entries.
func printSources(w io.Writer, format string, list []sources.Source) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "json" {
		return printJSON(w, list)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODE\tLISTING URL")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Links.EffectiveMode(), s.ListingURL)
	}
	return tw.Flush()
}
