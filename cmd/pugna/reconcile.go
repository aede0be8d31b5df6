package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/ingest"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store/memory"
)

type reconcileFlags struct {
	format string
	output string
	memory bool
}

func newReconcileCmd() *cobra.Command {
	var flags reconcileFlags

	cmd := &cobra.Command{
		Use:   "reconcile <file>",
		Short: "Reconcile a file of raw fight records",
		Long: "Reads raw fight records from a JSON, YAML or CSV file and reconciles them " +
			"against the canonical store. Ambiguous names are queued for review.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.format, "format", "f", "auto", "File format (json, yaml, csv, auto)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputText, "Report format (text, json, yaml)")
	cmd.Flags().BoolVar(&flags.memory, "memory", false, "Reconcile into a throwaway in-memory store")

	return cmd
}

func runReconcile(cmd *cobra.Command, filePath string, flags reconcileFlags) error {
	if err := validateOutput(flags.output); err != nil {
		return err
	}

	parser := ingest.ForFile(filePath)
	if flags.format != "auto" {
		parser = ingest.ForFormat(flags.format)
	}
	if parser == nil {
		return fmt.Errorf("cannot determine parser for %s (use --format json, yaml or csv)", filePath)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	records, err := parser.Parse(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filePath, err)
	}

	ctx := cmd.Context()
	return withEngine(ctx, engineOptions{memory: flags.memory}, func(a *app, engine *reconcile.Engine) error {
		report, runErr := engine.ProcessBatch(ctx, records)
		if report != nil {
			if err := printReport(cmd.OutOrStdout(), flags.output, report, a.memory); err != nil {
				return err
			}
		}
		if runErr != nil {
			return fmt.Errorf("reconciling %s: %w", filePath, runErr)
		}
		if report.Failed > 0 {
			return errors.New("some records failed; re-running the file is safe")
		}
		return nil
	})
}

func printReport(w io.Writer, format string, report *reconcile.Report, mem *memory.Memory) error {
	if format != outputText {
		return writeStructured(w, format, report)
	}

	fmt.Fprintf(w, "Records:      %d\n", report.Total)
	fmt.Fprintf(w, "  linked:       %d\n", report.Linked)
	fmt.Fprintf(w, "  created:      %d\n", report.Created)
	fmt.Fprintf(w, "  queued:       %d\n", report.Queued)
	fmt.Fprintf(w, "  revalidated:  %d\n", report.Revalidated)
	fmt.Fprintf(w, "  skipped:      %d\n", report.Skipped)
	fmt.Fprintf(w, "  failed:       %d\n", report.Failed)
	fmt.Fprintf(w, "Contests created: %d\n", report.ContestsCreated)
	fmt.Fprintf(w, "Conflicts:        %d\n", report.Conflicts)
	fmt.Fprintf(w, "Duration:         %s\n", report.FinishedAt.Sub(report.StartedAt))

	if len(report.Issues) > 0 {
		fmt.Fprintf(w, "\nIssues (%d):\n", len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Fprintf(w, "  %s [%s] %s\n", issue.RecordID, issue.Kind, issue.Reason)
		}
	}

	if mem != nil {
		counts := mem.Counts()
		fmt.Fprintf(w, "\nStore: %d competitors, %d events, %d contests (%d active), %d history views, %d pending\n",
			counts.Competitors, counts.Events, counts.Contests, counts.ActiveContests, counts.HistoryViews, counts.Pending)
	}
	return nil
}
