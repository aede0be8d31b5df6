package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
	}

	cmd.AddCommand(
		newReviewListCmd(),
		newReviewResolveCmd(),
	)

	return cmd
}

type reviewListFlags struct {
	limit  int
	output string
}

func newReviewListCmd() *cobra.Command {
	var flags reviewListFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending candidates, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(flags.output); err != nil {
				return err
			}
			ctx := cmd.Context()
			return withEngine(ctx, engineOptions{}, func(a *app, engine *reconcile.Engine) error {
				pending, err := engine.ListPending(ctx, flags.limit)
				if err != nil {
					return fmt.Errorf("listing pending candidates: %w", err)
				}
				if flags.output != outputText {
					return writeStructured(cmd.OutOrStdout(), flags.output, pending)
				}
				return printPending(cmd, pending)
			})
		},
	}

	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 100, "Maximum candidates to list")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputText, "Output format (text, json, yaml)")

	return cmd
}

func printPending(cmd *cobra.Command, pending []*models.PendingCandidate) error {
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No pending candidates")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tNAME\tEVENT\tDATE\tBAND\tCANDIDATES")
	for _, p := range pending {
		candidates := make([]string, 0, len(p.Candidates))
		for _, c := range p.Candidates {
			candidates = append(candidates, fmt.Sprintf("%s(%.1f)", c.CompetitorID, c.Score))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.Subject, p.RawName, valueOr(p.RawEvent, "-"), valueOr(p.RawDate, "-"), p.Band,
			strings.Join(candidates, " "))
	}
	return tw.Flush()
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

type reviewResolveFlags struct {
	linkTo string
	create bool
	reject bool
	by     string
	output string
}

func (f reviewResolveFlags) decision() (reconcile.Decision, error) {
	chosen := 0
	var decision reconcile.Decision
	if f.linkTo != "" {
		chosen++
		decision = reconcile.LinkTo(f.linkTo)
	}
	if f.create {
		chosen++
		decision = reconcile.CreateNew()
	}
	if f.reject {
		chosen++
		decision = reconcile.Reject()
	}
	if chosen != 1 {
		return reconcile.Decision{}, errors.New("exactly one of --link, --create or --reject is required")
	}
	return decision, nil
}

func newReviewResolveCmd() *cobra.Command {
	var flags reviewResolveFlags

	cmd := &cobra.Command{
		Use:   "resolve <pending-id>",
		Short: "Apply a review decision to a pending candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(flags.output); err != nil {
				return err
			}
			decision, err := flags.decision()
			if err != nil {
				return err
			}
			by := flags.by
			if by == "" {
				by = os.Getenv("USER")
			}

			ctx := cmd.Context()
			return withEngine(ctx, engineOptions{}, func(a *app, engine *reconcile.Engine) error {
				out, err := engine.Resolve(ctx, args[0], decision, by)
				if err != nil {
					return fmt.Errorf("resolving %s: %w", args[0], err)
				}
				if flags.output != outputText {
					return writeStructured(cmd.OutOrStdout(), flags.output, out)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s as %s: record %s is %s\n", args[0], decision, out.RecordID, out.State)
				if out.PendingID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "The other side is still ambiguous and was queued as %s\n", out.PendingID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flags.linkTo, "link", "", "Link the name to this competitor id")
	cmd.Flags().BoolVar(&flags.create, "create", false, "Create a new competitor for the name")
	cmd.Flags().BoolVar(&flags.reject, "reject", false, "Reject the record, keeping it as provenance only")
	cmd.Flags().StringVar(&flags.by, "by", "", "Reviewer name (default $USER)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputText, "Output format (text, json, yaml)")

	return cmd
}
