package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
)

func newContestChangedCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "contest-changed <contest-id>",
		Short: "Reproject both history views of an edited contest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			return withEngine(ctx, engineOptions{}, func(a *app, engine *reconcile.Engine) error {
				result, err := engine.OnContestChanged(ctx, args[0])
				if err != nil {
					return fmt.Errorf("projecting contest %s: %w", args[0], err)
				}
				if output != outputText {
					return writeStructured(cmd.OutOrStdout(), output, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Contest %s: %d views created, %d updated, %d linked, %d with conflicts\n",
					result.ContestID, result.Created, result.Updated, result.Linked, result.Conflicts)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")

	return cmd
}

func newMergeDuplicatesCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge-duplicates",
		Short: "Merge active contests that share an event and participant pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			ctx := cmd.Context()
			return withEngine(ctx, engineOptions{}, func(a *app, engine *reconcile.Engine) error {
				report, err := engine.MergeDuplicateContests(ctx)
				if err != nil {
					return fmt.Errorf("merging duplicate contests: %w", err)
				}
				if output != outputText {
					return writeStructured(cmd.OutOrStdout(), output, report)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Groups: %d, deactivated: %d, views repointed: %d, views superseded: %d, evidence moved: %d\n",
					report.Groups, report.Deactivated, report.ViewsRepointed, report.Superseded, report.Evidence)
				for _, issue := range report.Issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s [%s] %s\n", issue.RecordID, issue.Kind, issue.Reason)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format (text, json, yaml)")

	return cmd
}
