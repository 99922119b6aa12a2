package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/history"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

func newRequestsCmd(a *app) *cobra.Command {
	var pendingOnly bool

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List your loan requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.signedIn(cmd.Context()); err != nil {
				return withHint(err)
			}

			var requests []models.LoanRequest
			for _, r := range a.aggregator.Requests() {
				if pendingOnly && !r.IsPending() {
					continue
				}
				requests = append(requests, r)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, a.cfg.Output, requests); ok {
				return err
			}
			if len(requests) == 0 {
				printf(out, "No requests\n")
				return nil
			}

			tw := newTable(out)
			printf(tw, "ID\tBOOK\tTITLE\tSTATUS\tSUBMITTED\n")
			for _, r := range requests {
				printf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.BookID, r.Book.Title, r.Status, formatDate(r.CreatedAt))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only list pending requests")

	return cmd
}

func newLoansCmd(a *app) *cobra.Command {
	var filter history.LoanFilter

	cmd := &cobra.Command{
		Use:   "loans",
		Short: "List your loans",
		Example: `  # Overdue loans only
  lending loans --status overdue

  # Loans whose title or author mentions "tolkien"
  lending loans --search tolkien`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch filter.Status {
			case "", "all", string(models.LoanPending), string(models.LoanActive),
				string(models.LoanReturned), string(models.LoanOverdue):
			default:
				return fmt.Errorf("unknown status %q (use all, pending, active, returned or overdue)", filter.Status)
			}
			if err := a.signedIn(cmd.Context()); err != nil {
				return withHint(err)
			}

			now := time.Now()
			loans := history.FilterLoans(a.aggregator.Loans(), filter, now)

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, a.cfg.Output, loans); ok {
				return err
			}
			if len(loans) == 0 {
				printf(out, "No loans\n")
				return nil
			}

			tw := newTable(out)
			printf(tw, "ID\tTITLE\tAUTHOR\tISSUED\tDUE\tRETURNED\tSTATUS\n")
			for _, l := range loans {
				returned := "-"
				if l.ReturnedAt != nil {
					returned = formatDate(*l.ReturnedAt)
				}
				status := history.EffectiveStatus(l, now)
				label := string(status)
				if status == models.LoanOverdue {
					label = blockedColor.Sprint(label)
				}
				printf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Book.Title, l.Book.Author,
					formatDate(l.IssuedAt), formatDate(l.DueAt), returned, label)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Status, "status", "all", "Filter by status: all, pending, active, returned or overdue")
	cmd.Flags().StringVar(&filter.Term, "search", "", "Filter by title or author")

	return cmd
}

func newPenaltiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "penalties",
		Aliases: []string{"sanctions"},
		Short:   "Show your penalties and whether they block requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.signedIn(cmd.Context()); err != nil {
				return withHint(err)
			}

			penalties := a.aggregator.Penalties()
			summary := a.aggregator.PenaltySummary()

			out := cmd.OutOrStdout()
			doc := struct {
				Summary   any              `json:"summary" yaml:"summary"`
				Penalties []models.Penalty `json:"penalties" yaml:"penalties"`
			}{summary, penalties}
			if ok, err := printStructured(out, a.cfg.Output, doc); ok {
				return err
			}

			if summary.ActiveCount == 0 {
				okColor.Fprintf(out, "✓ No active penalties\n")
			} else {
				blockedColor.Fprintf(out, "✗ %d active penalt%s", summary.ActiveCount, plural(summary.ActiveCount, "y", "ies"))
				if summary.ActiveUntil != nil {
					printf(out, " until %s (%d day%s left)", formatDate(*summary.ActiveUntil),
						summary.RemainingDays, plural(summary.RemainingDays, "", "s"))
				}
				printf(out, "\n")
			}
			if len(penalties) == 0 {
				return nil
			}

			printf(out, "\n")
			tw := newTable(out)
			printf(tw, "ID\tREASON\tSTARTS\tENDS\tSTATUS\n")
			for _, p := range penalties {
				printf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Reason, formatDate(p.StartsAt), formatDate(p.EndsAt), p.Status)
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your requests, loans and penalties to a file",
		Example: `  # Parquet, format picked from the extension
  lending export --out history.parquet

  # JSON Lines to an arbitrary path
  lending export --out history.txt --format jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if format == "" {
				f, err := history.FormatFromPath(outPath)
				if err != nil {
					return err
				}
				format = f
			}
			if err := a.signedIn(cmd.Context()); err != nil {
				return withHint(err)
			}

			records := history.Records(a.aggregator.Snapshot(), time.Now())
			if err := history.Export(outPath, format, records); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Wrote %d records to %s\n", len(records), outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output file (.parquet, .jsonl or .yaml)")
	cmd.Flags().StringVar(&format, "format", "", "Output format, overrides the file extension: parquet, jsonl or yaml")

	return cmd
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
