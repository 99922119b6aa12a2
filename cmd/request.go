package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/circulation"
	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

func newRequestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "request <book-id>",
		Short: "Submit a loan request for a book",
		Args:  cobra.ExactArgs(1),
		Example: `  # Ask to borrow book 42
  lending request 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := parseBookArg(args[0])
			if err != nil {
				return err
			}
			if err := a.signedIn(cmd.Context()); err != nil {
				return withHint(err)
			}

			book, err := a.client.GetBook(cmd.Context(), bookID)
			if err != nil {
				return withHint(a.handleAuth(err))
			}
			if !book.Available() {
				out := cmd.OutOrStdout()
				printVerdict(out, eligibility.Assessment{Book: book, Unavailable: true})
				return errBookUnavailable
			}

			created, err := a.coordinator.Submit(cmd.Context(), bookID)
			if err != nil {
				var blocked *circulation.BlockedError
				if errors.As(err, &blocked) && blocked.Verdict != nil {
					printVerdict(cmd.ErrOrStderr(), eligibility.Assessment{Book: book, Verdict: blocked.Verdict})
				}
				return withHint(a.handleAuth(err))
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, a.cfg.Output, created); ok {
				return err
			}
			okColor.Fprintf(out, "✓ Request #%s submitted for %s\n", created.ID, requestTitle(created, book))
			printf(out, "  status: %s\n", created.Status)
			return nil
		},
	}
}

func requestTitle(r models.LoanRequest, fallback models.Book) string {
	if r.Book.Title != "" && r.Book.Title != models.UnknownTitle {
		return r.Book.Title
	}
	if fallback.Title != "" {
		return fallback.Title
	}
	return "book " + r.BookID.String()
}

var errBookUnavailable = errors.New("the book has no copies available")
