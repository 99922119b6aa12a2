package cmd

import (
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check <book-id>",
		Short: "Tell whether you can request a book, and why not",
		Args:  cobra.ExactArgs(1),
		Example: `  # Check book 42
  lending check 42`,
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
			assessment, err := a.aggregator.Assess(book)
			if err != nil {
				return withHint(err)
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, a.cfg.Output, verdictDocument(assessment)); ok {
				return err
			}
			printVerdict(out, assessment)
			return nil
		},
	}
}
