package cmd

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

type catalogRow struct {
	models.Book `yaml:",inline"`
	Available   bool `json:"available" yaml:"available"`
}

func newCatalogCmd(a *app) *cobra.Command {
	var onlyAvailable bool

	cmd := &cobra.Command{
		Use:     "catalog",
		Aliases: []string{"books"},
		Short:   "List the books in the catalog",
		Example: `  # Books that can be lent right now
  lending catalog --available

  # Machine-readable listing
  lending catalog -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The catalog is public, but a stored token is sent when present
			_ = a.restoreSession()

			books, err := a.client.GetBooks(cmd.Context())
			if err != nil {
				return withHint(a.handleAuth(err))
			}

			rows := make([]catalogRow, 0, len(books))
			for _, b := range books {
				if onlyAvailable && !b.Available() {
					continue
				}
				rows = append(rows, catalogRow{Book: b, Available: b.Available()})
			}

			out := cmd.OutOrStdout()
			if ok, err := printStructured(out, a.cfg.Output, rows); ok {
				return err
			}

			tw := newTable(out)
			printf(tw, "ID\tTITLE\tAUTHOR\tYEAR\tCOPIES\tSTATUS\n")
			for _, r := range rows {
				year := "-"
				if r.Year > 0 {
					year = strconv.Itoa(r.Year)
				}
				printf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Title, r.Summary().Author, year, r.Copies, availabilityLabel(r.Book))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&onlyAvailable, "available", false, "Only list books that can be lent now")

	return cmd
}

func availabilityLabel(b models.Book) string {
	if b.Available() {
		return "available"
	}
	if b.Copies <= 0 && (b.Status == "" || b.Status == models.BookAvailable) {
		return "no copies"
	}
	return string(b.Status)
}

func parseBookArg(raw string) (models.ID, error) {
	id, err := models.ParseID(raw)
	if err != nil || id <= 0 {
		return 0, errMissingBookID
	}
	return id, nil
}

var errMissingBookID = errors.New("a numeric book id is required")
