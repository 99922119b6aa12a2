package history

import (
	"strings"
	"time"

	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

// EffectiveStatus is the status shown to the reader: an active loan past its
// due date reads as overdue. Eligibility still uses the stored status.
func EffectiveStatus(l models.Loan, now time.Time) models.LoanStatus {
	if l.Status == models.LoanActive && !l.DueAt.IsZero() && now.After(l.DueAt) {
		return models.LoanOverdue
	}
	return l.Status
}

// LoanFilter narrows a loan history
type LoanFilter struct {
	// Status matches the effective status; empty or "all" matches everything
	Status string
	// Term matches title or author, case-insensitive
	Term string
}

// FilterLoans returns the loans matching f, preserving order
func FilterLoans(loans []models.Loan, f LoanFilter, now time.Time) []models.Loan {
	term := strings.ToLower(strings.TrimSpace(f.Term))
	status := strings.ToLower(strings.TrimSpace(f.Status))

	var out []models.Loan
	for _, l := range loans {
		if status != "" && status != "all" && string(EffectiveStatus(l, now)) != status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(l.Book.Title), term) &&
			!strings.Contains(strings.ToLower(l.Book.Author), term) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Record is one flattened history row: a request, a loan or a penalty
type Record struct {
	Kind          string `parquet:"kind" json:"kind" yaml:"kind"`
	ID            int64  `parquet:"id" json:"id" yaml:"id"`
	BookID        int64  `parquet:"book_id" json:"book_id,omitempty" yaml:"book_id,omitempty"`
	Title         string `parquet:"title" json:"title,omitempty" yaml:"title,omitempty"`
	Author        string `parquet:"author" json:"author,omitempty" yaml:"author,omitempty"`
	Status        string `parquet:"status" json:"status" yaml:"status"`
	DisplayStatus string `parquet:"display_status" json:"display_status" yaml:"display_status"`
	Reason        string `parquet:"reason" json:"reason,omitempty" yaml:"reason,omitempty"`
	StartsAt      string `parquet:"starts_at" json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt        string `parquet:"ends_at" json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	ReturnedAt    string `parquet:"returned_at" json:"returned_at,omitempty" yaml:"returned_at,omitempty"`
}

const (
	KindRequest = "request"
	KindLoan    = "loan"
	KindPenalty = "penalty"
)

// Records flattens the dataset: requests, then loans, then penalties
func Records(d eligibility.Dataset, now time.Time) []Record {
	out := make([]Record, 0, len(d.Requests)+len(d.Loans)+len(d.Penalties))

	for _, r := range d.Requests {
		out = append(out, Record{
			Kind:          KindRequest,
			ID:            int64(r.ID),
			BookID:        int64(r.BookID),
			Title:         r.Book.Title,
			Author:        r.Book.Author,
			Status:        string(r.Status),
			DisplayStatus: string(r.Status),
			StartsAt:      formatTime(r.CreatedAt),
		})
	}

	for _, l := range d.Loans {
		rec := Record{
			Kind:          KindLoan,
			ID:            int64(l.ID),
			BookID:        int64(l.BookID),
			Title:         l.Book.Title,
			Author:        l.Book.Author,
			Status:        string(l.Status),
			DisplayStatus: string(EffectiveStatus(l, now)),
			StartsAt:      formatTime(l.IssuedAt),
			EndsAt:        formatTime(l.DueAt),
		}
		if l.ReturnedAt != nil {
			rec.ReturnedAt = formatTime(*l.ReturnedAt)
		}
		out = append(out, rec)
	}

	for _, p := range d.Penalties {
		out = append(out, Record{
			Kind:          KindPenalty,
			ID:            int64(p.ID),
			Status:        string(p.Status),
			DisplayStatus: string(p.Status),
			Reason:        p.Reason,
			StartsAt:      formatTime(p.StartsAt),
			EndsAt:        formatTime(p.EndsAt),
		})
	}

	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
