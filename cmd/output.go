package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/lending/internal/eligibility"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	blockedColor = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

// printStructured writes v as JSON or YAML and reports whether it did.
// Table output is left to the caller.
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func printVerdict(w io.Writer, a eligibility.Assessment) {
	title := a.Book.Title
	if title == "" {
		title = "book " + a.Book.ID.String()
	}

	if a.Unavailable {
		warnColor.Fprintf(w, "✗ %s is not available right now\n", title)
		return
	}

	if !a.Verdict.Blocked() {
		okColor.Fprintf(w, "✓ You can request %s\n", title)
		return
	}

	blockedColor.Fprintf(w, "✗ %s\n", a.Verdict.Reason().Message())
	switch v := a.Verdict.(type) {
	case eligibility.PenaltyBlock:
		for _, p := range v.Penalties {
			dimColor.Fprintf(w, "  penalty #%s: %s (until %s)\n", p.ID, p.Reason, formatDate(p.EndsAt))
		}
	case eligibility.LoanBlock:
		dimColor.Fprintf(w, "  loan #%s, %s, due %s\n", v.Loan.ID, v.Loan.Status, formatDate(v.Loan.DueAt))
	case eligibility.PendingRequestBlock:
		dimColor.Fprintf(w, "  request #%s, submitted %s\n", v.Request.ID, formatDate(v.Request.CreatedAt))
	}
}

func verdictDocument(a eligibility.Assessment) map[string]any {
	doc := map[string]any{
		"book_id":     a.Book.ID,
		"title":       a.Book.Title,
		"unavailable": a.Unavailable,
		"can_request": a.CanRequest(),
	}
	if a.Verdict != nil {
		doc["blocked"] = a.Verdict.Blocked()
		doc["reason"] = string(a.Verdict.Reason())
		doc["message"] = a.Verdict.Reason().Message()
		if ev := eligibility.Evidence(a.Verdict); ev != nil {
			doc["evidence"] = ev
		}
	}
	return doc
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
