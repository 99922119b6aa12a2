// Package eligibility decides whether a user may request a book.
//
// Everything here is pure: Evaluate and Assess read a Dataset and never do I/O,
// so the same Dataset and book always produce the same Verdict.
package eligibility

import (
	"time"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

// Dataset is the evaluation input: the user's requests, loans and penalties
type Dataset struct {
	Requests  []models.LoanRequest
	Loans     []models.Loan
	Penalties []models.Penalty
}

// Evaluate returns the single effective blocking reason for bookID.
//
// Rules, first match wins:
//
//	any active penalty               -> PenaltyBlock (all active penalties)
//	pending or active loan for book  -> LoanBlock
//	pending request for book         -> PendingRequestBlock
//	otherwise                        -> Clear
func Evaluate(d Dataset, bookID models.ID) Verdict {
	if active := ActivePenalties(d.Penalties); len(active) > 0 {
		return PenaltyBlock{Penalties: active}
	}

	for _, loan := range d.Loans {
		if loan.BookID == bookID && loan.IsOpen() {
			return LoanBlock{Loan: loan}
		}
	}

	for _, req := range d.Requests {
		if req.BookID == bookID && req.IsPending() {
			return PendingRequestBlock{Request: req}
		}
	}

	return Clear{}
}

// ActivePenalties filters penalties down to the ones that block requests
func ActivePenalties(penalties []models.Penalty) []models.Penalty {
	var active []models.Penalty
	for _, p := range penalties {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return active
}

// Assessment combines the catalog availability gate with the verdict.
// An unavailable book has no verdict.
type Assessment struct {
	Book        models.Book
	Unavailable bool
	Verdict     Verdict
}

// CanRequest reports whether the request affordance should be enabled
func (a Assessment) CanRequest() bool {
	return !a.Unavailable && a.Verdict != nil && !a.Verdict.Blocked()
}

// Assess runs the availability check first and only evaluates available books
func Assess(d Dataset, book models.Book) Assessment {
	if !book.Available() {
		return Assessment{Book: book, Unavailable: true}
	}
	return Assessment{Book: book, Verdict: Evaluate(d, book.ID)}
}

// PenaltySummary is the account-wide penalty overview
type PenaltySummary struct {
	Total       int              `json:"total"`
	ActiveCount int              `json:"active_count"`
	Active      []models.Penalty `json:"active"`
	// ActiveUntil is the latest end date among active penalties
	ActiveUntil *time.Time `json:"active_until,omitempty"`
	// RemainingDays counts whole days until ActiveUntil, rounded up
	RemainingDays int `json:"remaining_days"`
}

// Summarize builds the penalty overview as of now
func Summarize(penalties []models.Penalty, now time.Time) PenaltySummary {
	s := PenaltySummary{Total: len(penalties), Active: ActivePenalties(penalties)}
	s.ActiveCount = len(s.Active)

	for _, p := range s.Active {
		if p.EndsAt.IsZero() {
			continue
		}
		if s.ActiveUntil == nil || p.EndsAt.After(*s.ActiveUntil) {
			end := p.EndsAt
			s.ActiveUntil = &end
		}
	}
	if s.ActiveUntil != nil && s.ActiveUntil.After(now) {
		remaining := s.ActiveUntil.Sub(now)
		s.RemainingDays = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return s
}
