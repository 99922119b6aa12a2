package eligibility

import (
	"github.com/lehigh-university-libraries/lending/internal/models"
)

// Reason is the blocking reason code shared by local evaluation and server rejections
type Reason string

const (
	ReasonNone           Reason = "none"
	ReasonActivePenalty  Reason = "activePenalty"
	ReasonActiveLoan     Reason = "activeLoan"
	ReasonPendingRequest Reason = "pendingRequest"
)

// Message is the user-facing explanation of a reason
func (r Reason) Message() string {
	switch r {
	case ReasonActivePenalty:
		return "You have an active penalty and cannot request books until it ends"
	case ReasonActiveLoan:
		return "You already have an active loan for this book"
	case ReasonPendingRequest:
		return "You already have a pending request for this book"
	default:
		return "You can request this book"
	}
}

// Verdict is the answer to "can this user request this book now". It is one of
// Clear, PenaltyBlock, LoanBlock or PendingRequestBlock.
type Verdict interface {
	Reason() Reason
	Blocked() bool
	verdict()
}

// Clear means nothing blocks the request
type Clear struct{}

// PenaltyBlock carries every active penalty on the account
type PenaltyBlock struct {
	Penalties []models.Penalty
}

// LoanBlock carries the open loan for the book
type LoanBlock struct {
	Loan models.Loan
}

// PendingRequestBlock carries the pending request for the book
type PendingRequestBlock struct {
	Request models.LoanRequest
}

func (Clear) Reason() Reason               { return ReasonNone }
func (PenaltyBlock) Reason() Reason        { return ReasonActivePenalty }
func (LoanBlock) Reason() Reason           { return ReasonActiveLoan }
func (PendingRequestBlock) Reason() Reason { return ReasonPendingRequest }

func (Clear) Blocked() bool               { return false }
func (PenaltyBlock) Blocked() bool        { return true }
func (LoanBlock) Blocked() bool           { return true }
func (PendingRequestBlock) Blocked() bool { return true }

func (Clear) verdict()               {}
func (PenaltyBlock) verdict()        {}
func (LoanBlock) verdict()           {}
func (PendingRequestBlock) verdict() {}

// Evidence returns the verdict's supporting record for serialization:
// []models.Penalty, models.Loan, models.LoanRequest, or nil for Clear.
func Evidence(v Verdict) any {
	switch v := v.(type) {
	case PenaltyBlock:
		return v.Penalties
	case LoanBlock:
		return v.Loan
	case PendingRequestBlock:
		return v.Request
	default:
		return nil
	}
}
