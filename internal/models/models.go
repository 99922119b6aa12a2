package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ID is the canonical identifier for users, books, requests, loans and penalties.
// The backend encodes identifiers either as JSON numbers or numeric strings; both
// decode to the same ID so comparisons never depend on the wire representation.
type ID int64

// ParseID parses a decimal identifier, tolerating surrounding whitespace.
func ParseID(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty identifier")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some endpoints serialize integers as floats ("5.0")
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("invalid identifier %q", s)
		}
		n = int64(f)
	}
	return ID(n), nil
}

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// UnmarshalJSON accepts 5, "5" and null (zero).
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil
	}
	parsed, err := ParseID(string(data))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Identity is the authenticated user a session is scoped to
type Identity struct {
	UserID ID     `json:"user_id" yaml:"user_id"`
	Email  string `json:"email" yaml:"email"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// RequestStatus is the lifecycle state of a loan request
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestUnknown  RequestStatus = "unknown"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanPending  LoanStatus = "pending"
	LoanActive   LoanStatus = "active"
	LoanReturned LoanStatus = "returned"
	LoanOverdue  LoanStatus = "overdue"
	LoanUnknown  LoanStatus = "unknown"
)

// PenaltyStatus is the lifecycle state of a penalty
type PenaltyStatus string

const (
	PenaltyActive    PenaltyStatus = "active"
	PenaltyFulfilled PenaltyStatus = "fulfilled"
	PenaltyVoided    PenaltyStatus = "voided"
	PenaltyUnknown   PenaltyStatus = "unknown"
)

// BookStatus is the catalog state of a title
type BookStatus string

const (
	BookAvailable   BookStatus = "available"
	BookLent        BookStatus = "lent"
	BookMaintenance BookStatus = "maintenance"
	BookUnknown     BookStatus = "unknown"
)

// Placeholders used when a request references a book missing from the catalog
const (
	UnknownTitle  = "Book not found"
	UnknownAuthor = "Unknown author"
)

// BookSummary is the display metadata attached to a loan request
type BookSummary struct {
	Title    string `json:"title" yaml:"title"`
	Author   string `json:"author" yaml:"author"`
	CoverURL string `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
}

// PlaceholderSummary is used when no catalog entry matches a request
func PlaceholderSummary() BookSummary {
	return BookSummary{Title: UnknownTitle, Author: UnknownAuthor}
}

// LoanRequest is a user-initiated ask to borrow a book
type LoanRequest struct {
	ID        ID            `json:"id" yaml:"id"`
	UserID    ID            `json:"user_id" yaml:"user_id"`
	BookID    ID            `json:"book_id" yaml:"book_id"`
	Status    RequestStatus `json:"status" yaml:"status"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	Book      BookSummary   `json:"book" yaml:"book"`
}

// IsPending reports whether the request still awaits a decision
func (r LoanRequest) IsPending() bool {
	return r.Status == RequestPending
}

// Loan is an approved (or historical) borrowing of a book
type Loan struct {
	ID         ID          `json:"id" yaml:"id"`
	BookID     ID          `json:"book_id" yaml:"book_id"`
	IssuedAt   time.Time   `json:"issued_at" yaml:"issued_at"`
	DueAt      time.Time   `json:"due_at" yaml:"due_at"`
	ReturnedAt *time.Time  `json:"returned_at,omitempty" yaml:"returned_at,omitempty"`
	Status     LoanStatus  `json:"status" yaml:"status"`
	Book       BookSummary `json:"book" yaml:"book"`
}

// IsOpen reports whether the loan still holds the book (pending pickup or out)
func (l Loan) IsOpen() bool {
	return l.Status == LoanPending || l.Status == LoanActive
}

// Penalty is an account-wide sanction preventing new loan requests
type Penalty struct {
	ID       ID            `json:"id" yaml:"id"`
	Reason   string        `json:"reason" yaml:"reason"`
	StartsAt time.Time     `json:"starts_at" yaml:"starts_at"`
	EndsAt   time.Time     `json:"ends_at" yaml:"ends_at"`
	Status   PenaltyStatus `json:"status" yaml:"status"`
}

// IsActive reports whether the penalty currently blocks requests
func (p Penalty) IsActive() bool {
	return p.Status == PenaltyActive
}

// Book is a catalog entry. It is read-only reference data.
type Book struct {
	ID          ID         `json:"id" yaml:"id"`
	Title       string     `json:"title" yaml:"title"`
	Author      string     `json:"author" yaml:"author"`
	AuthorID    ID         `json:"author_id,omitempty" yaml:"author_id,omitempty"`
	Year        int        `json:"year,omitempty" yaml:"year,omitempty"`
	Copies      int        `json:"copies" yaml:"copies"`
	Status      BookStatus `json:"status" yaml:"status"`
	CoverURL    string     `json:"cover_url,omitempty" yaml:"cover_url,omitempty"`
	Category    string     `json:"category,omitempty" yaml:"category,omitempty"`
	ISBN        string     `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Publisher   string     `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Available reports whether the title has a copy that can be lent right now.
// A book with no status from the backend is judged by its copy count alone.
func (b Book) Available() bool {
	if b.Copies <= 0 {
		return false
	}
	return b.Status == BookAvailable || b.Status == "" || b.Status == BookUnknown
}

// Summary returns the display metadata for the book
func (b Book) Summary() BookSummary {
	s := BookSummary{Title: b.Title, Author: b.Author, CoverURL: b.CoverURL}
	if s.Title == "" {
		s.Title = UnknownTitle
	}
	if s.Author == "" {
		if b.AuthorID != 0 {
			s.Author = "Author ID: " + b.AuthorID.String()
		} else {
			s.Author = UnknownAuthor
		}
	}
	return s
}

// NewLoanRequest is the payload for creating a loan request
type NewLoanRequest struct {
	UserID ID            `json:"user_id" validate:"required,gt=0"`
	BookID ID            `json:"book_id" validate:"required,gt=0"`
	Status RequestStatus `json:"status" validate:"required,eq=pending"`
}
