package eligibility

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

func penalty(id models.ID, status models.PenaltyStatus) models.Penalty {
	return models.Penalty{ID: id, Reason: "late return", Status: status}
}

func loan(id, bookID models.ID, status models.LoanStatus) models.Loan {
	return models.Loan{ID: id, BookID: bookID, Status: status}
}

func request(id, bookID models.ID, status models.RequestStatus) models.LoanRequest {
	return models.LoanRequest{ID: id, BookID: bookID, Status: status}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		dataset  Dataset
		bookID   models.ID
		expected Reason
	}{
		{
			name:     "empty dataset is clear",
			bookID:   5,
			expected: ReasonNone,
		},
		{
			name: "active penalty blocks every book",
			dataset: Dataset{
				Penalties: []models.Penalty{penalty(1, models.PenaltyActive)},
			},
			bookID:   99,
			expected: ReasonActivePenalty,
		},
		{
			name: "penalty outranks loan and request",
			dataset: Dataset{
				Penalties: []models.Penalty{penalty(1, models.PenaltyActive)},
				Loans:     []models.Loan{loan(2, 5, models.LoanActive)},
				Requests:  []models.LoanRequest{request(3, 5, models.RequestPending)},
			},
			bookID:   5,
			expected: ReasonActivePenalty,
		},
		{
			name: "fulfilled and voided penalties do not block",
			dataset: Dataset{
				Penalties: []models.Penalty{
					penalty(1, models.PenaltyFulfilled),
					penalty(2, models.PenaltyVoided),
					penalty(3, models.PenaltyUnknown),
				},
			},
			bookID:   5,
			expected: ReasonNone,
		},
		{
			name: "loan outranks pending request",
			dataset: Dataset{
				Loans:    []models.Loan{loan(2, 5, models.LoanActive)},
				Requests: []models.LoanRequest{request(3, 5, models.RequestPending)},
			},
			bookID:   5,
			expected: ReasonActiveLoan,
		},
		{
			name: "pending loan blocks",
			dataset: Dataset{
				Loans: []models.Loan{loan(2, 5, models.LoanPending)},
			},
			bookID:   5,
			expected: ReasonActiveLoan,
		},
		{
			name: "returned and overdue loans do not block",
			dataset: Dataset{
				Loans: []models.Loan{
					loan(2, 5, models.LoanReturned),
					loan(3, 5, models.LoanOverdue),
				},
			},
			bookID:   5,
			expected: ReasonNone,
		},
		{
			name: "loan for another book does not block",
			dataset: Dataset{
				Loans: []models.Loan{loan(2, 6, models.LoanActive)},
			},
			bookID:   5,
			expected: ReasonNone,
		},
		{
			name: "pending request blocks",
			dataset: Dataset{
				Requests: []models.LoanRequest{request(3, 5, models.RequestPending)},
			},
			bookID:   5,
			expected: ReasonPendingRequest,
		},
		{
			name: "decided requests do not block",
			dataset: Dataset{
				Requests: []models.LoanRequest{
					request(3, 5, models.RequestApproved),
					request(4, 5, models.RequestRejected),
				},
			},
			bookID:   5,
			expected: ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(tt.dataset, tt.bookID)
			assert.Equal(t, tt.expected, v.Reason())
			assert.Equal(t, tt.expected != ReasonNone, v.Blocked())
		})
	}
}

func TestEvaluateCarriesEvidence(t *testing.T) {
	d := Dataset{
		Penalties: []models.Penalty{
			penalty(1, models.PenaltyActive),
			penalty(2, models.PenaltyFulfilled),
			penalty(3, models.PenaltyActive),
		},
	}

	v := Evaluate(d, 5)
	block, ok := v.(PenaltyBlock)
	require.True(t, ok, "expected PenaltyBlock, got %T", v)
	require.Len(t, block.Penalties, 2)
	assert.Equal(t, models.ID(1), block.Penalties[0].ID)
	assert.Equal(t, models.ID(3), block.Penalties[1].ID)

	d = Dataset{Loans: []models.Loan{loan(7, 5, models.LoanActive)}}
	lb, ok := Evaluate(d, 5).(LoanBlock)
	require.True(t, ok)
	assert.Equal(t, models.ID(7), lb.Loan.ID)
	assert.Equal(t, lb.Loan, Evidence(lb))

	assert.Nil(t, Evidence(Clear{}))
}

func TestEvaluateIsPure(t *testing.T) {
	d := Dataset{
		Requests: []models.LoanRequest{request(3, 5, models.RequestPending)},
		Loans:    []models.Loan{loan(2, 6, models.LoanActive)},
	}

	first := Evaluate(d, 5)
	second := Evaluate(d, 5)
	assert.Equal(t, first, second)
	assert.Len(t, d.Requests, 1)
	assert.Len(t, d.Loans, 1)
}

func TestEvaluateMatchesIDsAcrossWireRepresentations(t *testing.T) {
	// A request whose book id arrived as a string still blocks a numeric lookup
	var req models.LoanRequest
	require.NoError(t, json.Unmarshal([]byte(`{"id":"3","book_id":"5","status":"pending"}`), &req))

	v := Evaluate(Dataset{Requests: []models.LoanRequest{req}}, models.ID(5))
	assert.Equal(t, ReasonPendingRequest, v.Reason())
}

func TestAssess(t *testing.T) {
	d := Dataset{Requests: []models.LoanRequest{request(3, 5, models.RequestPending)}}

	t.Run("unavailable book has no verdict", func(t *testing.T) {
		a := Assess(d, models.Book{ID: 5, Copies: 0})
		assert.True(t, a.Unavailable)
		assert.Nil(t, a.Verdict)
		assert.False(t, a.CanRequest())
	})

	t.Run("book in maintenance is unavailable", func(t *testing.T) {
		a := Assess(Dataset{}, models.Book{ID: 5, Copies: 2, Status: models.BookMaintenance})
		assert.True(t, a.Unavailable)
	})

	t.Run("available book is evaluated", func(t *testing.T) {
		a := Assess(d, models.Book{ID: 5, Copies: 1, Status: models.BookAvailable})
		assert.False(t, a.Unavailable)
		assert.Equal(t, ReasonPendingRequest, a.Verdict.Reason())
		assert.False(t, a.CanRequest())
	})

	t.Run("clear verdict can request", func(t *testing.T) {
		a := Assess(d, models.Book{ID: 6, Copies: 1})
		assert.True(t, a.CanRequest())
	})
}

func TestSummarize(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	penalties := []models.Penalty{
		{ID: 1, Status: models.PenaltyActive, EndsAt: now.Add(36 * time.Hour)},
		{ID: 2, Status: models.PenaltyActive, EndsAt: now.Add(72 * time.Hour)},
		{ID: 3, Status: models.PenaltyFulfilled, EndsAt: now.Add(240 * time.Hour)},
	}

	s := Summarize(penalties, now)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ActiveCount)
	require.NotNil(t, s.ActiveUntil)
	assert.Equal(t, now.Add(72*time.Hour), *s.ActiveUntil)
	assert.Equal(t, 3, s.RemainingDays)

	t.Run("partial days round up", func(t *testing.T) {
		s := Summarize([]models.Penalty{{Status: models.PenaltyActive, EndsAt: now.Add(25 * time.Hour)}}, now)
		assert.Equal(t, 2, s.RemainingDays)
	})

	t.Run("no active penalties", func(t *testing.T) {
		s := Summarize(penalties[2:], now)
		assert.Equal(t, 0, s.ActiveCount)
		assert.Nil(t, s.ActiveUntil)
		assert.Equal(t, 0, s.RemainingDays)
	})

	t.Run("elapsed end date leaves no remaining days", func(t *testing.T) {
		s := Summarize([]models.Penalty{{Status: models.PenaltyActive, EndsAt: now.Add(-time.Hour)}}, now)
		assert.Equal(t, 1, s.ActiveCount)
		assert.Equal(t, 0, s.RemainingDays)
	})
}

func TestReasonMessage(t *testing.T) {
	assert.Contains(t, ReasonActivePenalty.Message(), "penalty")
	assert.Contains(t, ReasonActiveLoan.Message(), "active loan")
	assert.Contains(t, ReasonPendingRequest.Message(), "pending request")
	assert.Equal(t, "You can request this book", ReasonNone.Message())
}
