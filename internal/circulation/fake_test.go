package circulation

import (
	"context"
	"sync"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

// fakeGateway serves canned data and counts calls per endpoint
type fakeGateway struct {
	mu sync.Mutex

	requests  []models.LoanRequest
	loans     []models.Loan
	penalties []models.Penalty
	books     []models.Book

	requestsErr  error
	loansErr     error
	penaltiesErr error
	booksErr     error
	createErr    error

	// block, when set, holds GetPenalties until it is closed
	block chan struct{}

	calls   map[string]int
	created []models.NewLoanRequest
	nextID  models.ID
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: map[string]int{}, nextID: 100}
}

func (f *fakeGateway) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeGateway) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) GetRequests(ctx context.Context, userID models.ID) ([]models.LoanRequest, error) {
	f.count("requests")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LoanRequest(nil), f.requests...), f.requestsErr
}

func (f *fakeGateway) GetLoans(ctx context.Context, userID models.ID) ([]models.Loan, error) {
	f.count("loans")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Loan(nil), f.loans...), f.loansErr
}

func (f *fakeGateway) GetPenalties(ctx context.Context, userID models.ID) ([]models.Penalty, error) {
	f.count("penalties")
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Penalty(nil), f.penalties...), f.penaltiesErr
}

func (f *fakeGateway) GetBooks(ctx context.Context) ([]models.Book, error) {
	f.count("books")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Book(nil), f.books...), f.booksErr
}

func (f *fakeGateway) CreateRequest(ctx context.Context, req models.NewLoanRequest) (models.LoanRequest, error) {
	f.count("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.LoanRequest{}, f.createErr
	}
	f.created = append(f.created, req)
	created := models.LoanRequest{
		ID:     f.nextID,
		UserID: req.UserID,
		BookID: req.BookID,
		Status: models.RequestPending,
	}
	f.nextID++
	f.requests = append(f.requests, created)
	return created, nil
}

func (f *fakeGateway) fetchCalls() int {
	return f.Calls("requests") + f.Calls("loans") + f.Calls("penalties") + f.Calls("books")
}
