// Package circulation keeps the signed-in user's requests, loans and penalties
// in memory and submits new loan requests against them.
package circulation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/metrics"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

var (
	// ErrNoSession is returned when an operation needs a signed-in user
	ErrNoSession = errors.New("not signed in")
	// ErrDatasetUnavailable is returned when the last refresh did not confirm the user's state
	ErrDatasetUnavailable = errors.New("could not load your requests, loans and penalties")
	// ErrSessionChanged is returned by a refresh whose user signed out or was replaced mid-fetch
	ErrSessionChanged = errors.New("session changed during refresh")
)

// Gateway is the subset of the backend client the package needs
type Gateway interface {
	GetRequests(ctx context.Context, userID models.ID) ([]models.LoanRequest, error)
	GetLoans(ctx context.Context, userID models.ID) ([]models.Loan, error)
	GetPenalties(ctx context.Context, userID models.ID) ([]models.Penalty, error)
	GetBooks(ctx context.Context) ([]models.Book, error)
	CreateRequest(ctx context.Context, req models.NewLoanRequest) (models.LoanRequest, error)
}

// SessionAccessor exposes the current identity
type SessionAccessor interface {
	CurrentUserID() (models.ID, bool)
}

type changeNotifier interface {
	OnChange(fn func())
}

type config struct {
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Aggregator or a Coordinator
type Option func(*config)

// WithMetrics records refreshes, evaluations and submissions
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithClock overrides time.Now for penalty summaries
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

func newConfig(opts []Option) config {
	c := config{now: time.Now}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Aggregator holds the evaluation dataset of the signed-in user.
// The dataset is only ever replaced wholesale, never patched.
type Aggregator struct {
	gateway Gateway
	session SessionAccessor
	cfg     config

	mu         sync.RWMutex
	dataset    eligibility.Dataset
	owner      models.ID
	ready      bool
	lastErr    error
	generation uint64
	inFlight   int
}

// NewAggregator creates an empty aggregator. When session can report identity
// changes, the aggregator invalidates itself on every change.
func NewAggregator(gateway Gateway, session SessionAccessor, opts ...Option) *Aggregator {
	a := &Aggregator{
		gateway: gateway,
		session: session,
		cfg:     newConfig(opts),
	}
	if n, ok := session.(changeNotifier); ok {
		n.OnChange(a.Invalidate)
	}
	return a
}

type fetchResult struct {
	requests  []models.LoanRequest
	loans     []models.Loan
	penalties []models.Penalty
	books     []models.Book
	booksErr  error
}

// Refresh refetches requests, loans and penalties concurrently and replaces the
// dataset in one step. Any failure empties all three collections. Without a
// signed-in user it does nothing.
//
// A refresh whose generation was superseded by a later Refresh or by
// Invalidate leaves the dataset untouched. A refresh whose user is no longer
// the signed-in one is never applied.
func (a *Aggregator) Refresh(ctx context.Context) error {
	// The generation is taken before the identity is read, so an identity
	// change at any point after this line supersedes the refresh.
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.inFlight++
	a.mu.Unlock()

	userID, ok := a.session.CurrentUserID()
	if !ok {
		a.mu.Lock()
		a.inFlight--
		a.mu.Unlock()
		a.cfg.metrics.Refreshed("skipped", 0)
		return nil
	}

	start := time.Now()
	res, err := a.fetch(ctx, userID)

	current, signedIn := a.session.CurrentUserID()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.inFlight--

	if gen != a.generation {
		slog.Debug("Discarding superseded refresh", "user_id", userID, "generation", gen, "latest", a.generation)
		a.cfg.metrics.Refreshed("superseded", time.Since(start))
		return err
	}

	if !signedIn || current != userID {
		slog.Warn("Discarding refresh for a previous identity", "fetched_for", userID, "current", current, "signed_in", signedIn)
		a.invalidateLocked()
		a.cfg.metrics.Refreshed("superseded", time.Since(start))
		return ErrSessionChanged
	}

	if err != nil {
		slog.Error("Failed to refresh circulation data", "user_id", userID, "err", err)
		a.dataset = eligibility.Dataset{}
		a.ready = false
		a.lastErr = err
		a.cfg.metrics.Refreshed("failed", time.Since(start))
		return err
	}

	if res.booksErr != nil {
		slog.Warn("Catalog unavailable, using placeholder titles", "err", res.booksErr)
	}
	catalog := make(map[models.ID]models.Book, len(res.books))
	for _, b := range res.books {
		catalog[b.ID] = b
	}
	for i := range res.requests {
		res.requests[i].Book = summaryFor(catalog, res.requests[i].BookID)
	}
	for i := range res.loans {
		res.loans[i].Book = summaryFor(catalog, res.loans[i].BookID)
	}

	a.dataset = eligibility.Dataset{
		Requests:  res.requests,
		Loans:     res.loans,
		Penalties: res.penalties,
	}
	a.owner = userID
	a.ready = true
	a.lastErr = nil
	a.cfg.metrics.Refreshed("ok", time.Since(start))

	slog.Info("Circulation data refreshed",
		"user_id", userID,
		"requests", len(res.requests),
		"loans", len(res.loans),
		"penalties", len(res.penalties),
		"duration", time.Since(start))
	return nil
}

// fetch fans out to the four endpoints and waits for all of them. The catalog
// is display-only, so its failure is reported separately instead of failing the group.
func (a *Aggregator) fetch(ctx context.Context, userID models.ID) (fetchResult, error) {
	var res fetchResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		res.requests, err = a.gateway.GetRequests(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		res.loans, err = a.gateway.GetLoans(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		res.penalties, err = a.gateway.GetPenalties(gctx, userID)
		return err
	})
	g.Go(func() error {
		res.books, res.booksErr = a.gateway.GetBooks(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fetchResult{}, err
	}
	return res, nil
}

func summaryFor(catalog map[models.ID]models.Book, bookID models.ID) models.BookSummary {
	if b, ok := catalog[bookID]; ok {
		return b.Summary()
	}
	return models.PlaceholderSummary()
}

// Invalidate drops the dataset and discards the result of any refresh in flight.
// It runs on identity change and sign-out.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidateLocked()
}

func (a *Aggregator) invalidateLocked() {
	a.generation++
	a.dataset = eligibility.Dataset{}
	a.owner = 0
	a.ready = false
	a.lastErr = nil
}

// Snapshot returns a copy of the evaluation dataset
func (a *Aggregator) Snapshot() eligibility.Dataset {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.copyLocked()
}

func (a *Aggregator) copyLocked() eligibility.Dataset {
	return eligibility.Dataset{
		Requests:  append([]models.LoanRequest(nil), a.dataset.Requests...),
		Loans:     append([]models.Loan(nil), a.dataset.Loans...),
		Penalties: append([]models.Penalty(nil), a.dataset.Penalties...),
	}
}

// DatasetFor returns a copy of the dataset in one locked read. ok is false
// unless the dataset was confirmed by a successful refresh for userID.
func (a *Aggregator) DatasetFor(userID models.ID) (eligibility.Dataset, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.ready || a.owner != userID {
		return eligibility.Dataset{}, false
	}
	return a.copyLocked(), true
}

// current returns the dataset of the signed-in user, if it is confirmed
func (a *Aggregator) current() (eligibility.Dataset, bool) {
	userID, ok := a.session.CurrentUserID()
	if !ok {
		return eligibility.Dataset{}, false
	}
	return a.DatasetFor(userID)
}

// Requests returns the user's loan requests with display metadata
func (a *Aggregator) Requests() []models.LoanRequest {
	return a.Snapshot().Requests
}

// Loans returns the user's loans
func (a *Aggregator) Loans() []models.Loan {
	return a.Snapshot().Loans
}

// Penalties returns the user's penalties
func (a *Aggregator) Penalties() []models.Penalty {
	return a.Snapshot().Penalties
}

// PenaltySummary summarizes the user's penalties as of now
func (a *Aggregator) PenaltySummary() eligibility.PenaltySummary {
	return eligibility.Summarize(a.Penalties(), a.cfg.now())
}

// Ready reports whether the dataset reflects a successful refresh
func (a *Aggregator) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

// Loading reports whether a refresh is in flight
func (a *Aggregator) Loading() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.inFlight > 0
}

// LastError returns the failure of the latest applied refresh, if any
func (a *Aggregator) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// Evaluate runs the rule engine against the current dataset. It refuses to
// answer when the dataset was not confirmed by a successful refresh.
func (a *Aggregator) Evaluate(bookID models.ID) (eligibility.Verdict, error) {
	ds, ok := a.current()
	if !ok {
		return nil, ErrDatasetUnavailable
	}
	v := eligibility.Evaluate(ds, bookID)
	a.cfg.metrics.Evaluated(string(v.Reason()))
	return v, nil
}

// Assess applies the availability gate, then Evaluate
func (a *Aggregator) Assess(book models.Book) (eligibility.Assessment, error) {
	if !book.Available() {
		return eligibility.Assessment{Book: book, Unavailable: true}, nil
	}
	ds, ok := a.current()
	if !ok {
		return eligibility.Assessment{}, ErrDatasetUnavailable
	}
	as := eligibility.Assess(ds, book)
	a.cfg.metrics.Evaluated(string(as.Verdict.Reason()))
	return as, nil
}
