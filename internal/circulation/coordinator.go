package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/lehigh-university-libraries/lending/internal/apierror"
	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

// ErrBlocked matches every *BlockedError
var ErrBlocked = errors.New("request blocked")

// BlockedError reports why a request cannot be submitted. Local rejections
// carry the Verdict with its evidence; server rejections carry only the
// reason and the server's message.
type BlockedError struct {
	Reason  eligibility.Reason
	Verdict eligibility.Verdict
	Message string
	Remote  bool
}

func (e *BlockedError) Error() string {
	return e.Message
}

// Is matches ErrBlocked
func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// Coordinator submits loan requests after re-checking eligibility
type Coordinator struct {
	gateway    Gateway
	session    SessionAccessor
	aggregator *Aggregator
	validate   *validator.Validate
	cfg        config
}

// NewCoordinator wires a coordinator to the aggregator that owns the dataset
func NewCoordinator(gateway Gateway, session SessionAccessor, aggregator *Aggregator, opts ...Option) *Coordinator {
	return &Coordinator{
		gateway:    gateway,
		session:    session,
		aggregator: aggregator,
		validate:   validator.New(),
		cfg:        newConfig(opts),
	}
}

// Submit requests bookID for the signed-in user.
//
// The rule engine runs again right before the call; a blocked verdict fails
// without touching the network. After the backend accepts the request the
// dataset is refreshed so the book reads as blocked by the new pending request.
// There is no automatic retry.
func (c *Coordinator) Submit(ctx context.Context, bookID models.ID) (models.LoanRequest, error) {
	userID, ok := c.session.CurrentUserID()
	if !ok {
		return models.LoanRequest{}, ErrNoSession
	}
	ds, ok := c.aggregator.DatasetFor(userID)
	if !ok {
		c.cfg.metrics.Submitted("unavailable")
		return models.LoanRequest{}, ErrDatasetUnavailable
	}

	verdict := eligibility.Evaluate(ds, bookID)
	c.cfg.metrics.Evaluated(string(verdict.Reason()))
	if verdict.Blocked() {
		slog.Info("Request blocked locally", "user_id", userID, "book_id", bookID, "reason", verdict.Reason())
		c.cfg.metrics.Submitted("blocked_local")
		return models.LoanRequest{}, &BlockedError{
			Reason:  verdict.Reason(),
			Verdict: verdict,
			Message: verdict.Reason().Message(),
		}
	}

	req := models.NewLoanRequest{
		UserID: userID,
		BookID: bookID,
		Status: models.RequestPending,
	}
	if err := c.validate.Struct(req); err != nil {
		c.cfg.metrics.Submitted("invalid")
		return models.LoanRequest{}, fmt.Errorf("invalid loan request: %w", err)
	}

	created, err := c.gateway.CreateRequest(ctx, req)
	if err != nil {
		classified := ClassifyRejection(err)
		var blocked *BlockedError
		if errors.As(classified, &blocked) {
			slog.Info("Request rejected by server", "user_id", userID, "book_id", bookID, "reason", blocked.Reason)
			c.cfg.metrics.Submitted("blocked_remote")
		} else {
			slog.Error("Failed to create request", "user_id", userID, "book_id", bookID, "err", err)
			c.cfg.metrics.Submitted("failed")
		}
		return models.LoanRequest{}, classified
	}

	c.cfg.metrics.Submitted("created")
	slog.Info("Request created", "user_id", userID, "book_id", bookID, "request_id", created.ID)

	if err := c.aggregator.Refresh(ctx); err != nil {
		slog.Warn("Refresh after submission failed", "request_id", created.ID, "err", err)
		return created, nil
	}
	for _, r := range c.aggregator.Requests() {
		if r.ID == created.ID {
			return r, nil
		}
	}
	return created, nil
}

// rejection phrases the backend uses, in rule priority order
var rejectionPhrases = []struct {
	reason   eligibility.Reason
	patterns []*regexp.Regexp
}{
	{eligibility.ReasonActivePenalty, compilePhrases(
		`\b(active|current|outstanding|unpaid) (penalty|penalties|sanctions?)\b`,
		`\b(penalty|sanction) (is )?(still )?active\b`,
		`\bblocked by (an? )?(active )?(penalty|sanction)\b`,
		`\b(is|are|been) (sanctioned|penalized)\b`,
		`\bsanci(ó|o)n(es)? (activa|vigente)s?\b`,
		`\b(sancionad|penalizad)[oa]s?\b`,
	)},
	{eligibility.ReasonActiveLoan, compilePhrases(
		`\bactive loans?\b`,
		`\bpr(é|e)stamos? activos?\b`,
	)},
	{eligibility.ReasonPendingRequest, compilePhrases(
		`\bpending requests?\b`,
		`\bsolicitud(es)? pendientes?\b`,
	)},
}

// negations that turn a phrase into its opposite, e.g. "no active penalty"
var negated = regexp.MustCompile(`\b(no|not|without|sin|ninguna|ningún|ningun)( \S+){0,2} $`)

func compilePhrases(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// mentions reports whether msg affirms one of the patterns
func mentions(msg string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(msg, -1) {
			if !negated.MatchString(msg[:loc[0]]) {
				return true
			}
		}
	}
	return false
}

// ClassifyRejection maps a backend rejection onto the rule engine's reasons.
// Messages stay as the server wrote them. Transport and authorization
// failures, and rejections that name no known reason, pass through unchanged.
func ClassifyRejection(err error) error {
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.Kind == apierror.KindTransport || apiErr.Kind == apierror.KindUnauthorized {
		return err
	}

	msg := strings.Join(strings.Fields(strings.ToLower(apiErr.Message)), " ")
	for _, rp := range rejectionPhrases {
		if mentions(msg, rp.patterns) {
			return &BlockedError{
				Reason:  rp.reason,
				Message: apiErr.Message,
				Remote:  true,
			}
		}
	}
	return err
}
