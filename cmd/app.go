package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lehigh-university-libraries/lending/internal/apierror"
	"github.com/lehigh-university-libraries/lending/internal/catalog"
	"github.com/lehigh-university-libraries/lending/internal/circulation"
	"github.com/lehigh-university-libraries/lending/internal/config"
	"github.com/lehigh-university-libraries/lending/internal/metrics"
	"github.com/lehigh-university-libraries/lending/internal/models"
	"github.com/lehigh-university-libraries/lending/internal/session"
	"github.com/lehigh-university-libraries/lending/internal/storage"
)

// app is the object graph shared by all subcommands
type app struct {
	cfg         *config.Config
	store       *storage.TokenStore
	session     *session.Session
	client      *catalog.Client
	registry    *prometheus.Registry
	aggregator  *circulation.Aggregator
	coordinator *circulation.Coordinator
}

func newApp(cfg *config.Config) *app {
	sess := session.New()
	client := catalog.NewClient(cfg.APIURL,
		catalog.WithTokenSource(sess),
		catalog.WithTimeout(cfg.Timeout),
	)
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	aggregator := circulation.NewAggregator(client, sess, circulation.WithMetrics(m))
	coordinator := circulation.NewCoordinator(client, sess, aggregator, circulation.WithMetrics(m))

	return &app{
		cfg:         cfg,
		store:       storage.New(cfg.SessionFile),
		session:     sess,
		client:      client,
		registry:    registry,
		aggregator:  aggregator,
		coordinator: coordinator,
	}
}

// restoreSession opens the session from the token file
func (a *app) restoreSession() error {
	stored, err := a.store.Load()
	if errors.Is(err, storage.ErrNoToken) {
		return circulation.ErrNoSession
	}
	if err != nil {
		return err
	}
	if stored.Expired(time.Now()) {
		slog.Info("Stored session expired", "path", a.store.Path())
		_ = a.store.Delete()
		return circulation.ErrNoSession
	}
	a.session.Open(stored.Identity, stored.AccessToken)
	return nil
}

// signedIn restores the session and loads the user's dataset. The refresh
// error is returned so callers can show the "could not load" state.
func (a *app) signedIn(ctx context.Context) error {
	if err := a.restoreSession(); err != nil {
		return err
	}
	return a.handleAuth(a.aggregator.Refresh(ctx))
}

// handleAuth tears the session down when the backend rejected the token
func (a *app) handleAuth(err error) error {
	if err != nil && apierror.IsUnauthorized(err) {
		slog.Warn("Session rejected by the server, signing out")
		a.signOut()
	}
	return err
}

// signOut closes the session and removes the token file so the next
// invocation does not restore a dead token.
func (a *app) signOut() {
	a.session.Close()
	if err := a.store.Delete(); err != nil {
		slog.Error("Failed to remove session file", "err", err)
	}
}

// servedSession is the session as seen by the local API. Closing it signs
// out the same way the CLI does.
type servedSession struct {
	a *app
}

func (s servedSession) CurrentUserID() (models.ID, bool) {
	return s.a.session.CurrentUserID()
}

func (s servedSession) Close() {
	s.a.signOut()
}

// ExitCode maps a command error onto the process exit code
func ExitCode(err error) int {
	if err == nil {
		return apierror.ExitSuccess
	}
	var apiErr *apierror.Error
	switch {
	case errors.Is(err, circulation.ErrBlocked):
		return apierror.ExitBlocked
	case errors.Is(err, circulation.ErrNoSession):
		return apierror.ExitAuth
	case errors.As(err, &apiErr):
		return apiErr.ExitCode()
	default:
		return apierror.ExitGeneral
	}
}

func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func hintFor(err error) string {
	var apiErr *apierror.Error
	switch {
	case errors.Is(err, circulation.ErrNoSession):
		return "Sign in with 'lending login'"
	case errors.Is(err, circulation.ErrDatasetUnavailable):
		return "Check that the lending server is reachable and try again"
	case errors.As(err, &apiErr):
		return apiErr.Hint()
	default:
		return ""
	}
}

// withHint decorates err with a remediation hint for terminal output
func withHint(err error) error {
	if err == nil {
		return nil
	}
	if hint := hintFor(err); hint != "" {
		return fmt.Errorf("%w\nHint: %s", err, hint)
	}
	return err
}
