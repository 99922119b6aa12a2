package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lehigh-university-libraries/lending/internal/apierror"
	"github.com/lehigh-university-libraries/lending/internal/circulation"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

// Catalog is the part of the backend client the API reads books from
type Catalog interface {
	GetBooks(ctx context.Context) ([]models.Book, error)
	GetBook(ctx context.Context, id models.ID) (models.Book, error)
}

// Session is the signed-in identity. It is closed when the backend rejects the token.
type Session interface {
	CurrentUserID() (models.ID, bool)
	Close()
}

type Handler struct {
	catalog     Catalog
	session     Session
	aggregator  *circulation.Aggregator
	coordinator *circulation.Coordinator
	gatherer    prometheus.Gatherer
}

// New creates the API handler. gatherer may be nil to disable /metrics.
func New(catalog Catalog, session Session, aggregator *circulation.Aggregator, coordinator *circulation.Coordinator, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		catalog:     catalog,
		session:     session,
		aggregator:  aggregator,
		coordinator: coordinator,
		gatherer:    gatherer,
	}
}

// Routes builds the router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/books", h.HandleBooks)
		r.Get("/books/{id}/eligibility", h.HandleEligibility)
		r.Get("/requests", h.HandleRequests)
		r.Post("/requests", h.HandleCreateRequest)
		r.Get("/loans", h.HandleLoans)
		r.Get("/penalties", h.HandlePenalties)
		r.Get("/penalties/summary", h.HandlePenaltySummary)
		r.Post("/refresh", h.HandleRefresh)
	})

	return r
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	h.writeJSONStatus(w, http.StatusOK, data)
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Reason    string `json:"reason,omitempty"`
	Evidence  any    `json:"evidence,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	h.writeJSONStatus(w, code, errorBody{Code: http.StatusText(code), Message: message})
}

// writeFailure maps core and gateway errors onto HTTP responses. An
// unauthorized backend answer closes the session.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	var apiErr *apierror.Error
	switch {
	case errors.Is(err, circulation.ErrNoSession):
		h.writeJSONStatus(w, http.StatusUnauthorized, errorBody{Code: "NOT_SIGNED_IN", Message: err.Error()})
	case errors.Is(err, circulation.ErrSessionChanged):
		h.writeJSONStatus(w, http.StatusConflict, errorBody{Code: "SESSION_CHANGED", Message: err.Error(), Retryable: true})
	case errors.Is(err, circulation.ErrDatasetUnavailable):
		h.writeJSONStatus(w, http.StatusServiceUnavailable, errorBody{Code: "DATA_UNAVAILABLE", Message: err.Error(), Retryable: true})
	case apierror.IsUnauthorized(err):
		slog.Warn("Backend rejected the session, signing out", "err", err)
		h.session.Close()
		h.writeJSONStatus(w, http.StatusUnauthorized, errorBody{Code: "SESSION_EXPIRED", Message: err.Error()})
	case errors.As(err, &apiErr):
		code := http.StatusBadGateway
		switch apiErr.Kind {
		case apierror.KindNotFound:
			code = http.StatusNotFound
		case apierror.KindConflict:
			code = http.StatusConflict
		}
		h.writeJSONStatus(w, code, errorBody{Code: string(apiErr.Kind), Message: apiErr.Error(), Retryable: apiErr.Retryable()})
	default:
		h.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) parseBookID(w http.ResponseWriter, raw string) (models.ID, bool) {
	id, err := models.ParseID(raw)
	if err != nil || id <= 0 {
		h.writeError(w, "Invalid book id: "+raw, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
