package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lehigh-university-libraries/lending/internal/circulation"
	"github.com/lehigh-university-libraries/lending/internal/eligibility"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

type bookView struct {
	models.Book
	Available bool `json:"available"`
}

type eligibilityView struct {
	BookID      models.ID `json:"book_id"`
	Unavailable bool      `json:"unavailable"`
	Blocked     bool      `json:"blocked"`
	Reason      string    `json:"reason,omitempty"`
	Message     string    `json:"message,omitempty"`
	Evidence    any       `json:"evidence,omitempty"`
	CanRequest  bool      `json:"can_request"`
}

func (h *Handler) HandleBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.GetBooks(r.Context())
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	views := make([]bookView, 0, len(books))
	for _, b := range books {
		views = append(views, bookView{Book: b, Available: b.Available()})
	}
	h.writeJSON(w, views)
}

func (h *Handler) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseBookID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	assessment, err := h.aggregator.Assess(book)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	view := eligibilityView{
		BookID:      id,
		Unavailable: assessment.Unavailable,
		CanRequest:  assessment.CanRequest(),
	}
	if assessment.Verdict != nil {
		view.Blocked = assessment.Verdict.Blocked()
		view.Reason = string(assessment.Verdict.Reason())
		view.Message = assessment.Verdict.Reason().Message()
		view.Evidence = eligibility.Evidence(assessment.Verdict)
	}
	h.writeJSON(w, view)
}

func (h *Handler) HandleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BookID models.ID `json:"book_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.BookID <= 0 {
		h.writeError(w, "book_id is required", http.StatusBadRequest)
		return
	}

	created, err := h.coordinator.Submit(r.Context(), body.BookID)
	if err != nil {
		var blocked *circulation.BlockedError
		if errors.As(err, &blocked) {
			resp := errorBody{
				Code:    "REQUEST_BLOCKED",
				Message: blocked.Message,
				Reason:  string(blocked.Reason),
			}
			if blocked.Verdict != nil {
				resp.Evidence = eligibility.Evidence(blocked.Verdict)
			}
			h.writeJSONStatus(w, http.StatusConflict, resp)
			return
		}
		h.writeFailure(w, err)
		return
	}
	h.writeJSONStatus(w, http.StatusCreated, created)
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session.CurrentUserID(); !ok {
		h.writeFailure(w, circulation.ErrNoSession)
		return
	}
	if err := h.aggregator.Refresh(r.Context()); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}
	h.writeJSON(w, h.aggregator.Requests())
}

func (h *Handler) HandleLoans(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}
	h.writeJSON(w, h.aggregator.Loans())
}

func (h *Handler) HandlePenalties(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}
	h.writeJSON(w, h.aggregator.Penalties())
}

func (h *Handler) HandlePenaltySummary(w http.ResponseWriter, r *http.Request) {
	if !h.requireReady(w) {
		return
	}
	h.writeJSON(w, h.aggregator.PenaltySummary())
}

// requireReady answers 401 without a session and 503 while the dataset is unconfirmed
func (h *Handler) requireReady(w http.ResponseWriter) bool {
	if _, ok := h.session.CurrentUserID(); !ok {
		h.writeFailure(w, circulation.ErrNoSession)
		return false
	}
	if h.aggregator.Ready() {
		return true
	}
	h.writeFailure(w, circulation.ErrDatasetUnavailable)
	return false
}
