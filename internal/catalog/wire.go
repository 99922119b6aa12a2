package catalog

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/lending/internal/models"
)

// wireBook is a book as served by /libros. cantidad_disponible counts the
// copies on the shelf now; ejemplares is the total holding and only stands in
// when the former is absent. Older deployments send portada_url instead of imagen.
type wireBook struct {
	ID              models.ID `json:"id"`
	AuthorID        models.ID `json:"id_autor"`
	Title           string    `json:"titulo"`
	Author          string    `json:"autor"`
	Year            int       `json:"anio_publicacion"`
	Copies          *int      `json:"ejemplares"`
	AvailableCopies *int      `json:"cantidad_disponible"`
	Status          string    `json:"estado"`
	Image           string    `json:"imagen"`
	CoverURL        string    `json:"portada_url"`
	Category        string    `json:"categoria"`
	ISBN            string    `json:"isbn"`
	Publisher       string    `json:"editorial"`
	Description     string    `json:"descripcion"`
}

type wireRequest struct {
	ID        models.ID `json:"id"`
	UserID    models.ID `json:"id_usuario"`
	BookID    models.ID `json:"id_libro"`
	Status    string    `json:"estado"`
	CreatedAt string    `json:"created_at"`
}

type wireLoan struct {
	ID         models.ID `json:"id"`
	ReaderID   models.ID `json:"id_lector"`
	BookID     models.ID `json:"id_libro"`
	IssuedAt   string    `json:"loan_date"`
	DueAt      string    `json:"f_devolucion_establecida"`
	ReturnedAt *string   `json:"f_devolucion_real"`
	Status     string    `json:"estado"`
}

type wirePenalty struct {
	ID       models.ID `json:"id"`
	UserID   models.ID `json:"usuario_id"`
	Reason   string    `json:"motivo"`
	StartsAt string    `json:"fecha_inicio"`
	EndsAt   string    `json:"fecha_fin"`
	Status   string    `json:"estado"`
}

type wireCreateRequest struct {
	UserID models.ID `json:"id_usuario"`
	BookID models.ID `json:"id_libro"`
	Status string    `json:"estado"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type meResponse struct {
	ID     *models.ID `json:"id"`
	Sub    *models.ID `json:"sub"`
	Email  string     `json:"email"`
	Name   string     `json:"name"`
	Nombre string     `json:"nombre"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

func (e errorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Error != "" {
		return e.Error
	}
	for field, msgs := range e.Errors {
		if len(msgs) > 0 {
			return fmt.Sprintf("%s: %s", field, msgs[0])
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime accepts the timestamp layouts the backend emits. Empty input is the zero time.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func requestStatus(s string) models.RequestStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pendiente", "pending":
		return models.RequestPending
	case "aprobada", "approved":
		return models.RequestApproved
	case "rechazada", "rejected":
		return models.RequestRejected
	default:
		slog.Debug("Unrecognized request status", "status", s)
		return models.RequestUnknown
	}
}

func loanStatus(s string) models.LoanStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pendiente", "pending":
		return models.LoanPending
	case "activo", "active":
		return models.LoanActive
	case "devuelto", "returned":
		return models.LoanReturned
	case "vencido", "overdue":
		return models.LoanOverdue
	default:
		slog.Debug("Unrecognized loan status", "status", s)
		return models.LoanUnknown
	}
}

func penaltyStatus(s string) models.PenaltyStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "activa", "active":
		return models.PenaltyActive
	case "cumplida", "fulfilled":
		return models.PenaltyFulfilled
	case "anulada", "voided":
		return models.PenaltyVoided
	default:
		slog.Debug("Unrecognized penalty status", "status", s)
		return models.PenaltyUnknown
	}
}

func bookStatus(s string) models.BookStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disponible", "available":
		return models.BookAvailable
	case "prestado", "lent":
		return models.BookLent
	case "mantenimiento", "maintenance":
		return models.BookMaintenance
	case "":
		return ""
	default:
		return models.BookUnknown
	}
}

func (w wireBook) toModel() models.Book {
	b := models.Book{
		ID:          w.ID,
		AuthorID:    w.AuthorID,
		Title:       w.Title,
		Author:      w.Author,
		Year:        w.Year,
		Status:      bookStatus(w.Status),
		CoverURL:    w.Image,
		Category:    w.Category,
		ISBN:        w.ISBN,
		Publisher:   w.Publisher,
		Description: w.Description,
	}
	switch {
	case w.AvailableCopies != nil:
		b.Copies = *w.AvailableCopies
	case w.Copies != nil:
		b.Copies = *w.Copies
	}
	if b.CoverURL == "" {
		b.CoverURL = w.CoverURL
	}
	return b
}

func (w wireRequest) toModel() (models.LoanRequest, error) {
	created, err := parseTime(w.CreatedAt)
	if err != nil {
		return models.LoanRequest{}, fmt.Errorf("request %s: %w", w.ID, err)
	}
	return models.LoanRequest{
		ID:        w.ID,
		UserID:    w.UserID,
		BookID:    w.BookID,
		Status:    requestStatus(w.Status),
		CreatedAt: created,
	}, nil
}

func (w wireLoan) toModel() (models.Loan, error) {
	issued, err := parseTime(w.IssuedAt)
	if err != nil {
		return models.Loan{}, fmt.Errorf("loan %s: %w", w.ID, err)
	}
	due, err := parseTime(w.DueAt)
	if err != nil {
		return models.Loan{}, fmt.Errorf("loan %s: %w", w.ID, err)
	}
	l := models.Loan{
		ID:       w.ID,
		BookID:   w.BookID,
		IssuedAt: issued,
		DueAt:    due,
		Status:   loanStatus(w.Status),
	}
	if w.ReturnedAt != nil && *w.ReturnedAt != "" {
		returned, err := parseTime(*w.ReturnedAt)
		if err != nil {
			return models.Loan{}, fmt.Errorf("loan %s: %w", w.ID, err)
		}
		l.ReturnedAt = &returned
	}
	return l, nil
}

func (w wirePenalty) toModel() (models.Penalty, error) {
	starts, err := parseTime(w.StartsAt)
	if err != nil {
		return models.Penalty{}, fmt.Errorf("penalty %s: %w", w.ID, err)
	}
	ends, err := parseTime(w.EndsAt)
	if err != nil {
		return models.Penalty{}, fmt.Errorf("penalty %s: %w", w.ID, err)
	}
	return models.Penalty{
		ID:       w.ID,
		Reason:   w.Reason,
		StartsAt: starts,
		EndsAt:   ends,
		Status:   penaltyStatus(w.Status),
	}, nil
}
