package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/lehigh-university-libraries/lending/internal/apierror"
	"github.com/lehigh-university-libraries/lending/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultBaseURL is the backend address used when none is configured
const DefaultBaseURL = "http://127.0.0.1:8000/api"

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	Token() string
}

// Client talks to the lending backend: auth, catalog, requests, loans and penalties
type Client struct {
	BaseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates a new backend client
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials is what Login and Register return
type Credentials struct {
	AccessToken string `json:"access_token" yaml:"access_token"`
	TokenType   string `json:"token_type" yaml:"token_type"`
	ExpiresIn   int    `json:"expires_in" yaml:"expires_in"`
}

// Login exchanges an email and password for an access token
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	body := map[string]string{
		"email":       email,
		"password":    password,
		"application": "cli",
	}
	var resp authResponse
	if err := c.do(ctx, "sign in", http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return Credentials{}, err
	}
	return Credentials(resp), nil
}

// Register creates a reader account and returns its access token
func (c *Client) Register(ctx context.Context, name, email, password string) (Credentials, error) {
	body := map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
		"role_id":  1,
	}
	var resp authResponse
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", body, &resp); err != nil {
		return Credentials{}, err
	}
	return Credentials(resp), nil
}

// Logout revokes the current token on the server
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "sign out", http.MethodPost, "/auth/logout", c.token(), nil, nil)
}

// Me resolves the identity behind token. An empty token uses the configured TokenSource.
func (c *Client) Me(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		token = c.token()
	}
	var resp meResponse
	if err := c.do(ctx, "resolve identity", http.MethodGet, "/auth/me", token, nil, &resp); err != nil {
		return models.Identity{}, err
	}

	id := models.Identity{Email: resp.Email, Name: resp.Name}
	if id.Name == "" {
		id.Name = resp.Nombre
	}
	switch {
	case resp.ID != nil:
		id.UserID = *resp.ID
	case resp.Sub != nil:
		id.UserID = *resp.Sub
	default:
		return models.Identity{}, apierror.Invalid("resolve identity", errors.New("response carries no user id"))
	}
	return id, nil
}

// GetBooks fetches the whole catalog
func (c *Client) GetBooks(ctx context.Context) ([]models.Book, error) {
	var wire []wireBook
	if err := c.getList(ctx, "fetch books", "/libros", nil, &wire); err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(wire))
	for _, w := range wire {
		books = append(books, w.toModel())
	}
	return books, nil
}

// GetBook fetches a single catalog entry
func (c *Client) GetBook(ctx context.Context, id models.ID) (models.Book, error) {
	var w wireBook
	if err := c.do(ctx, "fetch book", http.MethodGet, "/libros/"+id.String(), c.token(), nil, &w); err != nil {
		return models.Book{}, err
	}
	return w.toModel(), nil
}

// GetRequests fetches the loan requests of a user
func (c *Client) GetRequests(ctx context.Context, userID models.ID) ([]models.LoanRequest, error) {
	var wire []wireRequest
	q := url.Values{"id_usuario": {userID.String()}}
	if err := c.getList(ctx, "fetch requests", "/solicitudes", q, &wire); err != nil {
		return nil, err
	}
	out := make([]models.LoanRequest, 0, len(wire))
	for _, w := range wire {
		r, err := w.toModel()
		if err != nil {
			return nil, apierror.Invalid("fetch requests", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// GetLoans fetches the loans of a user
func (c *Client) GetLoans(ctx context.Context, userID models.ID) ([]models.Loan, error) {
	var wire []wireLoan
	q := url.Values{"id_lector": {userID.String()}}
	if err := c.getList(ctx, "fetch loans", "/prestamos", q, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Loan, 0, len(wire))
	for _, w := range wire {
		l, err := w.toModel()
		if err != nil {
			return nil, apierror.Invalid("fetch loans", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// GetPenalties fetches the penalties of a user
func (c *Client) GetPenalties(ctx context.Context, userID models.ID) ([]models.Penalty, error) {
	var wire []wirePenalty
	q := url.Values{"usuario_id": {userID.String()}}
	if err := c.getList(ctx, "fetch penalties", "/sanciones", q, &wire); err != nil {
		return nil, err
	}
	out := make([]models.Penalty, 0, len(wire))
	for _, w := range wire {
		p, err := w.toModel()
		if err != nil {
			return nil, apierror.Invalid("fetch penalties", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// CreateRequest submits a new loan request. The server re-checks penalties,
// loans and pending requests and answers 409 when any of them blocks.
func (c *Client) CreateRequest(ctx context.Context, req models.NewLoanRequest) (models.LoanRequest, error) {
	body := wireCreateRequest{
		UserID: req.UserID,
		BookID: req.BookID,
		Status: "pendiente",
	}
	var raw jsoniter.RawMessage
	if err := c.do(ctx, "create request", http.MethodPost, "/solicitudes", c.token(), body, &raw); err != nil {
		return models.LoanRequest{}, err
	}

	// Some deployments wrap the created record as {"data": {...}}
	var envelope struct {
		Data *wireRequest `json:"data"`
	}
	var w wireRequest
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Data != nil {
		w = *envelope.Data
	} else if err := json.Unmarshal(raw, &w); err != nil {
		return models.LoanRequest{}, apierror.Invalid("create request", err)
	}

	created, err := w.toModel()
	if err != nil {
		return models.LoanRequest{}, apierror.Invalid("create request", err)
	}
	return created, nil
}

// getList fetches a collection, accepting both a bare array and a {"data": [...]} envelope
func (c *Client) getList(ctx context.Context, op, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var raw jsoniter.RawMessage
	if err := c.do(ctx, op, http.MethodGet, path, c.token(), nil, &raw); err != nil {
		return err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data jsoniter.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return apierror.Invalid(op, err)
		}
		trimmed = envelope.Data
	}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return apierror.Invalid(op, err)
	}
	return nil
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// do performs a JSON request and normalizes every failure into an *apierror.Error
func (c *Client) do(ctx context.Context, op, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apierror.Transport(op, err)
	}
	defer resp.Body.Close()

	slog.Debug("Backend call", "op", op, "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return apierror.FromStatus(op, resp.StatusCode, e.text())
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apierror.Invalid(op, err)
	}
	return nil
}
