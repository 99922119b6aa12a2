package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/lending/internal/apierror"
	"github.com/lehigh-university-libraries/lending/internal/circulation"
	"github.com/lehigh-university-libraries/lending/internal/config"
	"github.com/lehigh-university-libraries/lending/internal/handlers"
	"github.com/lehigh-university-libraries/lending/internal/models"
	"github.com/lehigh-university-libraries/lending/internal/storage"
	"github.com/lehigh-university-libraries/lending/internal/testutil/mockhttp"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"success", nil, apierror.ExitSuccess},
		{"blocked", &circulation.BlockedError{Message: "blocked"}, apierror.ExitBlocked},
		{"no session", fmt.Errorf("wrapped: %w", circulation.ErrNoSession), apierror.ExitAuth},
		{"unauthorized", apierror.FromStatus("me", 401, ""), apierror.ExitAuth},
		{"not found", apierror.FromStatus("fetch book", 404, ""), apierror.ExitNotFound},
		{"other", errors.New("boom"), apierror.ExitGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitCode(tt.err))
		})
	}
}

func TestWithHint(t *testing.T) {
	assert.Nil(t, withHint(nil))

	err := withHint(circulation.ErrNoSession)
	assert.ErrorIs(t, err, circulation.ErrNoSession)
	assert.Contains(t, err.Error(), "Hint: Sign in with 'lending login'")

	plain := errors.New("boom")
	assert.Equal(t, plain, withHint(plain))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada <ada@example.edu>", displayName("Ada", "ada@example.edu"))
	assert.Equal(t, "ada@example.edu", displayName(" ", "ada@example.edu"))
	assert.Equal(t, "unknown user", displayName("", ""))
}

func backend(t *testing.T) string {
	t.Helper()
	server := mockhttp.New().
		JSON("/api/auth/login", map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600}).
		RequireBearer("tok").
		JSON("/api/auth/me", map[string]any{"id": 1, "email": "ada@example.edu", "name": "Ada"}).
		Route(http.MethodPost, "/api/solicitudes", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 30, "id_usuario": 1, "id_libro": 7, "estado": "pendiente"}`))
		}).
		Raw("/api/libros", http.StatusOK, `[{"id": 5, "titulo": "Dune", "ejemplares": 1}, {"id": 7, "titulo": "Ulysses", "ejemplares": 2}]`).
		Raw("/api/libros/5", http.StatusOK, `{"id": 5, "titulo": "Dune", "ejemplares": 1}`).
		Raw("/api/libros/7", http.StatusOK, `{"id": 7, "titulo": "Ulysses", "ejemplares": 2}`).
		Raw("/api/solicitudes", http.StatusOK, `[{"id": 1, "id_usuario": 1, "id_libro": 5, "estado": "pendiente"}]`).
		Raw("/api/prestamos", http.StatusOK, `[]`).
		Raw("/api/sanciones", http.StatusOK, `[]`).
		Build()
	t.Cleanup(server.Close)
	return server.URL + "/api"
}

func run(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--api-url", apiURL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginCheckAndRequest(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("LENDING_SESSION_FILE", filepath.Join(dir, "session.yaml"))
	t.Setenv("LENDING_PASSWORD", "pw")
	apiURL := backend(t)

	_, err := run(t, apiURL, "check", "7")
	require.ErrorIs(t, err, circulation.ErrNoSession)

	out, err := run(t, apiURL, "login", "--email", "ada@example.edu")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ada <ada@example.edu>")

	out, err = run(t, apiURL, "check", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "You can request Ulysses")

	out, err = run(t, apiURL, "check", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "pending request")

	_, err = run(t, apiURL, "request", "5")
	require.ErrorIs(t, err, circulation.ErrBlocked)
	assert.Equal(t, apierror.ExitBlocked, ExitCode(err))

	out, err = run(t, apiURL, "request", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Request #30 submitted for Ulysses")

	out, err = run(t, apiURL, "-o", "json", "requests")
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "Dune"`)

	_, err = run(t, apiURL, "logout")
	require.NoError(t, err)
	_, err = run(t, apiURL, "whoami")
	assert.ErrorIs(t, err, circulation.ErrNoSession)
}

func TestServedRejectionRemovesSessionFile(t *testing.T) {
	cfg := &config.Config{
		APIURL:      backend(t),
		Timeout:     5 * time.Second,
		SessionFile: filepath.Join(t.TempDir(), "session.yaml"),
		LogLevel:    "info",
		Output:      "table",
		ServeAddr:   ":0",
	}
	a := newApp(cfg)
	require.NoError(t, a.store.Save(storage.StoredSession{
		AccessToken: "stale",
		Identity:    models.Identity{UserID: 1, Email: "ada@example.edu"},
	}))
	require.NoError(t, a.restoreSession())

	api := httptest.NewServer(handlers.New(a.client, servedSession{a}, a.aggregator, a.coordinator, nil).Routes())
	defer api.Close()

	resp, err := http.Post(api.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, ok := a.session.CurrentUserID()
	assert.False(t, ok)
	_, err = a.store.Load()
	assert.ErrorIs(t, err, storage.ErrNoToken)

	// The next invocation starts signed out
	assert.ErrorIs(t, a.restoreSession(), circulation.ErrNoSession)
}
