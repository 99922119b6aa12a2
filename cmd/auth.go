package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/lending/internal/catalog"
	"github.com/lehigh-university-libraries/lending/internal/storage"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the lending service",
		Example: `  # Sign in, reading the password from LENDING_PASSWORD
  LENDING_PASSWORD=secret lending login --email reader@example.edu`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("LENDING_PASSWORD")
			}
			if email == "" || password == "" {
				return fmt.Errorf("--email and a password (--password or LENDING_PASSWORD) are required")
			}

			creds, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return withHint(err)
			}
			return a.completeSignIn(cmd, creds)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prefer LENDING_PASSWORD)")

	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var name string
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a reader account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("LENDING_PASSWORD")
			}
			if name == "" || email == "" || password == "" {
				return fmt.Errorf("--name, --email and a password are required")
			}

			creds, err := a.client.Register(cmd.Context(), name, email, password)
			if err != nil {
				return withHint(err)
			}
			return a.completeSignIn(cmd, creds)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prefer LENDING_PASSWORD)")

	return cmd
}

// completeSignIn resolves the identity behind a fresh token, opens the
// session and persists it for later invocations.
func (a *app) completeSignIn(cmd *cobra.Command, creds catalog.Credentials) error {
	identity, err := a.client.Me(cmd.Context(), creds.AccessToken)
	if err != nil {
		return withHint(err)
	}

	a.session.Open(identity, creds.AccessToken)
	stored := storage.StoredSession{
		AccessToken: creds.AccessToken,
		TokenType:   creds.TokenType,
		ExpiresIn:   creds.ExpiresIn,
		IssuedAt:    time.Now(),
		Identity:    identity,
	}
	if err := a.store.Save(stored); err != nil {
		return err
	}

	slog.Info("Signed in", "user_id", identity.UserID, "email", identity.Email)
	okColor.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(identity.Name, identity.Email))
	return nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restoreSession(); err == nil {
				// Best effort: the local session is cleared regardless
				if err := a.client.Logout(cmd.Context()); err != nil {
					slog.Warn("Server sign-out failed", "err", err)
				}
			}
			a.session.Close()
			if err := a.store.Delete(); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Signed out\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restoreSession(); err != nil {
				return withHint(err)
			}
			identity, err := a.client.Me(cmd.Context(), "")
			if err != nil {
				return withHint(a.handleAuth(err))
			}

			if ok, err := printStructured(cmd.OutOrStdout(), a.cfg.Output, identity); ok {
				return err
			}
			printf(cmd.OutOrStdout(), "%s (user #%s)\n", displayName(identity.Name, identity.Email), identity.UserID)
			return nil
		},
	}
}

func displayName(name, email string) string {
	name = strings.TrimSpace(name)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("%s <%s>", name, email)
	case name != "":
		return name
	case email != "":
		return email
	default:
		return "unknown user"
	}
}
