package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"deckcraft/internal/app"
	"deckcraft/internal/credential"
	"deckcraft/pkg/config"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	loginCallbackAddr = "localhost:8085"
	loginTimeout      = 5 * time.Minute
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the image generation credential",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a usable credential is available",
	RunE:  runAuthStatus,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store a credential",
	Long: `Complete an OAuth sign-in when DECKCRAFT_CLIENT_ID and DECKCRAFT_CLIENT_SECRET
are set and store the token as the local credential. Without a client, open the
provider sign-in page in the browser instead.`,
	RunE: runAuthLogin,
}

func init() {
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLoginCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(infoStyle.Render("\nCredential Status:\n"))

	source := "file " + credentialPath(cfg)
	if cfg.Credential.Secret != "" {
		source = "secret " + cfg.Credential.Secret
	}

	provider, err := app.NewCredentialProvider(ctx, cfg)
	if err != nil {
		fmt.Println(errorStyle.Render("✗ Credential provider unavailable: " + err.Error()))
		return nil
	}

	cred, err := provider.Load(ctx)
	switch {
	case err != nil:
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ Could not read %s: %v", source, err)))
	case cred == nil:
		fmt.Println(errorStyle.Render("✗ No usable credential in " + source))
		fmt.Println(infoStyle.Render(fmt.Sprintf("  Missing, invalid or expiring within %s. Run: deckcraft auth login", cfg.Credential.ExpiryBuffer)))
	default:
		remaining := cred.ExpiresIn(time.Now()).Round(time.Minute)
		line := fmt.Sprintf("✓ Credential valid for %s (%s)", remaining, source)
		if cred.Email != "" {
			line += ", signed in as " + cred.Email
		}
		fmt.Println(successStyle.Render(line))
	}

	switch cfg.ImageGen.Provider {
	case config.ProviderGemini:
		if cfg.GeminiAPIKey != "" {
			fmt.Println(successStyle.Render("✓ Gemini: API key configured"))
		} else {
			fmt.Println(infoStyle.Render("○ Gemini: using credential token as API key"))
		}
	default:
		fmt.Println(infoStyle.Render("○ Image provider: " + cfg.ImageGen.Provider))
	}

	if cfg.Groq.RefineStyle {
		if cfg.GroqAPIKey != "" {
			fmt.Println(successStyle.Render("✓ Groq: API key configured"))
		} else {
			fmt.Println(errorStyle.Render("✗ Groq: refine_style is on but GROQ_API_KEY is missing"))
		}
	}

	if cfg.GCS.Bucket != "" {
		fmt.Println(successStyle.Render("✓ GCS: bucket " + cfg.GCS.Bucket))
	} else {
		fmt.Println(infoStyle.Render("○ GCS: not configured (optional)"))
	}

	fmt.Println()
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.OAuthClientID == "" || cfg.OAuthClientSecret == "" {
		fmt.Println(infoStyle.Render("\nOpening sign-in page..."))
		fmt.Println(infoStyle.Render("If browser doesn't open, visit:\n" + cfg.Credential.LoginURL))
		fmt.Println(infoStyle.Render("Then save the session token to " + credentialPath(cfg)))
		return browser.OpenURL(cfg.Credential.LoginURL)
	}

	return runOAuthLogin(cfg.OAuthClientID, cfg.OAuthClientSecret, credentialPath(cfg))
}

func credentialPath(cfg *config.Config) string {
	if cfg.Credential.Path != "" {
		return cfg.Credential.Path
	}
	return credential.DefaultPath()
}

func runOAuthLogin(clientID, clientSecret, credPath string) error {
	oauthConfig := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/cloud-platform",
		},
		RedirectURL: "http://" + loginCallbackAddr + "/callback",
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", loginCallbackAddr)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
	}

	server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			errChan <- fmt.Errorf("no code in callback")
			_, _ = fmt.Fprintf(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
			return
		}

		codeChan <- code
		_, _ = fmt.Fprintf(w, "<html><body><h1>Signed in</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Println(infoStyle.Render("\nOpening browser for sign-in..."))
	fmt.Println(infoStyle.Render("If browser doesn't open, visit:\n" + authURL))

	_ = browser.OpenURL(authURL)

	var token *oauth2.Token
	err = runWithSpinner("Waiting for sign-in", func() error {
		select {
		case code := <-codeChan:
			t, err := oauthConfig.Exchange(context.Background(), code)
			if err != nil {
				return fmt.Errorf("failed to exchange code: %w", err)
			}
			token = t
			return nil
		case err := <-errChan:
			return err
		case <-time.After(loginTimeout):
			return fmt.Errorf("sign-in timed out")
		}
	})
	if err != nil {
		return err
	}

	email, _ := token.Extra("email").(string)
	data, err := credential.Marshal(&credential.Credential{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
		Email:       email,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(credPath), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(credPath, data, 0600); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	fmt.Println(successStyle.Render("✓ Credential saved to: " + credPath))
	return nil
}
