package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryBuffer is the minimum remaining lifetime a credential must have
// to be handed out.
const DefaultExpiryBuffer = 5 * time.Minute

type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
	Email       string
}

// Provider loads the access credential for one build. It returns nil, nil when
// no usable credential exists; an error only reports a broken provider.
type Provider interface {
	Load(ctx context.Context) (*Credential, error)
}

type storedCredential struct {
	AccessToken  string `json:"accessToken"`
	ExpiresAt    *int64 `json:"expiresAt"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Email        string `json:"email,omitempty"`
}

func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   "Bearer",
		Expiry:      c.ExpiresAt,
	}
}

func (c *Credential) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(c.Token())
}

func (c *Credential) ExpiresIn(now time.Time) time.Duration {
	return c.ExpiresAt.Sub(now)
}

// Usable reports whether the credential outlives now by more than buffer.
func (c *Credential) Usable(now time.Time, buffer time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.After(now.Add(buffer))
}

func parse(data []byte) (*Credential, error) {
	var stored storedCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parse credential: %w", err)
	}
	if strings.TrimSpace(stored.AccessToken) == "" {
		return nil, fmt.Errorf("credential has no accessToken")
	}
	if stored.ExpiresAt == nil {
		return nil, fmt.Errorf("credential has no expiresAt")
	}
	return &Credential{
		AccessToken: stored.AccessToken,
		ExpiresAt:   time.UnixMilli(*stored.ExpiresAt),
		Email:       stored.Email,
	}, nil
}

// Marshal encodes c in the on-disk format.
func Marshal(c *Credential) ([]byte, error) {
	expires := c.ExpiresAt.UnixMilli()
	return json.MarshalIndent(storedCredential{
		AccessToken: c.AccessToken,
		ExpiresAt:   &expires,
		Email:       c.Email,
	}, "", "  ")
}
