package credential

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

type secretAccessor interface {
	AccessSecretVersion(ctx context.Context, name string) ([]byte, error)
}

// SecretProvider reads the credential document from Google Secret Manager.
type SecretProvider struct {
	name     string
	accessor secretAccessor
	buffer   time.Duration
	now      func() time.Time
}

var _ Provider = (*SecretProvider)(nil)

type gcpAccessor struct {
	client *secretmanager.Client
}

func (a *gcpAccessor) AccessSecretVersion(ctx context.Context, name string) ([]byte, error) {
	resp, err := a.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return resp.GetPayload().GetData(), nil
}

func NewSecretProvider(ctx context.Context, name string, buffer time.Duration) (*SecretProvider, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return newSecretProvider(name, &gcpAccessor{client: client}, buffer), nil
}

func newSecretProvider(name string, accessor secretAccessor, buffer time.Duration) *SecretProvider {
	if !strings.Contains(name, "/versions/") {
		name = strings.TrimSuffix(name, "/") + "/versions/latest"
	}
	if buffer <= 0 {
		buffer = DefaultExpiryBuffer
	}
	return &SecretProvider{
		name:     name,
		accessor: accessor,
		buffer:   buffer,
		now:      time.Now,
	}
}

func (p *SecretProvider) Load(ctx context.Context) (*Credential, error) {
	data, err := p.accessor.AccessSecretVersion(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("access secret %s: %w", p.name, err)
	}

	cred, err := parse(data)
	if err != nil {
		slog.Warn("Ignoring invalid credential secret", "secret", p.name, "error", err)
		return nil, nil
	}
	if !cred.Usable(p.now(), p.buffer) {
		slog.Info("Credential secret expired or expiring soon", "expires_at", cred.ExpiresAt)
		return nil, nil
	}
	return cred, nil
}
