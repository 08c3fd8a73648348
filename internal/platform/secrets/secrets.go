// Package secrets resolves deployment secrets from AWS Secrets Manager.
package secrets

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"

	apperrors "github.com/slideruleearth/sliderule-auth/internal/platform/errors"
)

// Source retrieves a secret value by its store identifier.
type Source interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// ManagerSource reads secrets from AWS Secrets Manager. Every fetch is
// bounded by the configured timeout so a slow secret store cannot stall
// a login.
type ManagerSource struct {
	client  secretsmanageriface.SecretsManagerAPI
	timeout time.Duration
}

// NewManagerSource creates a Secrets Manager source using ambient AWS
// credentials, with the given per-call timeout.
func NewManagerSource(timeout time.Duration) *ManagerSource {
	sess := session.Must(session.NewSession(aws.NewConfig().
		WithHTTPClient(&http.Client{Timeout: timeout})))
	return &ManagerSource{
		client:  secretsmanager.New(sess),
		timeout: timeout,
	}
}

// NewManagerSourceWithClient creates a source backed by an explicit client.
func NewManagerSourceWithClient(client secretsmanageriface.SecretsManagerAPI, timeout time.Duration) *ManagerSource {
	return &ManagerSource{client: client, timeout: timeout}
}

// GetSecret fetches the secret string for the given ARN or name.
func (s *ManagerSource) GetSecret(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", apperrors.New(apperrors.CodeSecretUnavailable, "secret id is required")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeSecretUnavailable, "get secret value", err)
	}
	if out.SecretString == nil {
		return "", apperrors.New(apperrors.CodeSecretUnavailable, "secret has no string value")
	}
	return *out.SecretString, nil
}

// Cache memoizes secret values for the lifetime of the process.
//
// Secrets are immutable for a deployment, so the first successful fetch
// is authoritative; failures are not cached.
type Cache struct {
	source Source

	mu     sync.Mutex
	values map[string]string
}

// NewCache wraps a source with process-lifetime memoization.
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		values: make(map[string]string),
	}
}

// GetSecret returns the cached value, fetching it on first access.
func (c *Cache) GetSecret(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	if value, ok := c.values[id]; ok {
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	value, err := c.source.GetSecret(ctx, id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.values[id] = value
	c.mu.Unlock()
	return value, nil
}
