package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

type capturingManager struct {
	secretsmanageriface.SecretsManagerAPI

	ctx context.Context
}

func (m *capturingManager) GetSecretValueWithContext(ctx aws.Context, input *secretsmanager.GetSecretValueInput, opts ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	m.ctx = ctx
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("value")}, nil
}

func TestManagerSourceAppliesTimeout(t *testing.T) {
	manager := &capturingManager{}
	source := NewManagerSourceWithClient(manager, 5*time.Second)

	value, err := source.GetSecret(context.Background(), "arn:secret")
	if err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if value != "value" {
		t.Errorf("expected secret value, got %q", value)
	}

	deadline, ok := manager.ctx.Deadline()
	if !ok {
		t.Fatal("expected a deadline on the upstream call")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second {
		t.Errorf("expected deadline within timeout, got %v", remaining)
	}
}

func TestManagerSourceRequiresID(t *testing.T) {
	source := NewManagerSourceWithClient(&capturingManager{}, time.Second)
	if _, err := source.GetSecret(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty secret id")
	}
}

type countingSource struct {
	values map[string]string
	calls  map[string]int
	fail   bool
}

func (s *countingSource) GetSecret(ctx context.Context, id string) (string, error) {
	s.calls[id]++
	if s.fail {
		return "", errors.New("fetch failed")
	}
	value, ok := s.values[id]
	if !ok {
		return "", errors.New("not found")
	}
	return value, nil
}

func TestCacheMemoizes(t *testing.T) {
	source := &countingSource{
		values: map[string]string{"key-a": "value-a", "key-b": "value-b"},
		calls:  map[string]int{},
	}
	cache := NewCache(source)

	for i := 0; i < 3; i++ {
		value, err := cache.GetSecret(context.Background(), "key-a")
		if err != nil {
			t.Fatalf("get secret: %v", err)
		}
		if value != "value-a" {
			t.Errorf("expected value-a, got %q", value)
		}
	}
	if source.calls["key-a"] != 1 {
		t.Errorf("expected one upstream fetch, got %d", source.calls["key-a"])
	}

	if _, err := cache.GetSecret(context.Background(), "key-b"); err != nil {
		t.Fatalf("get secret: %v", err)
	}
	if source.calls["key-b"] != 1 {
		t.Errorf("expected independent fetch per id, got %d", source.calls["key-b"])
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	source := &countingSource{
		values: map[string]string{"key-a": "value-a"},
		calls:  map[string]int{},
		fail:   true,
	}
	cache := NewCache(source)

	if _, err := cache.GetSecret(context.Background(), "key-a"); err == nil {
		t.Fatal("expected fetch failure")
	}

	source.fail = false
	value, err := cache.GetSecret(context.Background(), "key-a")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if value != "value-a" {
		t.Errorf("expected value-a, got %q", value)
	}
	if source.calls["key-a"] != 2 {
		t.Errorf("expected failure not to be cached, got %d calls", source.calls["key-a"])
	}
}
