package secrets

import (
	"context"
	"errors"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/go-redis/redis/v8"
)

// EnvBackend resolves secrets from process environment variables. It is
// always present and always lowest priority in the backend chain.
type EnvBackend struct{}

func (EnvBackend) Name() string { return "environment" }

func (EnvBackend) Lookup(_ context.Context, key string) (string, error) {
	return os.Getenv(key), nil
}

// RedisBackend resolves secrets from a Redis string value, used as the
// fast external k/v cache tier ahead of the authoritative vault.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend dials addr lazily (redis.NewClient does not connect
// eagerly) and reads keys under prefix+key.
func NewRedisBackend(addr, prefix string) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Lookup(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

// Close releases the underlying connection pool.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// AzureVaultBackend resolves secrets from Azure Key Vault, the
// authoritative external secret store at the top of the backend chain.
type AzureVaultBackend struct {
	client *azsecrets.Client
}

// NewAzureVaultBackend builds a backend against vaultURL using the
// ambient azidentity.DefaultAzureCredential chain (managed identity,
// environment, CLI login — whichever is available in the process
// environment).
func NewAzureVaultBackend(vaultURL string) (*AzureVaultBackend, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureVaultBackend{client: client}, nil
}

func (a *AzureVaultBackend) Name() string { return "azure_key_vault" }

func (a *AzureVaultBackend) Lookup(ctx context.Context, key string) (string, error) {
	resp, err := a.client.GetSecret(ctx, key, "", nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return "", nil
		}
		return "", err
	}
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}
