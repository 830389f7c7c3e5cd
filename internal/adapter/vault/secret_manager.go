package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/vault/api"
)

const apiKeyField = "api_key"

var ErrSecretNotFound = errors.New("secret not found")

// SecretManager reads the Gemini credentials from a Vault KV mount.
type SecretManager struct {
	client *api.Client
	path   string
}

func NewSecretManager(address, token, path string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	return &SecretManager{client: client, path: path}, nil
}

// GetGeminiAPIKey reads api_key at the configured path. Both KV v2
// (data.data) and KV v1 (data) layouts are accepted.
func (sm *SecretManager) GetGeminiAPIKey(ctx context.Context) (string, error) {
	secret, err := sm.client.Logical().ReadWithContext(ctx, sm.path)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", sm.path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, sm.path)
	}

	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	key, ok := data[apiKeyField].(string)
	if !ok || key == "" {
		return "", fmt.Errorf("%w: %s has no %s", ErrSecretNotFound, sm.path, apiKeyField)
	}
	return key, nil
}
