package masterkey

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"machineid/internal/domain"
	"machineid/internal/infra/vaultclient"
)

// Vault KV v2 path format (env-scoped):
// secret/data/machineid/{env}/master-keys/{key_id}
// Stored field: key_base64 (32 bytes, AES-256).
const vaultKVPathFormat = "secret/data/machineid/%s/master-keys/%s"

type vaultKeyPayload struct {
	KeyBase64 string `json:"key_base64"`
}

// VaultKeyring resolves master keys from Vault KV on every call. Vault
// unavailability fails fast as DecryptionFailed; nothing is cached.
type VaultKeyring struct {
	client *vaultclient.Client
	env    string
}

func NewVaultKeyring(client *vaultclient.Client, env string) (*VaultKeyring, error) {
	if client == nil {
		return nil, errors.New("vault client is required")
	}
	if env == "" {
		return nil, errors.New("IDENTITY_ENV is required")
	}
	return &VaultKeyring{client: client, env: env}, nil
}

func (k *VaultKeyring) Seal(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	key, err := k.fetch(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return sealAESGCM(key, plaintext)
}

func (k *VaultKeyring) Open(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	key, err := k.fetch(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return openAESGCM(key, ciphertext)
}

func (k *VaultKeyring) fetch(ctx context.Context, keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: master key id is required", domain.ErrDecryptionFailed)
	}
	var payload vaultKeyPayload
	path := fmt.Sprintf(vaultKVPathFormat, k.env, keyID)
	if err := k.client.ReadKV(ctx, path, &payload); err != nil {
		return nil, fmt.Errorf("%w: master key unavailable", domain.ErrDecryptionFailed)
	}
	key, err := base64.StdEncoding.DecodeString(payload.KeyBase64)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("%w: malformed master key record", domain.ErrDecryptionFailed)
	}
	return key, nil
}
