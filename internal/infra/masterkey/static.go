package masterkey

import (
	"context"
	"fmt"

	"machineid/internal/domain"
)

// StaticKeyring holds master keys in memory. Used for local development
// (MASTER_KEY_BASE64) and tests.
type StaticKeyring struct {
	keys map[string][]byte
}

func NewStaticKeyring(keys map[string][]byte) *StaticKeyring {
	copied := make(map[string][]byte, len(keys))
	for id, key := range keys {
		copied[id] = append([]byte(nil), key...)
	}
	return &StaticKeyring{keys: copied}
}

func (k *StaticKeyring) Seal(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown master key", domain.ErrDecryptionFailed)
	}
	return sealAESGCM(key, plaintext)
}

func (k *StaticKeyring) Open(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	key, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown master key", domain.ErrDecryptionFailed)
	}
	return openAESGCM(key, ciphertext)
}
