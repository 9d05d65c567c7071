// Package masterkey provides the encrypt/decrypt capability backed by
// the external master-key system. The key store depends only on the
// Sealer interface, never on the secret manager's protocol.
package masterkey

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"machineid/internal/domain"
)

type Sealer interface {
	// Seal encrypts plaintext under the master key named by keyID.
	Seal(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)
	// Open decrypts ciphertext produced by Seal with the same keyID.
	Open(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}

// sealAESGCM produces nonce||ciphertext under a 32-byte key.
func sealAESGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openAESGCM(key, sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: bad master key", domain.ErrDecryptionFailed)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: bad master key", domain.ErrDecryptionFailed)
	}
	if len(sealed) <= gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", domain.ErrDecryptionFailed)
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext rejected", domain.ErrDecryptionFailed)
	}
	return plaintext, nil
}
