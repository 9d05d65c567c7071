package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"machineid/internal/domain"
	"machineid/internal/infra/masterkey"
)

const AlgES256 = "ES256"

// ActiveSigningKey carries a decrypted private key for the duration of
// one signing operation.
type ActiveSigningKey struct {
	KID        string
	Alg        string
	PrivateKey *ecdsa.PrivateKey
}

// TenantKeyService owns per-tenant signing key lifecycle: creation,
// rotation, active-key lookup with master-key decryption, and the
// public listing consumed by the JWKS publisher.
type TenantKeyService struct {
	Repo        TenantKeyRepository
	Sealer      masterkey.Sealer
	MasterKeyID string
	GracePeriod time.Duration
	Clock       Clock
}

func (s *TenantKeyService) GetActiveKey(ctx context.Context, scope domain.TenantScope) (ActiveSigningKey, error) {
	if s.Repo == nil || s.Sealer == nil {
		return ActiveSigningKey{}, errors.New("key service not configured")
	}
	record, err := s.Repo.GetActive(ctx, scope)
	if err != nil {
		return ActiveSigningKey{}, err
	}
	plaintext, err := s.Sealer.Open(ctx, record.MasterKeyID, record.EncryptedSigningKey)
	if err != nil {
		return ActiveSigningKey{}, err
	}
	parsed, err := x509.ParsePKCS8PrivateKey(plaintext)
	zero(plaintext)
	if err != nil {
		return ActiveSigningKey{}, fmt.Errorf("%w: stored key unparseable", domain.ErrDecryptionFailed)
	}
	ecKey, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return ActiveSigningKey{}, fmt.Errorf("%w: unexpected key type", domain.ErrDecryptionFailed)
	}
	return ActiveSigningKey{
		KID:        record.KID,
		Alg:        record.Alg,
		PrivateKey: ecKey,
	}, nil
}

// CreateKey generates a fresh keypair, seals the private half under the
// current master key, and rotates it in as the scope's single active
// key. Prior active keys are retired in the same transaction.
func (s *TenantKeyService) CreateKey(ctx context.Context, scope domain.TenantScope, alg string) (string, error) {
	if s.Repo == nil || s.Sealer == nil {
		return "", errors.New("key service not configured")
	}
	if err := scope.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if alg == "" {
		alg = AlgES256
	}
	if alg != AlgES256 {
		return "", fmt.Errorf("%w: unsupported algorithm %q", domain.ErrValidation, alg)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", err
	}
	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", err
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return "", err
	}
	sealed, err := s.Sealer.Seal(ctx, s.MasterKeyID, privateDER)
	zero(privateDER)
	if err != nil {
		return "", err
	}

	kid := keyIDFromPublicKey(publicDER)
	key := domain.TenantIdentityKey{
		Scope:               scope,
		KID:                 kid,
		Alg:                 alg,
		PublicKey:           publicDER,
		EncryptedSigningKey: sealed,
		MasterKeyID:         s.MasterKeyID,
		Status:              domain.KeyStatusActive,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.Repo.RotateIn(ctx, key); err != nil {
		return "", err
	}
	return kid, nil
}

// ListPublicKeys returns active keys plus retired keys still inside the
// verification grace window, with private material stripped.
func (s *TenantKeyService) ListPublicKeys(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error) {
	if s.Repo == nil {
		return nil, errors.New("key service not configured")
	}
	records, err := s.Repo.ListByScope(ctx, scope)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.TenantIdentityKey, 0, len(records))
	for _, record := range records {
		if !s.publishable(record, now) {
			continue
		}
		record.EncryptedSigningKey = nil
		out = append(out, record)
	}
	return out, nil
}

func (s *TenantKeyService) publishable(key domain.TenantIdentityKey, now time.Time) bool {
	if key.Status == domain.KeyStatusActive {
		return true
	}
	if key.Status != domain.KeyStatusRetired || key.RetiredAt == nil {
		return false
	}
	if s.GracePeriod <= 0 {
		return false
	}
	return now.Sub(*key.RetiredAt) < s.GracePeriod
}

func (s *TenantKeyService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

func keyIDFromPublicKey(publicDER []byte) string {
	sum := sha256.Sum256(publicDER)
	return hex.EncodeToString(sum[:])
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
