package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"machineid/internal/domain"
)

func publicRecord(t *testing.T, kid string, status domain.KeyStatus) domain.TenantIdentityKey {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	retired := time.Now().UTC()
	record := domain.TenantIdentityKey{
		Scope:     testScope,
		KID:       kid,
		Alg:       AlgES256,
		PublicKey: publicDER,
		Status:    status,
	}
	if status == domain.KeyStatusRetired {
		record.RetiredAt = &retired
	}
	return record
}

type stubKeyLister struct {
	records []domain.TenantIdentityKey
	err     error
}

func (s *stubKeyLister) ListPublicKeys(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error) {
	return s.records, s.err
}

func TestJWKSPublisher_BuildJWKS(t *testing.T) {
	publisher := &JWKSPublisher{
		Keys: &stubKeyLister{records: []domain.TenantIdentityKey{
			publicRecord(t, "kid-active", domain.KeyStatusActive),
			publicRecord(t, "kid-retired", domain.KeyStatusRetired),
		}},
		IssuerBaseURL: "https://identity.example.com",
	}

	set, err := publisher.BuildJWKS(context.Background(), testScope)
	if err != nil {
		t.Fatalf("build jwks: %v", err)
	}
	if len(set.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(set.Keys))
	}
	for _, key := range set.Keys {
		if key.Use != "sig" || key.Algorithm != AlgES256 {
			t.Fatalf("unexpected key metadata %+v", key)
		}
		if !key.IsPublic() {
			t.Fatal("published key must be public")
		}
	}

	payload, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	if strings.Contains(string(payload), `"d"`) {
		t.Fatal("jwks payload must not carry a private component")
	}
	if !strings.Contains(string(payload), "kid-active") {
		t.Fatal("jwks payload must carry the kid")
	}
}

func TestJWKSPublisher_BuildJWKS_Empty(t *testing.T) {
	publisher := &JWKSPublisher{Keys: &stubKeyLister{}, IssuerBaseURL: "https://identity.example.com"}
	if _, err := publisher.BuildJWKS(context.Background(), testScope); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("empty scope: expected ErrNotFound, got %v", err)
	}
}

func TestJWKSPublisher_Discovery(t *testing.T) {
	publisher := &JWKSPublisher{
		Keys: &stubKeyLister{records: []domain.TenantIdentityKey{
			publicRecord(t, "kid-1", domain.KeyStatusActive),
			publicRecord(t, "kid-2", domain.KeyStatusRetired),
		}},
		IssuerBaseURL: "https://identity.example.com",
	}

	doc, err := publisher.BuildOIDCConfig(context.Background(), testScope)
	if err != nil {
		t.Fatalf("build discovery: %v", err)
	}
	if doc.Issuer != "https://identity.example.com/v1/org/org-1/site/site-1" {
		t.Fatalf("unexpected issuer %q", doc.Issuer)
	}
	if doc.JWKSURI != doc.Issuer+"/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks_uri %q", doc.JWKSURI)
	}
	if len(doc.IDTokenSigningAlgValuesSupported) != 1 || doc.IDTokenSigningAlgValuesSupported[0] != AlgES256 {
		t.Fatalf("unexpected algs %v", doc.IDTokenSigningAlgValuesSupported)
	}
	if len(doc.SubjectTypesSupported) != 1 || doc.SubjectTypesSupported[0] != "public" {
		t.Fatalf("unexpected subject types %v", doc.SubjectTypesSupported)
	}
}
