package usecase

import (
	"context"
	"crypto/x509"
	"fmt"

	"machineid/internal/domain"

	"github.com/go-jose/go-jose/v4"
)

// JWKSPublisher derives public JWKS and OIDC discovery documents from
// the key store. It only ever sees public key records.
type JWKSPublisher struct {
	Keys          PublicKeyLister
	IssuerBaseURL string
}

type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	JWKSURI                          string   `json:"jwks_uri"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

func (p *JWKSPublisher) BuildJWKS(ctx context.Context, scope domain.TenantScope) (jose.JSONWebKeySet, error) {
	records, err := p.Keys.ListPublicKeys(ctx, scope)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	if len(records) == 0 {
		return jose.JSONWebKeySet{}, fmt.Errorf("%w: no keys for scope %s", domain.ErrNotFound, scope.Key())
	}
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(records))}
	for _, record := range records {
		publicKey, err := x509.ParsePKIXPublicKey(record.PublicKey)
		if err != nil {
			return jose.JSONWebKeySet{}, fmt.Errorf("parse public key %s: %w", record.KID, err)
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       publicKey,
			KeyID:     record.KID,
			Algorithm: record.Alg,
			Use:       "sig",
		})
	}
	return set, nil
}

func (p *JWKSPublisher) BuildOIDCConfig(ctx context.Context, scope domain.TenantScope) (DiscoveryDocument, error) {
	records, err := p.Keys.ListPublicKeys(ctx, scope)
	if err != nil {
		return DiscoveryDocument{}, err
	}
	if len(records) == 0 {
		return DiscoveryDocument{}, fmt.Errorf("%w: no keys for scope %s", domain.ErrNotFound, scope.Key())
	}
	seen := make(map[string]bool)
	algs := make([]string, 0, 1)
	for _, record := range records {
		if !seen[record.Alg] {
			seen[record.Alg] = true
			algs = append(algs, record.Alg)
		}
	}
	issuer := IssuerURL(p.IssuerBaseURL, scope)
	return DiscoveryDocument{
		Issuer:                           issuer,
		JWKSURI:                          issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{"id_token"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: algs,
	}, nil
}
