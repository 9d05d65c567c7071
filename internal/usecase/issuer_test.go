package usecase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"
	"time"

	"machineid/internal/domain"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

type stubKeyProvider struct {
	key ActiveSigningKey
	err error
}

func (s *stubKeyProvider) GetActiveKey(ctx context.Context, scope domain.TenantScope) (ActiveSigningKey, error) {
	if s.err != nil {
		return ActiveSigningKey{}, s.err
	}
	return s.key, nil
}

func newTestIssuer(t *testing.T) (*TokenIssuer, *ecdsa.PrivateKey, *memDelegationRepo) {
	t.Helper()
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	delegations := newMemDelegationRepo()
	issuer := &TokenIssuer{
		Keys: &stubKeyProvider{key: ActiveSigningKey{
			KID:        "kid-1",
			Alg:        AlgES256,
			PrivateKey: privateKey,
		}},
		Delegations:   delegations,
		TrustDomain:   "carbide.local",
		IssuerBaseURL: "https://identity.example.com",
		DirectTTL:     600 * time.Second,
		Clock: func() time.Time {
			return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		},
	}
	return issuer, privateKey, delegations
}

func parseToken(t *testing.T, token string, key *ecdsa.PublicKey) (jwt.Claims, map[string]any) {
	t.Helper()
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	var claims jwt.Claims
	custom := make(map[string]any)
	if err := parsed.Claims(key, &claims, &custom); err != nil {
		t.Fatalf("verify token: %v", err)
	}
	return claims, custom
}

func TestTokenIssuer_DirectToken(t *testing.T) {
	issuer, privateKey, _ := newTestIssuer(t)

	plan, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", []string{"https://api.example.com", "service-a"})
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	if plan.Mode != domain.IssuanceDirect {
		t.Fatalf("no delegation registered, expected direct mode, got %s", plan.Mode)
	}
	if plan.TTL != 600*time.Second {
		t.Fatalf("expected direct TTL 600s, got %s", plan.TTL)
	}

	token, expiresIn, err := issuer.Issue(context.Background(), plan)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if expiresIn != 600 {
		t.Fatalf("expected expires_in 600, got %d", expiresIn)
	}

	claims, _ := parseToken(t, token, &privateKey.PublicKey)
	if claims.Subject != "spiffe://carbide.local/org/org-1/site/site-1/machine/node-7" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if claims.Issuer != "https://identity.example.com/v1/org/org-1/site/site-1" {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if len(claims.Audience) != 2 || claims.Audience[0] != "https://api.example.com" || claims.Audience[1] != "service-a" {
		t.Fatalf("unexpected audience %v", claims.Audience)
	}
	lifetime := claims.Expiry.Time().Sub(claims.IssuedAt.Time())
	if lifetime != 600*time.Second {
		t.Fatalf("exp-iat must equal plan TTL, got %s", lifetime)
	}
	if !claims.NotBefore.Time().Equal(claims.IssuedAt.Time()) {
		t.Fatal("nbf must equal iat")
	}
}

func TestTokenIssuer_DirectToken_KIDHeader(t *testing.T) {
	issuer, _, _ := newTestIssuer(t)

	plan, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", []string{"service-a"})
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	token, _, err := issuer.Issue(context.Background(), plan)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if len(parsed.Headers) != 1 || parsed.Headers[0].KeyID != "kid-1" {
		t.Fatalf("token header must carry the signing kid, got %+v", parsed.Headers)
	}
}

func TestTokenIssuer_DelegatedToken(t *testing.T) {
	issuer, privateKey, delegations := newTestIssuer(t)
	delegations.configs[testScope.Key()] = domain.TokenDelegationConfig{
		Scope:         testScope,
		TokenEndpoint: "https://exchange.example.com/token",
		AuthMethod:    domain.AuthMethodNone,
		Enabled:       true,
	}

	requested := []string{"https://api.example.com"}
	plan, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", requested)
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	if plan.Mode != domain.IssuanceDelegated {
		t.Fatalf("enabled delegation must yield delegated mode, got %s", plan.Mode)
	}
	if plan.TTL != domain.DelegatedTokenTTL {
		t.Fatalf("delegated TTL must be %s, got %s", domain.DelegatedTokenTTL, plan.TTL)
	}
	if plan.Delegation == nil || plan.Delegation.TokenEndpoint != "https://exchange.example.com/token" {
		t.Fatal("plan must carry the delegation config")
	}

	token, expiresIn, err := issuer.Issue(context.Background(), plan)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if expiresIn != 120 {
		t.Fatalf("expected expires_in 120, got %d", expiresIn)
	}

	claims, custom := parseToken(t, token, &privateKey.PublicKey)
	if len(claims.Audience) != 1 || claims.Audience[0] != domain.ExchangeAudience {
		t.Fatalf("delegated token audience must be %q, got %v", domain.ExchangeAudience, claims.Audience)
	}
	meta, ok := custom["request-meta-data"].(map[string]any)
	if !ok {
		t.Fatalf("missing request-meta-data claim: %v", custom)
	}
	auds, ok := meta["aud"].([]any)
	if !ok || len(auds) != 1 || auds[0] != "https://api.example.com" {
		t.Fatalf("request-meta-data.aud must carry the requested audiences, got %v", meta["aud"])
	}
}

func TestTokenIssuer_DisabledDelegationStaysDirect(t *testing.T) {
	issuer, _, delegations := newTestIssuer(t)
	delegations.configs[testScope.Key()] = domain.TokenDelegationConfig{
		Scope:         testScope,
		TokenEndpoint: "https://exchange.example.com/token",
		AuthMethod:    domain.AuthMethodNone,
		Enabled:       false,
	}

	plan, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", []string{"service-a"})
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	if plan.Mode != domain.IssuanceDirect {
		t.Fatalf("disabled delegation must stay direct, got %s", plan.Mode)
	}
}

func TestTokenIssuer_RejectsBadAudiences(t *testing.T) {
	issuer, _, _ := newTestIssuer(t)

	cases := [][]string{
		nil,
		{},
		{""},
		{"has space"},
		{"has\ttab"},
		{"https://"},
		{"ht tp://broken"},
	}
	for _, audiences := range cases {
		if _, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", audiences); !errors.Is(err, domain.ErrInvalidAudience) {
			t.Fatalf("audiences %v: expected ErrInvalidAudience, got %v", audiences, err)
		}
	}
}

func TestTokenIssuer_NoActiveKey(t *testing.T) {
	issuer, _, _ := newTestIssuer(t)
	issuer.Keys = &stubKeyProvider{err: fmt.Errorf("%w: none", domain.ErrNotFound)}

	plan := domain.IssuancePlan{
		Mode:      domain.IssuanceDirect,
		Scope:     testScope,
		NodeID:    "node-7",
		Audiences: []string{"service-a"},
		TTL:       600 * time.Second,
	}
	if _, _, err := issuer.Issue(context.Background(), plan); !errors.Is(err, domain.ErrSigningUnavailable) {
		t.Fatalf("expected ErrSigningUnavailable, got %v", err)
	}
}

func TestTokenIssuer_VerifyRejectsWrongKey(t *testing.T) {
	issuer, _, _ := newTestIssuer(t)

	plan, err := issuer.ResolvePlan(context.Background(), testScope, "node-7", []string{"service-a"})
	if err != nil {
		t.Fatalf("resolve plan: %v", err)
	}
	token, _, err := issuer.Issue(context.Background(), plan)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	var claims jwt.Claims
	if err := parsed.Claims(&other.PublicKey, &claims); err == nil {
		t.Fatal("verification with an unrelated key must fail")
	}
}
