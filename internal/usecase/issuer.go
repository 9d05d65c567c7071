package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"machineid/internal/domain"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
)

// TokenIssuer builds and signs JWT-SVID claim sets for both issuance
// variants. The issuance plan is resolved once per request so the
// gateway and exchange client each take one unambiguous input.
type TokenIssuer struct {
	Keys          ActiveKeyProvider
	Delegations   DelegationRepository
	TrustDomain   string
	IssuerBaseURL string
	DirectTTL     time.Duration
	Clock         Clock
}

func (i *TokenIssuer) ResolvePlan(ctx context.Context, scope domain.TenantScope, nodeID string, audiences []string) (domain.IssuancePlan, error) {
	if err := validateAudiences(audiences); err != nil {
		return domain.IssuancePlan{}, err
	}
	plan := domain.IssuancePlan{
		Mode:      domain.IssuanceDirect,
		Scope:     scope,
		NodeID:    nodeID,
		Audiences: audiences,
		TTL:       i.directTTL(),
	}
	if i.Delegations == nil {
		return plan, nil
	}
	cfg, err := i.Delegations.Get(ctx, scope)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return plan, nil
		}
		return domain.IssuancePlan{}, err
	}
	if cfg == nil || !cfg.Enabled {
		return plan, nil
	}
	plan.Mode = domain.IssuanceDelegated
	plan.TTL = domain.DelegatedTokenTTL
	plan.Delegation = cfg
	return plan, nil
}

// Issue signs a JWT-SVID for the plan and reports its lifetime in
// seconds. exp-iat never exceeds the plan TTL.
func (i *TokenIssuer) Issue(ctx context.Context, plan domain.IssuancePlan) (string, int64, error) {
	key, err := i.Keys.GetActiveKey(ctx, plan.Scope)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", 0, fmt.Errorf("%w: no active key for scope %s", domain.ErrSigningUnavailable, plan.Scope.Key())
		}
		return "", 0, err
	}

	subject, err := i.spiffeID(plan.Scope, plan.NodeID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := i.now().UTC().Truncate(time.Second)
	claims := jwt.Claims{
		Subject:   subject.String(),
		Issuer:    IssuerURL(i.IssuerBaseURL, plan.Scope),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(now.Add(plan.TTL)),
	}
	switch plan.Mode {
	case domain.IssuanceDelegated:
		claims.Audience = jwt.Audience{domain.ExchangeAudience}
	default:
		claims.Audience = jwt.Audience(plan.Audiences)
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.SignatureAlgorithm(key.Alg),
		Key: jose.JSONWebKey{
			Key:   key.PrivateKey,
			KeyID: key.KID,
		},
	}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrSigningUnavailable, err)
	}

	builder := jwt.Signed(signer).Claims(claims)
	if plan.Mode == domain.IssuanceDelegated {
		builder = builder.Claims(map[string]any{
			"request-meta-data": map[string]any{"aud": plan.Audiences},
		})
	}
	token, err := builder.Serialize()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrSigningUnavailable, err)
	}
	return token, int64(plan.TTL / time.Second), nil
}

func (i *TokenIssuer) spiffeID(scope domain.TenantScope, nodeID string) (spiffeid.ID, error) {
	td, err := spiffeid.TrustDomainFromString(i.TrustDomain)
	if err != nil {
		return spiffeid.ID{}, err
	}
	return spiffeid.FromSegments(td,
		"org", scope.OrganizationID,
		"site", scope.SiteID,
		"machine", nodeID,
	)
}

func (i *TokenIssuer) directTTL() time.Duration {
	if i.DirectTTL <= 0 {
		return 600 * time.Second
	}
	return i.DirectTTL
}

func (i *TokenIssuer) now() time.Time {
	if i.Clock != nil {
		return i.Clock()
	}
	return time.Now().UTC()
}

// IssuerURL is the tenant-scoped issuer claim, also published in the
// OIDC discovery document.
func IssuerURL(base string, scope domain.TenantScope) string {
	return fmt.Sprintf("%s/v1/org/%s/site/%s",
		strings.TrimRight(base, "/"), scope.OrganizationID, scope.SiteID)
}

func validateAudiences(audiences []string) error {
	if len(audiences) == 0 {
		return fmt.Errorf("%w: at least one audience is required", domain.ErrInvalidAudience)
	}
	for _, audience := range audiences {
		if audience == "" {
			return fmt.Errorf("%w: empty audience", domain.ErrInvalidAudience)
		}
		for _, r := range audience {
			if unicode.IsSpace(r) || unicode.IsControl(r) {
				return fmt.Errorf("%w: audience contains whitespace", domain.ErrInvalidAudience)
			}
		}
		if strings.Contains(audience, "://") {
			parsed, err := url.Parse(audience)
			if err != nil || parsed.Host == "" {
				return fmt.Errorf("%w: malformed audience URI %q", domain.ErrInvalidAudience, audience)
			}
		}
	}
	return nil
}
