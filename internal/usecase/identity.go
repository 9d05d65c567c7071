package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"machineid/internal/domain"
)

// IdentityService orchestrates one identity request: rate limit, scope
// resolution, issuance, and (when configured) the delegation exchange.
// Origin validation happens in the HTTP layer before any of this runs.
type IdentityService struct {
	Nodes    NodeRepository
	Issuer   *TokenIssuer
	Exchange ExchangeClient

	Limiter           domain.RateLimiter
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func (s *IdentityService) HandleRequest(ctx context.Context, nodeID string, audiences []string) (domain.TokenResponse, domain.RateLimitDecision, error) {
	var decision domain.RateLimitDecision
	if nodeID == "" {
		return domain.TokenResponse{}, decision, fmt.Errorf("%w: missing node identity", domain.ErrUnknownNode)
	}

	if s.Limiter != nil && s.RateLimitRequests > 0 {
		var err error
		decision, err = s.Limiter.Allow(ctx, "node:"+nodeID, s.RateLimitRequests, s.RateLimitWindow)
		if err == nil && !decision.Allowed {
			return domain.TokenResponse{}, decision, domain.ErrRateLimited
		}
		// Limiter backend failure fails open; issuance still proceeds.
	}

	node, err := s.Nodes.GetByID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = fmt.Errorf("%w: %s", domain.ErrUnknownNode, nodeID)
		}
		return domain.TokenResponse{}, decision, err
	}

	plan, err := s.Issuer.ResolvePlan(ctx, node.Scope, nodeID, audiences)
	if err != nil {
		return domain.TokenResponse{}, decision, err
	}
	token, expiresIn, err := s.Issuer.Issue(ctx, plan)
	if err != nil {
		return domain.TokenResponse{}, decision, err
	}

	if plan.Mode == domain.IssuanceDelegated {
		if s.Exchange == nil {
			return domain.TokenResponse{}, decision, fmt.Errorf("%w: exchange client unavailable", domain.ErrUpstreamUnreachable)
		}
		resp, err := s.Exchange.Exchange(ctx, *plan.Delegation, token)
		if err != nil {
			return domain.TokenResponse{}, decision, err
		}
		return resp, decision, nil
	}

	return domain.TokenResponse{
		AccessToken:     token,
		IssuedTokenType: domain.TokenTypeJWT,
		TokenType:       "Bearer",
		ExpiresIn:       expiresIn,
	}, decision, nil
}
