package usecase

import (
	"context"
	"errors"
	"fmt"

	"machineid/internal/domain"
)

// DelegationRegistry validates and stores per-tenant token-exchange
// callback registrations.
type DelegationRegistry struct {
	Repo      DelegationRepository
	Endpoints EndpointPolicy
}

// Get returns the scope's config with the client secret blanked.
func (r *DelegationRegistry) Get(ctx context.Context, scope domain.TenantScope) (*domain.TokenDelegationConfig, error) {
	if r.Repo == nil {
		return nil, errors.New("delegation registry not configured")
	}
	cfg, err := r.Repo.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	redacted := *cfg
	redacted.ClientSecret = ""
	return &redacted, nil
}

// Put fully replaces the scope's registration after validating the auth
// method and running the endpoint admission policy.
func (r *DelegationRegistry) Put(ctx context.Context, cfg domain.TokenDelegationConfig) error {
	if r.Repo == nil {
		return errors.New("delegation registry not configured")
	}
	if err := cfg.Scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !cfg.AuthMethod.Supported() {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedAuthMethod, cfg.AuthMethod)
	}
	if cfg.TokenEndpoint == "" {
		return fmt.Errorf("%w: token_endpoint is required", domain.ErrValidation)
	}
	if cfg.AuthMethod == domain.AuthMethodClientSecretBasic && (cfg.ClientID == "" || cfg.ClientSecret == "") {
		return fmt.Errorf("%w: client_secret_basic requires client_id and client_secret", domain.ErrValidation)
	}
	if r.Endpoints != nil {
		if err := r.Endpoints.Check(ctx, cfg.TokenEndpoint); err != nil {
			return err
		}
	}
	return r.Repo.Put(ctx, cfg)
}

func (r *DelegationRegistry) Delete(ctx context.Context, scope domain.TenantScope) error {
	if r.Repo == nil {
		return errors.New("delegation registry not configured")
	}
	return r.Repo.Delete(ctx, scope)
}
