package usecase

import (
	"context"
	"time"

	"machineid/internal/domain"
)

type Clock func() time.Time

type TenantKeyRepository interface {
	GetActive(ctx context.Context, scope domain.TenantScope) (*domain.TenantIdentityKey, error)
	ListByScope(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error)
	RotateIn(ctx context.Context, key domain.TenantIdentityKey) error
}

type DelegationRepository interface {
	Get(ctx context.Context, scope domain.TenantScope) (*domain.TokenDelegationConfig, error)
	Put(ctx context.Context, cfg domain.TokenDelegationConfig) error
	Delete(ctx context.Context, scope domain.TenantScope) error
}

type NodeRepository interface {
	GetByID(ctx context.Context, nodeID string) (*domain.Node, error)
	Create(ctx context.Context, node domain.Node) error
}

// EndpointPolicy admits or rejects a delegation token endpoint URL.
type EndpointPolicy interface {
	Check(ctx context.Context, endpoint string) error
}

// ExchangeClient performs the outbound RFC 8693 call.
type ExchangeClient interface {
	Exchange(ctx context.Context, delegation domain.TokenDelegationConfig, subjectToken string) (domain.TokenResponse, error)
}

// ActiveKeyProvider yields the scope's current signing key with the
// private half decrypted. Callers must not retain the key beyond the
// signing operation.
type ActiveKeyProvider interface {
	GetActiveKey(ctx context.Context, scope domain.TenantScope) (ActiveSigningKey, error)
}

// PublicKeyLister yields verification-side key records only.
type PublicKeyLister interface {
	ListPublicKeys(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error)
}
