package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"machineid/internal/domain"
)

// memKeyRepo mirrors the transactional rotate-in semantics of the
// database repository: at most one active key per scope, and reads see
// the state either before or after a rotation, never in between.
type memKeyRepo struct {
	mu   sync.Mutex
	keys []domain.TenantIdentityKey
	now  func() time.Time
}

func (r *memKeyRepo) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

func (r *memKeyRepo) GetActive(ctx context.Context, scope domain.TenantScope) (*domain.TenantIdentityKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.keys {
		if r.keys[i].Scope == scope && r.keys[i].Status == domain.KeyStatusActive {
			key := r.keys[i]
			return &key, nil
		}
	}
	return nil, fmt.Errorf("%w: no active key", domain.ErrNotFound)
}

func (r *memKeyRepo) ListByScope(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.TenantIdentityKey, 0)
	for _, key := range r.keys {
		if key.Scope == scope {
			out = append(out, key)
		}
	}
	return out, nil
}

func (r *memKeyRepo) RotateIn(ctx context.Context, key domain.TenantIdentityKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	retiredAt := r.clock()
	for i := range r.keys {
		if r.keys[i].Scope == key.Scope && r.keys[i].Status == domain.KeyStatusActive {
			r.keys[i].Status = domain.KeyStatusRetired
			at := retiredAt
			r.keys[i].RetiredAt = &at
		}
	}
	key.Status = domain.KeyStatusActive
	r.keys = append(r.keys, key)
	return nil
}

type memDelegationRepo struct {
	configs map[string]domain.TokenDelegationConfig
}

func newMemDelegationRepo() *memDelegationRepo {
	return &memDelegationRepo{configs: make(map[string]domain.TokenDelegationConfig)}
}

func (r *memDelegationRepo) Get(ctx context.Context, scope domain.TenantScope) (*domain.TokenDelegationConfig, error) {
	cfg, ok := r.configs[scope.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: no delegation config", domain.ErrNotFound)
	}
	return &cfg, nil
}

func (r *memDelegationRepo) Put(ctx context.Context, cfg domain.TokenDelegationConfig) error {
	r.configs[cfg.Scope.Key()] = cfg
	return nil
}

func (r *memDelegationRepo) Delete(ctx context.Context, scope domain.TenantScope) error {
	if _, ok := r.configs[scope.Key()]; !ok {
		return fmt.Errorf("%w: no delegation config", domain.ErrNotFound)
	}
	delete(r.configs, scope.Key())
	return nil
}

type memNodeRepo struct {
	nodes map[string]domain.Node
}

func newMemNodeRepo() *memNodeRepo {
	return &memNodeRepo{nodes: make(map[string]domain.Node)}
}

func (r *memNodeRepo) GetByID(ctx context.Context, nodeID string) (*domain.Node, error) {
	node, ok := r.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, nodeID)
	}
	return &node, nil
}

func (r *memNodeRepo) Create(ctx context.Context, node domain.Node) error {
	r.nodes[node.ID] = node
	return nil
}

type stubExchange struct {
	resp          domain.TokenResponse
	err           error
	gotDelegation domain.TokenDelegationConfig
	gotToken      string
	calls         int
}

func (s *stubExchange) Exchange(ctx context.Context, delegation domain.TokenDelegationConfig, subjectToken string) (domain.TokenResponse, error) {
	s.calls++
	s.gotDelegation = delegation
	s.gotToken = subjectToken
	if s.err != nil {
		return domain.TokenResponse{}, s.err
	}
	return s.resp, nil
}

type stubLimiter struct {
	decision domain.RateLimitDecision
	err      error
	gotKey   string
	calls    int
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	s.calls++
	s.gotKey = key
	return s.decision, s.err
}

type stubEndpointPolicy struct {
	err          error
	gotEndpoints []string
}

func (s *stubEndpointPolicy) Check(ctx context.Context, endpoint string) error {
	s.gotEndpoints = append(s.gotEndpoints, endpoint)
	return s.err
}
