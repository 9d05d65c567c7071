package domain

import "time"

const (
	TokenTypeJWT           = "urn:ietf:params:oauth:token-type:jwt"
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"

	// ExchangeAudience is the fixed audience of delegated-mode tokens;
	// the tenant callback is the only intended consumer.
	ExchangeAudience = "tenant-layer-exchange"

	// DelegatedTokenTTL bounds the pre-exchange token lifetime.
	DelegatedTokenTTL = 120 * time.Second
)

type IssuanceMode string

const (
	IssuanceDirect    IssuanceMode = "direct"
	IssuanceDelegated IssuanceMode = "delegated"
)

// IssuancePlan is the single input shape for token issuance, resolved
// once per request. Delegation is nil in direct mode.
type IssuancePlan struct {
	Mode       IssuanceMode
	Scope      TenantScope
	NodeID     string
	Audiences  []string
	TTL        time.Duration
	Delegation *TokenDelegationConfig
}

// TokenResponse is the terminal shape handed back to the requesting
// node, for both direct issuance and a verbatim exchange response.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int64  `json:"expires_in"`
}
