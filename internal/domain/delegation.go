package domain

import "time"

type AuthMethod string

const (
	AuthMethodNone              AuthMethod = "none"
	AuthMethodClientSecretBasic AuthMethod = "client_secret_basic"

	// Reserved by RFC 8693 deployments but not supported here.
	AuthMethodClientSecretPost AuthMethod = "client_secret_post"
	AuthMethodPrivateKeyJWT    AuthMethod = "private_key_jwt"
	AuthMethodMTLS             AuthMethod = "mtls"
)

func (m AuthMethod) Supported() bool {
	return m == AuthMethodNone || m == AuthMethodClientSecretBasic
}

// TokenDelegationConfig registers a tenant-operated token-exchange
// callback. An enabled record switches the tenant scope into delegated
// issuance. ClientSecret is write-only: read paths must blank it.
type TokenDelegationConfig struct {
	Scope                 TenantScope
	TokenEndpoint         string
	AuthMethod            AuthMethod
	ClientID              string
	ClientSecret          string
	SubjectTokenAudiences []string
	Enabled               bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
