package domain

import (
	"fmt"
	"time"
)

// TenantScope is the (organization, site) pair that owns signing keys
// and delegation configuration.
type TenantScope struct {
	OrganizationID string
	SiteID         string
}

func (s TenantScope) Key() string {
	return s.OrganizationID + "/" + s.SiteID
}

func (s TenantScope) Validate() error {
	if s.OrganizationID == "" || s.SiteID == "" {
		return fmt.Errorf("tenant scope requires organization and site ids")
	}
	return nil
}

type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRetired KeyStatus = "retired"
)

// TenantIdentityKey is one signing key record for a tenant scope. The
// private half exists only as ciphertext sealed under the master key
// named by MasterKeyID; PublicKey holds the PKIX DER encoding of the
// verification key.
type TenantIdentityKey struct {
	ID                  string
	Scope               TenantScope
	KID                 string
	Alg                 string
	PublicKey           []byte
	EncryptedSigningKey []byte
	MasterKeyID         string
	Status              KeyStatus
	CreatedAt           time.Time
	RetiredAt           *time.Time
}
