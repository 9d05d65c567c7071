package db

import "time"

type TenantIdentityKeyModel struct {
	ID                  string `gorm:"type:uuid;primaryKey"`
	OrganizationID      string `gorm:"index:idx_key_scope;not null"`
	SiteID              string `gorm:"index:idx_key_scope;not null"`
	KID                 string `gorm:"uniqueIndex;not null"`
	Alg                 string `gorm:"not null"`
	PublicKey           []byte `gorm:"type:bytea;not null"`
	EncryptedSigningKey []byte `gorm:"type:bytea;not null"`
	MasterKeyID         string `gorm:"not null"`
	Status              string `gorm:"index;not null"`
	CreatedAt           time.Time `gorm:"not null"`
	RetiredAt           *time.Time
}

type TokenDelegationConfigModel struct {
	ID                    string `gorm:"type:uuid;primaryKey"`
	OrganizationID        string `gorm:"uniqueIndex:idx_delegation_scope;not null"`
	SiteID                string `gorm:"uniqueIndex:idx_delegation_scope;not null"`
	TokenEndpoint         string `gorm:"not null"`
	AuthMethod            string `gorm:"not null"`
	ClientID              string
	ClientSecret          string
	SubjectTokenAudiences string    `gorm:"type:text"`
	Enabled               bool      `gorm:"not null"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

type NodeModel struct {
	ID             string    `gorm:"primaryKey"`
	OrganizationID string    `gorm:"index;not null"`
	SiteID         string    `gorm:"index;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}
