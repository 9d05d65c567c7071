package db

import (
	"context"
	"errors"
	"time"

	"machineid/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenantKeyRepository struct {
	db *gorm.DB
}

func NewTenantKeyRepository(db *gorm.DB) *TenantKeyRepository {
	return &TenantKeyRepository{db: db}
}

func (r *TenantKeyRepository) GetActive(ctx context.Context, scope domain.TenantScope) (*domain.TenantIdentityKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TenantIdentityKeyModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND site_id = ? AND status = ?",
			scope.OrganizationID, scope.SiteID, string(domain.KeyStatusActive)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return identityKeyFromModel(model), nil
}

func (r *TenantKeyRepository) ListByScope(ctx context.Context, scope domain.TenantScope) ([]domain.TenantIdentityKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []TenantIdentityKeyModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND site_id = ?", scope.OrganizationID, scope.SiteID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.TenantIdentityKey, 0, len(models))
	for _, model := range models {
		out = append(out, *identityKeyFromModel(model))
	}
	return out, nil
}

// RotateIn inserts the new active key and retires the previously active
// key for the same scope in one transaction, so no observable state has
// zero or two active keys.
func (r *TenantKeyRepository) RotateIn(ctx context.Context, key domain.TenantIdentityKey) error {
	if r.db == nil {
		return errDBUnavailable
	}
	keyID := key.ID
	if keyID == "" {
		keyID = uuid.NewString()
	}
	createdAt := key.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := TenantIdentityKeyModel{
		ID:                  keyID,
		OrganizationID:      key.Scope.OrganizationID,
		SiteID:              key.Scope.SiteID,
		KID:                 key.KID,
		Alg:                 key.Alg,
		PublicKey:           copyBytes(key.PublicKey),
		EncryptedSigningKey: copyBytes(key.EncryptedSigningKey),
		MasterKeyID:         key.MasterKeyID,
		Status:              string(domain.KeyStatusActive),
		CreatedAt:           createdAt,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		retiredAt := createdAt
		err := tx.Model(&TenantIdentityKeyModel{}).
			Where("organization_id = ? AND site_id = ? AND status = ?",
				key.Scope.OrganizationID, key.Scope.SiteID, string(domain.KeyStatusActive)).
			Updates(map[string]any{
				"status":     string(domain.KeyStatusRetired),
				"retired_at": retiredAt,
			}).Error
		if err != nil {
			return err
		}
		return tx.Create(&model).Error
	})
}

func identityKeyFromModel(model TenantIdentityKeyModel) *domain.TenantIdentityKey {
	return &domain.TenantIdentityKey{
		ID: model.ID,
		Scope: domain.TenantScope{
			OrganizationID: model.OrganizationID,
			SiteID:         model.SiteID,
		},
		KID:                 model.KID,
		Alg:                 model.Alg,
		PublicKey:           copyBytes(model.PublicKey),
		EncryptedSigningKey: copyBytes(model.EncryptedSigningKey),
		MasterKeyID:         model.MasterKeyID,
		Status:              domain.KeyStatus(model.Status),
		CreatedAt:           model.CreatedAt,
		RetiredAt:           model.RetiredAt,
	}
}
