package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"machineid/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DelegationConfigRepository struct {
	db *gorm.DB
}

func NewDelegationConfigRepository(db *gorm.DB) *DelegationConfigRepository {
	return &DelegationConfigRepository{db: db}
}

func (r *DelegationConfigRepository) Get(ctx context.Context, scope domain.TenantScope) (*domain.TokenDelegationConfig, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model TokenDelegationConfigModel
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND site_id = ?", scope.OrganizationID, scope.SiteID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return delegationFromModel(model), nil
}

// Put fully replaces the scope's delegation config. Upsert keyed on the
// scope makes the operation idempotent.
func (r *DelegationConfigRepository) Put(ctx context.Context, cfg domain.TokenDelegationConfig) error {
	if r.db == nil {
		return errDBUnavailable
	}
	now := time.Now().UTC()
	model := TokenDelegationConfigModel{
		ID:                    uuid.NewString(),
		OrganizationID:        cfg.Scope.OrganizationID,
		SiteID:                cfg.Scope.SiteID,
		TokenEndpoint:         cfg.TokenEndpoint,
		AuthMethod:            string(cfg.AuthMethod),
		ClientID:              cfg.ClientID,
		ClientSecret:          cfg.ClientSecret,
		SubjectTokenAudiences: strings.Join(cfg.SubjectTokenAudiences, " "),
		Enabled:               cfg.Enabled,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "organization_id"}, {Name: "site_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"token_endpoint", "auth_method", "client_id", "client_secret",
			"subject_token_audiences", "enabled", "updated_at",
		}),
	}).Create(&model).Error
}

func (r *DelegationConfigRepository) Delete(ctx context.Context, scope domain.TenantScope) error {
	if r.db == nil {
		return errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Where("organization_id = ? AND site_id = ?", scope.OrganizationID, scope.SiteID).
		Delete(&TokenDelegationConfigModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func delegationFromModel(model TokenDelegationConfigModel) *domain.TokenDelegationConfig {
	var audiences []string
	if model.SubjectTokenAudiences != "" {
		audiences = strings.Fields(model.SubjectTokenAudiences)
	}
	return &domain.TokenDelegationConfig{
		Scope: domain.TenantScope{
			OrganizationID: model.OrganizationID,
			SiteID:         model.SiteID,
		},
		TokenEndpoint:         model.TokenEndpoint,
		AuthMethod:            domain.AuthMethod(model.AuthMethod),
		ClientID:              model.ClientID,
		ClientSecret:          model.ClientSecret,
		SubjectTokenAudiences: audiences,
		Enabled:               model.Enabled,
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}
}
