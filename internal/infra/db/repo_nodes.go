package db

import (
	"context"
	"errors"
	"time"

	"machineid/internal/domain"

	"gorm.io/gorm"
)

type NodeRepository struct {
	db *gorm.DB
}

func NewNodeRepository(db *gorm.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

func (r *NodeRepository) Create(ctx context.Context, node domain.Node) error {
	if r.db == nil {
		return errDBUnavailable
	}
	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := NodeModel{
		ID:             node.ID,
		OrganizationID: node.Scope.OrganizationID,
		SiteID:         node.Scope.SiteID,
		CreatedAt:      createdAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *NodeRepository) GetByID(ctx context.Context, nodeID string) (*domain.Node, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model NodeModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", nodeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownNode
		}
		return nil, err
	}
	return &domain.Node{
		ID: model.ID,
		Scope: domain.TenantScope{
			OrganizationID: model.OrganizationID,
			SiteID:         model.SiteID,
		},
		CreatedAt: model.CreatedAt,
	}, nil
}
