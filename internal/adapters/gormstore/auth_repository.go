package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

type APIKeyRepository struct {
	db *gormdb.DB
}

func NewAPIKeyRepository(db *gormdb.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}

	return domain.APIKey{
		TokenHash:  model.TokenHash,
		TenantID:   model.TenantID,
		Name:       model.Name,
		ActorID:    model.ActorID,
		ActorName:  model.ActorName,
		ActorRoles: domain.SplitRoles(model.ActorRoles),
		Active:     model.Active,
		CreatedAt:  model.CreatedAt,
	}, nil
}

func (r *APIKeyRepository) Upsert(ctx context.Context, key domain.APIKey) error {
	model := apiKeyModel{
		TokenHash:  key.TokenHash,
		TenantID:   key.TenantID,
		Name:       key.Name,
		ActorID:    key.ActorID,
		ActorName:  key.ActorName,
		ActorRoles: strings.Join(key.ActorRoles, ","),
		Active:     key.Active,
		CreatedAt:  key.CreatedAt.UTC(),
	}

	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "name", "actor_id", "actor_name", "actor_roles", "active"}),
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}
