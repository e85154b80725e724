package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

// SubjectStore serves subject reads outside a write transaction.
type SubjectStore struct {
	db *gormdb.DB
}

func NewSubjectStore(db *gormdb.DB) *SubjectStore {
	return &SubjectStore{db: db}
}

func (s *SubjectStore) Get(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	var out domain.Subject
	err := s.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		var err error
		out, err = getSubject(tx.DB, tenantID, kind, id, false)
		return err
	})
	return out, err
}

func (s *SubjectStore) List(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, filter domain.SubjectListFilter) ([]domain.Subject, error) {
	var rows []subjectModel
	err := s.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		query := tx.Where("tenant_id = ? AND kind = ?", tenantID, string(kind))
		if filter.After != uuid.Nil {
			query = query.Where("id > ?", filter.After)
		}
		return query.Order("id ASC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	result := make([]domain.Subject, 0, len(rows))
	for _, row := range rows {
		subj, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, subj)
	}
	return result, nil
}

var _ ports.SubjectReader = (*SubjectStore)(nil)

// txSubjects is the write side bound to one transaction.
type txSubjects struct {
	tx   *gorm.DB
	lock bool
}

func (s txSubjects) Get(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	return getSubject(s.tx, tenantID, kind, id, s.lock)
}

func (s txSubjects) List(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, filter domain.SubjectListFilter) ([]domain.Subject, error) {
	var rows []subjectModel
	query := s.tx.Where("tenant_id = ? AND kind = ?", tenantID, string(kind))
	if filter.After != uuid.Nil {
		query = query.Where("id > ?", filter.After)
	}
	if err := query.Order("id ASC").Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	result := make([]domain.Subject, 0, len(rows))
	for _, row := range rows {
		subj, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, subj)
	}
	return result, nil
}

func (s txSubjects) Insert(_ context.Context, subj domain.Subject) error {
	model, err := subjectToModel(subj)
	if err != nil {
		return err
	}
	if err := s.tx.Create(&model).Error; err != nil {
		return fmt.Errorf("insert subject: %w", err)
	}
	return nil
}

func (s txSubjects) Update(_ context.Context, subj domain.Subject) error {
	model, err := subjectToModel(subj)
	if err != nil {
		return err
	}
	res := s.tx.Model(&subjectModel{}).
		Where("id = ? AND tenant_id = ? AND kind = ?", model.ID, model.TenantID, model.Kind).
		Updates(map[string]any{
			"name":            model.Name,
			"active":          model.Active,
			"attributes_json": model.AttributesJSON,
			"state_ids_json":  model.StateIDsJSON,
			"roles_json":      model.RolesJSON,
			"links_json":      model.LinksJSON,
			"updated_at":      model.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update subject: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func getSubject(tx *gorm.DB, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID, lock bool) (domain.Subject, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row subjectModel
	err := query.Where("id = ? AND tenant_id = ? AND kind = ?", id, tenantID, string(kind)).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subject{}, domain.ErrNotFound
		}
		return domain.Subject{}, fmt.Errorf("get subject: %w", err)
	}
	return row.toDomain()
}
