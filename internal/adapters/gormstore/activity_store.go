package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/activitylog/internal/adapters/gormstore/gormdb"
	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

// ActivityStore reads the per-kind activity tables.
type ActivityStore struct {
	db *gormdb.DB
}

func NewActivityStore(db *gormdb.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) SubjectExists(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, subjectID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Model(&subjectModel{}).
			Where("id = ? AND tenant_id = ? AND kind = ?", subjectID, tenantID, string(kind)).
			Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("subject exists: %w", err)
	}
	return count > 0, nil
}

func (s *ActivityStore) Page(ctx context.Context, q domain.PageQuery) (int64, []domain.ActivityLogEntry, error) {
	table := q.Kind.ActivityTable()
	if table == "" {
		return 0, nil, domain.ErrInvalidKind
	}

	var total int64
	var rows []activityModel
	err := s.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		scope := func() *gorm.DB {
			return tx.Table(table).Where("tenant_id = ? AND subject_id = ?", q.TenantID, q.SubjectID)
		}
		if err := scope().Count(&total).Error; err != nil {
			return err
		}
		if q.Beyond(total) {
			return nil
		}
		return scope().
			Order("date DESC").Order("id DESC").
			Offset(q.Offset()).Limit(q.PageSize).
			Find(&rows).Error
	})
	if err != nil {
		return 0, nil, fmt.Errorf("page %s: %w", table, err)
	}

	entries := make([]domain.ActivityLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain(q.Kind))
	}
	return total, entries, nil
}

func (s *ActivityStore) ListAfter(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, afterID int64, limit int) ([]domain.ActivityLogEntry, error) {
	table := kind.ActivityTable()
	if table == "" {
		return nil, domain.ErrInvalidKind
	}
	var rows []activityModel
	err := s.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Table(table).
			Where("tenant_id = ? AND id > ?", tenantID, afterID).
			Order("id ASC").Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	entries := make([]domain.ActivityLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain(kind))
	}
	return entries, nil
}

var _ ports.ActivityReader = (*ActivityStore)(nil)

// txActivities appends to the activity log and queues the matching outbox
// envelope in the same transaction.
type txActivities struct {
	tx *gorm.DB
}

func (a txActivities) Append(_ context.Context, entry domain.ActivityLogEntry) (domain.ActivityLogEntry, error) {
	table := entry.Kind.ActivityTable()
	if table == "" {
		return domain.ActivityLogEntry{}, domain.ErrInvalidKind
	}
	row := activityModel{
		TenantID:  entry.TenantID,
		SubjectID: entry.SubjectID,
		Date:      entry.OccurredAt.UTC(),
		EventType: uint16(entry.EventType),
		Revision:  entry.Revision,
		Event:     string(entry.Payload),
	}
	if err := a.tx.Table(table).Create(&row).Error; err != nil {
		return domain.ActivityLogEntry{}, fmt.Errorf("insert %s: %w", table, err)
	}
	entry.ID = row.ID
	entry.OccurredAt = row.Date

	if err := insertOutbox(a.tx, entry); err != nil {
		return domain.ActivityLogEntry{}, err
	}
	return entry, nil
}

func insertOutbox(tx *gorm.DB, entry domain.ActivityLogEntry) error {
	envelope := domain.NewEnvelope(uuid.NewString(), entry)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	now := time.Now().UTC()
	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      envelope.TenantID,
		Topic:         envelope.Topic(),
		PayloadJSON:   string(payload),
		Status:        domain.OutboxPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
