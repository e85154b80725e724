package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

// ActivityService is the only writer and reader of activity logs.
type ActivityService struct {
	registry  *events.Registry
	validator *events.SchemaValidator
	reader    ports.ActivityReader
	metrics   ports.ActivityMetrics
}

func NewActivityService(registry *events.Registry, reader ports.ActivityReader, metrics ports.ActivityMetrics) *ActivityService {
	if metrics == nil {
		metrics = ports.NopActivityMetrics{}
	}
	return &ActivityService{
		registry:  registry,
		validator: events.NewSchemaValidator(registry),
		reader:    reader,
		metrics:   metrics,
	}
}

func (s *ActivityService) Registry() *events.Registry {
	return s.registry
}

// RecordEvent serializes payload and appends it through tx, the appender
// of the caller's write transaction. Every failure is returned so the
// caller's mutation rolls back with it.
func (s *ActivityService) RecordEvent(ctx context.Context, tx ports.ActivityAppender, tenantID, subjectID uuid.UUID, kind domain.SubjectKind, payload events.Payload) (domain.ActivityLogEntry, error) {
	if tenantID == uuid.Nil || subjectID == uuid.Nil {
		return domain.ActivityLogEntry{}, domain.ErrInvalidSubject
	}
	if err := kind.Validate(); err != nil {
		return domain.ActivityLogEntry{}, err
	}
	if payload == nil {
		return domain.ActivityLogEntry{}, errors.New("activity payload is required")
	}

	eventType := payload.EventType()
	if !domain.EventAllowed(kind, eventType) {
		return domain.ActivityLogEntry{}, fmt.Errorf("%w: %s on %s", domain.ErrEventNotAllowed, eventType, kind)
	}

	key := events.Key{Kind: kind, EventType: eventType, Revision: payload.Revision()}
	if _, ok := s.registry.Resolve(key); !ok {
		return domain.ActivityLogEntry{}, &domain.UnresolvedEventError{Kind: kind, EventType: eventType, Revision: key.Revision}
	}
	if current, _ := s.registry.Current(kind, eventType); current != key.Revision {
		return domain.ActivityLogEntry{}, fmt.Errorf("%w: %s revision %d is superseded by %d", domain.ErrEventNotAllowed, eventType, key.Revision, current)
	}

	meta := payload.Meta()
	if meta.OccurredAt.IsZero() {
		return domain.ActivityLogEntry{}, &domain.ErrSchemaViolation{Errors: []string{"occurredAt is required"}}
	}

	raw, err := events.Encode(payload)
	if err != nil {
		return domain.ActivityLogEntry{}, err
	}
	if err := s.validator.Validate(key, raw); err != nil {
		return domain.ActivityLogEntry{}, err
	}

	entry, err := tx.Append(ctx, domain.ActivityLogEntry{
		TenantID:   tenantID,
		SubjectID:  subjectID,
		Kind:       kind,
		EventType:  eventType,
		Revision:   key.Revision,
		OccurredAt: meta.OccurredAt.UTC(),
		Payload:    raw,
	})
	if err != nil {
		return domain.ActivityLogEntry{}, fmt.Errorf("append %s activity: %w", domain.EventName(kind, eventType), err)
	}
	s.metrics.EntryRecorded(kind, eventType)
	return entry, nil
}

// GetActivityPage renders one page of a subject's log, newest first.
// Validation happens before any storage access; a subject outside the
// caller's tenant is reported as domain.ErrNotFound.
func (s *ActivityService) GetActivityPage(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, subjectID uuid.UUID, page, pageSize int) (domain.ActivityPage, error) {
	q := domain.PageQuery{TenantID: tenantID, Kind: kind, SubjectID: subjectID, Page: page, PageSize: pageSize}
	if err := q.Validate(); err != nil {
		return domain.ActivityPage{}, err
	}
	if tenantID == uuid.Nil || subjectID == uuid.Nil {
		return domain.ActivityPage{}, domain.ErrNotFound
	}

	exists, err := s.reader.SubjectExists(ctx, tenantID, kind, subjectID)
	if err != nil {
		return domain.ActivityPage{}, fmt.Errorf("check subject: %w", err)
	}
	if !exists {
		return domain.ActivityPage{}, domain.ErrNotFound
	}

	total, entries, err := s.reader.Page(ctx, q)
	if err != nil {
		return domain.ActivityPage{}, fmt.Errorf("load activity page: %w", err)
	}

	items := make([]domain.DisplayActivityItem, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return domain.ActivityPage{}, err
		}
		item, err := s.registry.Render(entry)
		if err != nil {
			s.metrics.RenderFailed(kind)
			return domain.ActivityPage{}, fmt.Errorf("render activity %d: %w", entry.ID, err)
		}
		items = append(items, item)
	}

	s.metrics.PageRendered(kind, len(items))
	return domain.ActivityPage{PageCount: domain.PageCount(total, pageSize), Items: items}, nil
}
