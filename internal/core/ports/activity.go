package ports

import (
	"context"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

// ActivityAppender writes log entries. It is only ever handed out inside a
// write transaction, so an append commits or rolls back with the mutation
// that caused it.
type ActivityAppender interface {
	Append(ctx context.Context, entry domain.ActivityLogEntry) (domain.ActivityLogEntry, error)
}

type ActivityReader interface {
	SubjectExists(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, subjectID uuid.UUID) (bool, error)
	// Page counts the subject's entries and loads one window of them,
	// newest first, within a single read transaction.
	Page(ctx context.Context, q domain.PageQuery) (total int64, entries []domain.ActivityLogEntry, err error)
	// ListAfter walks a tenant's entries of one kind in ascending id order.
	ListAfter(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, afterID int64, limit int) ([]domain.ActivityLogEntry, error)
}

// ActivityMetrics observes the activity subsystem. Implementations must be
// safe for concurrent use.
type ActivityMetrics interface {
	EntryRecorded(kind domain.SubjectKind, eventType domain.EventType)
	PageRendered(kind domain.SubjectKind, items int)
	RenderFailed(kind domain.SubjectKind)
}

type NopActivityMetrics struct{}

func (NopActivityMetrics) EntryRecorded(domain.SubjectKind, domain.EventType) {}
func (NopActivityMetrics) PageRendered(domain.SubjectKind, int)              {}
func (NopActivityMetrics) RenderFailed(domain.SubjectKind)                   {}
