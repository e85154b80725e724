package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
)

// WalkTenantActivity visits every activity entry of a tenant, kind by kind,
// in ascending id order, loading batchSize rows at a time.
func (s *ActivityService) WalkTenantActivity(ctx context.Context, tenantID uuid.UUID, batchSize int, fn func(domain.ActivityLogEntry) error) error {
	if tenantID == uuid.Nil {
		return domain.ErrInvalidSubject
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	for _, kind := range domain.Kinds() {
		afterID := int64(0)
		for {
			entries, err := s.reader.ListAfter(ctx, tenantID, kind, afterID, batchSize)
			if err != nil {
				return fmt.Errorf("list %s activity: %w", kind, err)
			}
			if len(entries) == 0 {
				break
			}
			for _, e := range entries {
				if err := fn(e); err != nil {
					return fmt.Errorf("visit %s activity %d: %w", kind, e.ID, err)
				}
				afterID = e.ID
			}
		}
	}
	return nil
}

type VerifyIssue struct {
	Kind    domain.SubjectKind
	EntryID int64
	Key     string
	Problem string
}

type VerifyReport struct {
	Checked int
	Issues  []VerifyIssue
}

func (r VerifyReport) OK() bool { return len(r.Issues) == 0 }

// Verify renders and schema-checks every stored entry of a tenant and
// reports the rows that would fail a page request. It never stops at the
// first bad row.
func (s *ActivityService) Verify(ctx context.Context, tenantID uuid.UUID, batchSize int) (VerifyReport, error) {
	var report VerifyReport
	err := s.WalkTenantActivity(ctx, tenantID, batchSize, func(e domain.ActivityLogEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Checked++
		key := events.KeyOf(e)
		if _, err := s.registry.Render(e); err != nil {
			report.Issues = append(report.Issues, VerifyIssue{Kind: e.Kind, EntryID: e.ID, Key: key.String(), Problem: err.Error()})
			return nil
		}
		if err := s.validator.Validate(key, e.Payload); err != nil {
			var violation *domain.ErrSchemaViolation
			if !errors.As(err, &violation) {
				return err
			}
			report.Issues = append(report.Issues, VerifyIssue{Kind: e.Kind, EntryID: e.ID, Key: key.String(), Problem: err.Error()})
		}
		return nil
	})
	if err != nil {
		return VerifyReport{}, err
	}
	return report, nil
}
