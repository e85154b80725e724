package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

// memStore is a transactional in-memory store: WithinTx works on a copy
// and swaps it in only when fn succeeds.
type memStore struct {
	mu       sync.Mutex
	subjects map[uuid.UUID]domain.Subject
	entries  []domain.ActivityLogEntry
	nextID   int64

	pageCalls  int
	existCalls int
	appendErr  error
}

func newMemStore() *memStore {
	return &memStore{subjects: map[uuid.UUID]domain.Subject{}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, uow ports.UnitOfWork) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: m, subjects: make(map[uuid.UUID]domain.Subject, len(m.subjects)), nextID: m.nextID}
	for k, v := range m.subjects {
		tx.subjects[k] = v
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.subjects = tx.subjects
	m.entries = append(m.entries, tx.entries...)
	m.nextID = tx.nextID
	return nil
}

func (m *memStore) Get(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return getSubject(m.subjects, tenantID, kind, id)
}

func (m *memStore) List(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, filter domain.SubjectListFilter) ([]domain.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subject
	for _, s := range m.subjects {
		if s.TenantID == tenantID && s.Kind == kind {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memStore) SubjectExists(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, subjectID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existCalls++
	_, err := getSubject(m.subjects, tenantID, kind, subjectID)
	return err == nil, nil
}

func (m *memStore) Page(_ context.Context, q domain.PageQuery) (int64, []domain.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	var all []domain.ActivityLogEntry
	for _, e := range m.entries {
		if e.TenantID == q.TenantID && e.Kind == q.Kind && e.SubjectID == q.SubjectID {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].OccurredAt.Equal(all[j].OccurredAt) {
			return all[i].OccurredAt.After(all[j].OccurredAt)
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	if q.Beyond(total) {
		return total, nil, nil
	}
	start := q.Offset()
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	return total, all[start:end], nil
}

func (m *memStore) ListAfter(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, afterID int64, limit int) ([]domain.ActivityLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActivityLogEntry
	for _, e := range m.entries {
		if e.TenantID == tenantID && e.Kind == kind && e.ID > afterID {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) entriesFor(subjectID uuid.UUID) []domain.ActivityLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ActivityLogEntry
	for _, e := range m.entries {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out
}

type memTx struct {
	store    *memStore
	subjects map[uuid.UUID]domain.Subject
	entries  []domain.ActivityLogEntry
	nextID   int64
}

func (t *memTx) Subjects() ports.SubjectWriter    { return memTxSubjects{t} }
func (t *memTx) Activities() ports.ActivityAppender { return memTxActivities{t} }

type memTxSubjects struct{ tx *memTx }

func (s memTxSubjects) Get(_ context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	return getSubject(s.tx.subjects, tenantID, kind, id)
}

func (s memTxSubjects) List(context.Context, uuid.UUID, domain.SubjectKind, domain.SubjectListFilter) ([]domain.Subject, error) {
	return nil, errors.New("not supported in tx")
}

func (s memTxSubjects) Insert(_ context.Context, subj domain.Subject) error {
	if _, ok := s.tx.subjects[subj.ID]; ok {
		return domain.ErrConflict
	}
	s.tx.subjects[subj.ID] = subj
	return nil
}

func (s memTxSubjects) Update(_ context.Context, subj domain.Subject) error {
	if _, ok := s.tx.subjects[subj.ID]; !ok {
		return domain.ErrNotFound
	}
	s.tx.subjects[subj.ID] = subj
	return nil
}

type memTxActivities struct{ tx *memTx }

func (a memTxActivities) Append(_ context.Context, e domain.ActivityLogEntry) (domain.ActivityLogEntry, error) {
	if a.tx.store.appendErr != nil {
		return domain.ActivityLogEntry{}, a.tx.store.appendErr
	}
	a.tx.nextID++
	e.ID = a.tx.nextID
	a.tx.entries = append(a.tx.entries, e)
	return e, nil
}

func getSubject(all map[uuid.UUID]domain.Subject, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	s, ok := all[id]
	if !ok || s.TenantID != tenantID || s.Kind != kind {
		return domain.Subject{}, domain.ErrNotFound
	}
	return s, nil
}
