package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

var testActor = domain.Actor{ID: uuid.MustParse("7d1b6d4e-2f7a-4c55-9a43-3c1ad7b1f001"), FullName: "Jane Doe", Roles: []string{"Admin"}}

type metricsStub struct {
	recorded     int
	rendered     int
	renderFailed int
}

func (m *metricsStub) EntryRecorded(domain.SubjectKind, domain.EventType) { m.recorded++ }
func (m *metricsStub) PageRendered(domain.SubjectKind, int)              { m.rendered++ }
func (m *metricsStub) RenderFailed(domain.SubjectKind)                   { m.renderFailed++ }

func newActivityService(t *testing.T, store *memStore) (*ActivityService, *metricsStub) {
	t.Helper()
	registry, err := events.DefaultRegistry()
	require.NoError(t, err)
	m := &metricsStub{}
	return NewActivityService(registry, store, m), m
}

func seedSubject(t *testing.T, store *memStore, tenantID uuid.UUID, kind domain.SubjectKind, name string) domain.Subject {
	t.Helper()
	s := domain.Subject{TenantID: tenantID, Kind: kind, ID: uuid.New(), Name: name, Active: true}
	store.subjects[s.ID] = s
	return s
}

func record(t *testing.T, svc *ActivityService, store *memStore, subj domain.Subject, p events.Payload) domain.ActivityLogEntry {
	t.Helper()
	var out domain.ActivityLogEntry
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		var err error
		out, err = svc.RecordEvent(ctx, uow.Activities(), subj.TenantID, subj.ID, subj.Kind, p)
		return err
	}))
	return out
}

func TestRecordEventAppendsValidatedEntry(t *testing.T) {
	store := newMemStore()
	svc, m := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entry := record(t, svc, store, subj, events.Deactivated{Header: events.NewHeader(testActor, at)})

	require.Equal(t, int64(1), entry.ID)
	require.Equal(t, domain.EventDeactivated, entry.EventType)
	require.Equal(t, uint32(1), entry.Revision)
	require.True(t, at.Equal(entry.OccurredAt))
	require.Equal(t, 1, m.recorded)

	var body map[string]any
	require.NoError(t, json.Unmarshal(entry.Payload, &body))
	require.Equal(t, "Jane Doe", body["actorFullName"])
}

func TestRecordEventRejectsEventNotAllowedForKind(t *testing.T) {
	store := newMemStore()
	svc, m := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindAccount, "Acme")

	err := store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		_, err := svc.RecordEvent(ctx, uow.Activities(), subj.TenantID, subj.ID, subj.Kind, events.StateIDsAdded{Header: events.NewHeader(testActor, time.Now()), Codes: []string{"NY-1"}})
		return err
	})
	require.ErrorIs(t, err, domain.ErrEventNotAllowed)
	require.Empty(t, store.entriesFor(subj.ID))
	require.Zero(t, m.recorded)
}

func TestRecordEventRejectsLegacyRevision(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindEntity, "Acme")

	err := store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		_, err := svc.RecordEvent(ctx, uow.Activities(), subj.TenantID, subj.ID, subj.Kind, events.CreatedV1{Header: events.NewHeader(testActor, time.Now()), Title: "Acme"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrEventNotAllowed)
}

func TestRecordEventRejectsMissingActorAndTime(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")

	err := store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		_, err := svc.RecordEvent(ctx, uow.Activities(), subj.TenantID, subj.ID, subj.Kind, events.Deactivated{})
		return err
	})
	var violation *domain.ErrSchemaViolation
	require.ErrorAs(t, err, &violation)

	err = store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		_, err := svc.RecordEvent(ctx, uow.Activities(), uuid.Nil, subj.ID, subj.Kind, events.Deactivated{Header: events.NewHeader(testActor, time.Now())})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidSubject)
}

func TestRecordEventAppendFailureRollsBackCaller(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	store.appendErr = errors.New("disk full")

	subj := domain.Subject{TenantID: tenantA, Kind: domain.KindContact, ID: uuid.New(), Name: "Jane", Active: true}
	err := store.WithinTx(context.Background(), func(ctx context.Context, uow ports.UnitOfWork) error {
		if err := uow.Subjects().Insert(ctx, subj); err != nil {
			return err
		}
		_, err := svc.RecordEvent(ctx, uow.Activities(), subj.TenantID, subj.ID, subj.Kind, events.Created{Header: events.NewHeader(testActor, time.Now()), Name: "Jane"})
		return err
	})
	require.ErrorContains(t, err, "disk full")
	_, getErr := store.Get(context.Background(), tenantA, domain.KindContact, subj.ID)
	require.ErrorIs(t, getErr, domain.ErrNotFound)
}

func TestGetActivityPageValidatesBeforeStorage(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)

	for _, tc := range []struct{ page, size int }{{0, 10}, {1, 0}, {-1, 5}, {1, domain.MaxPageSize + 1}} {
		_, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindContact, uuid.New(), tc.page, tc.size)
		require.ErrorIs(t, err, domain.ErrInvalidPage)
	}
	_, err := svc.GetActivityPage(context.Background(), tenantA, domain.SubjectKind("planet"), uuid.New(), 1, 10)
	require.ErrorIs(t, err, domain.ErrInvalidKind)

	require.Zero(t, store.existCalls)
	require.Zero(t, store.pageCalls)
}

func TestGetActivityPageUnknownOrForeignSubjectIsNotFound(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")

	_, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindContact, uuid.New(), 1, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetActivityPage(context.Background(), uuid.New(), domain.KindContact, subj.ID, 1, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetActivityPage(context.Background(), tenantA, domain.KindAccount, subj.ID, 1, 10)
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.Zero(t, store.pageCalls)
}

func TestGetActivityPagePaginatesNewestFirst(t *testing.T) {
	store := newMemStore()
	svc, m := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindEntity, "Acme")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		record(t, svc, store, subj, events.StateIDsAdded{Header: events.NewHeader(testActor, base.Add(time.Duration(i)*time.Hour)), Codes: []string{"S-" + string(rune('A'+i))}})
	}

	page, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindEntity, subj.ID, 1, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(3), page.PageCount)
	require.Len(t, page.Items, 2)
	require.Equal(t, "State ID(s) S-E added", page.Items[0].Message)
	require.Equal(t, "State ID(s) S-D added", page.Items[1].Message)
	require.Equal(t, "Jane Doe", page.Items[0].ActorFullName)

	page, err = svc.GetActivityPage(context.Background(), tenantA, domain.KindEntity, subj.ID, 3, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, "State ID(s) S-A added", page.Items[0].Message)

	page, err = svc.GetActivityPage(context.Background(), tenantA, domain.KindEntity, subj.ID, 9, 2)
	require.NoError(t, err)
	require.Equal(t, uint32(3), page.PageCount)
	require.Empty(t, page.Items)
	require.Equal(t, 3, m.rendered)
}

func TestGetActivityPageTiesBreakOnNewestID(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	record(t, svc, store, subj, events.Deactivated{Header: events.NewHeader(testActor, at)})
	record(t, svc, store, subj, events.Activated{Header: events.NewHeader(testActor, at)})

	page, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindContact, subj.ID, 1, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Contact activated", "Contact deactivated"}, []string{page.Items[0].Message, page.Items[1].Message})
}

func TestGetActivityPageEmptyLog(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindTeam, "Ops")

	page, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindTeam, subj.ID, 1, 10)
	require.NoError(t, err)
	require.Zero(t, page.PageCount)
	require.Empty(t, page.Items)
}

func TestGetActivityPageUnresolvedEntryFailsWholePage(t *testing.T) {
	store := newMemStore()
	svc, m := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")
	record(t, svc, store, subj, events.Deactivated{Header: events.NewHeader(testActor, time.Now())})
	store.entries[0].Revision = 42

	_, err := svc.GetActivityPage(context.Background(), tenantA, domain.KindContact, subj.ID, 1, 10)
	var unresolved *domain.UnresolvedEventError
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, 1, m.renderFailed)
}

func TestGetActivityPageHonoursCancellation(t *testing.T) {
	store := newMemStore()
	svc, _ := newActivityService(t, store)
	subj := seedSubject(t, store, tenantA, domain.KindContact, "Jane")
	record(t, svc, store, subj, events.Deactivated{Header: events.NewHeader(testActor, time.Now())})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.GetActivityPage(ctx, tenantA, domain.KindContact, subj.ID, 1, 10)
	require.ErrorIs(t, err, context.Canceled)
}
