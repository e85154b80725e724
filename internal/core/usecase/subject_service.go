package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
	"github.com/atvirokodosprendimai/activitylog/internal/core/events"
	"github.com/atvirokodosprendimai/activitylog/internal/core/ports"
)

const defaultListLimit = 100

type SubjectInput struct {
	Name       string
	Attributes map[string]string
}

// SubjectService owns every mutation of a subject. Each mutation and its
// activity entry share one write transaction.
type SubjectService struct {
	tx       ports.Transactor
	reader   ports.SubjectReader
	activity *ActivityService
	now      func() time.Time
}

func NewSubjectService(tx ports.Transactor, reader ports.SubjectReader, activity *ActivityService) *SubjectService {
	return &SubjectService{
		tx:       tx,
		reader:   reader,
		activity: activity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *SubjectService) Get(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	if err := kind.Validate(); err != nil {
		return domain.Subject{}, err
	}
	if tenantID == uuid.Nil || id == uuid.Nil {
		return domain.Subject{}, domain.ErrNotFound
	}
	return s.reader.Get(ctx, tenantID, kind, id)
}

func (s *SubjectService) List(ctx context.Context, tenantID uuid.UUID, kind domain.SubjectKind, filter domain.SubjectListFilter) ([]domain.Subject, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > domain.MaxPageSize {
		filter.Limit = defaultListLimit
	}
	return s.reader.List(ctx, tenantID, kind, filter)
}

func (s *SubjectService) Create(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, in SubjectInput) (domain.Subject, error) {
	if err := actor.Validate(); err != nil {
		return domain.Subject{}, err
	}
	now := s.now()
	subj := domain.Subject{
		TenantID:   tenantID,
		Kind:       kind,
		ID:         uuid.New(),
		Name:       strings.TrimSpace(in.Name),
		Active:     true,
		Attributes: cleanAttributes(in.Attributes),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := subj.Validate(); err != nil {
		return domain.Subject{}, err
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow ports.UnitOfWork) error {
		if err := uow.Subjects().Insert(ctx, subj); err != nil {
			return err
		}
		_, err := s.activity.RecordEvent(ctx, uow.Activities(), tenantID, subj.ID, kind, events.Created{
			Header:        events.NewHeader(actor, now),
			Name:          subj.Name,
			CurrentValues: subj.Snapshot(),
		})
		return err
	})
	if err != nil {
		return domain.Subject{}, err
	}
	return subj, nil
}

func (s *SubjectService) Update(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, id uuid.UUID, in SubjectInput) (domain.Subject, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Subject{}, domain.ErrInvalidSubject
	}
	return s.mutate(ctx, tenantID, actor, kind, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		previous := subj.Snapshot()
		subj.Name = name
		subj.Attributes = cleanAttributes(in.Attributes)
		return events.Updated{Header: h, PreviousValues: previous, CurrentValues: subj.Snapshot()}, nil
	})
}

func (s *SubjectService) Deactivate(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	return s.mutateAny(ctx, tenantID, actor, kind, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		if !subj.Active {
			return nil, domain.ErrInactive
		}
		subj.Active = false
		return events.Deactivated{Header: h}, nil
	})
}

func (s *SubjectService) Activate(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, id uuid.UUID) (domain.Subject, error) {
	return s.mutateAny(ctx, tenantID, actor, kind, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		if subj.Active {
			return nil, domain.ErrAlreadyActive
		}
		subj.Active = true
		return events.Activated{Header: h}, nil
	})
}

// LinkContact relates two contacts. Both sides get the link and both logs
// get an entry naming the other contact.
func (s *SubjectService) LinkContact(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id, relatedID uuid.UUID) (domain.Subject, error) {
	return s.relinkContact(ctx, tenantID, actor, id, relatedID, true)
}

func (s *SubjectService) UnlinkContact(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id, relatedID uuid.UUID) (domain.Subject, error) {
	return s.relinkContact(ctx, tenantID, actor, id, relatedID, false)
}

func (s *SubjectService) relinkContact(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id, relatedID uuid.UUID, link bool) (domain.Subject, error) {
	if relatedID == uuid.Nil || relatedID == id {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	if err := actor.Validate(); err != nil {
		return domain.Subject{}, err
	}

	var result domain.Subject
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow ports.UnitOfWork) error {
		subj, err := uow.Subjects().Get(ctx, tenantID, domain.KindContact, id)
		if err != nil {
			return err
		}
		related, err := uow.Subjects().Get(ctx, tenantID, domain.KindContact, relatedID)
		if err != nil {
			return err
		}
		if !subj.Active || !related.Active {
			return domain.ErrInactive
		}
		if link && subj.HasLink(relatedID) {
			return fmt.Errorf("%w: contacts already linked", domain.ErrConflict)
		}
		if !link && !subj.HasLink(relatedID) {
			return fmt.Errorf("%w: contacts not linked", domain.ErrConflict)
		}

		now := s.now()
		h := events.NewHeader(actor, now)
		for _, side := range []struct {
			self  *domain.Subject
			other domain.Subject
		}{{&subj, related}, {&related, subj}} {
			if link {
				side.self.Links = append(side.self.Links, side.other.ID)
			} else {
				side.self.Links = removeID(side.self.Links, side.other.ID)
			}
			side.self.UpdatedAt = now
			if err := uow.Subjects().Update(ctx, *side.self); err != nil {
				return err
			}
			var payload events.Payload = events.ContactUnlinked{Header: h, RelatedNames: []string{side.other.Name}}
			if link {
				payload = events.ContactLinked{Header: h, RelatedNames: []string{side.other.Name}}
			}
			if _, err := s.activity.RecordEvent(ctx, uow.Activities(), tenantID, side.self.ID, domain.KindContact, payload); err != nil {
				return err
			}
		}
		result = subj
		return nil
	})
	if err != nil {
		return domain.Subject{}, err
	}
	return result, nil
}

func (s *SubjectService) AddStateIDs(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, codes []string) (domain.Subject, error) {
	codes = normaliseCodes(codes)
	if len(codes) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindEntity, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		added := missing(subj.StateIDs, codes)
		if len(added) == 0 {
			return nil, fmt.Errorf("%w: state ids already present", domain.ErrConflict)
		}
		subj.StateIDs = append(subj.StateIDs, added...)
		return events.StateIDsAdded{Header: h, Codes: added}, nil
	})
}

func (s *SubjectService) RemoveStateIDs(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, codes []string) (domain.Subject, error) {
	codes = normaliseCodes(codes)
	if len(codes) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindEntity, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		removed := present(subj.StateIDs, codes)
		if len(removed) == 0 {
			return nil, fmt.Errorf("%w: state ids not present", domain.ErrConflict)
		}
		subj.StateIDs = without(subj.StateIDs, removed)
		return events.StateIDsRemoved{Header: h, Codes: removed}, nil
	})
}

func (s *SubjectService) AssignRoles(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, roles []string) (domain.Subject, error) {
	roles = normaliseNames(roles)
	if len(roles) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindUser, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		added := missing(subj.Roles, roles)
		if len(added) == 0 {
			return nil, fmt.Errorf("%w: roles already assigned", domain.ErrConflict)
		}
		subj.Roles = append(subj.Roles, added...)
		return events.RolesAssigned{Header: h, Roles: added, Count: len(added)}, nil
	})
}

func (s *SubjectService) RevokeRoles(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, id uuid.UUID, roles []string) (domain.Subject, error) {
	roles = normaliseNames(roles)
	if len(roles) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindUser, id, func(_ context.Context, _ ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		revoked := present(subj.Roles, roles)
		if len(revoked) == 0 {
			return nil, fmt.Errorf("%w: roles not assigned", domain.ErrConflict)
		}
		subj.Roles = without(subj.Roles, revoked)
		return events.RolesRevoked{Header: h, Roles: revoked, Count: len(revoked)}, nil
	})
}

// AddMembers adds users of the same tenant to a team. Unknown user ids
// fail the whole call.
func (s *SubjectService) AddMembers(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, teamID uuid.UUID, userIDs []uuid.UUID) (domain.Subject, error) {
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindTeam, teamID, func(ctx context.Context, uow ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		var names []string
		for _, uid := range userIDs {
			if subj.HasLink(uid) {
				continue
			}
			user, err := uow.Subjects().Get(ctx, tenantID, domain.KindUser, uid)
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", uid, err)
			}
			subj.Links = append(subj.Links, uid)
			names = append(names, user.Name)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: users already members", domain.ErrConflict)
		}
		return events.MembersAdded{Header: h, RelatedNames: names, Count: len(names)}, nil
	})
}

func (s *SubjectService) RemoveMembers(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, teamID uuid.UUID, userIDs []uuid.UUID) (domain.Subject, error) {
	userIDs = uniqueIDs(userIDs)
	if len(userIDs) == 0 {
		return domain.Subject{}, domain.ErrInvalidInput
	}
	return s.mutate(ctx, tenantID, actor, domain.KindTeam, teamID, func(ctx context.Context, uow ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		var names []string
		for _, uid := range userIDs {
			if !subj.HasLink(uid) {
				continue
			}
			name := uid.String()
			if user, err := uow.Subjects().Get(ctx, tenantID, domain.KindUser, uid); err == nil {
				name = user.Name
			}
			subj.Links = removeID(subj.Links, uid)
			names = append(names, name)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("%w: users are not members", domain.ErrConflict)
		}
		return events.MembersRemoved{Header: h, RelatedNames: names, Count: len(names)}, nil
	})
}

type mutation func(ctx context.Context, uow ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error)

// mutate applies fn to an active subject.
func (s *SubjectService) mutate(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, id uuid.UUID, fn mutation) (domain.Subject, error) {
	return s.mutateAny(ctx, tenantID, actor, kind, id, func(ctx context.Context, uow ports.UnitOfWork, subj *domain.Subject, h events.Header) (events.Payload, error) {
		if !subj.Active {
			return nil, domain.ErrInactive
		}
		return fn(ctx, uow, subj, h)
	})
}

func (s *SubjectService) mutateAny(ctx context.Context, tenantID uuid.UUID, actor domain.Actor, kind domain.SubjectKind, id uuid.UUID, fn mutation) (domain.Subject, error) {
	if err := kind.Validate(); err != nil {
		return domain.Subject{}, err
	}
	if err := actor.Validate(); err != nil {
		return domain.Subject{}, err
	}
	if tenantID == uuid.Nil || id == uuid.Nil {
		return domain.Subject{}, domain.ErrNotFound
	}

	var result domain.Subject
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow ports.UnitOfWork) error {
		subj, err := uow.Subjects().Get(ctx, tenantID, kind, id)
		if err != nil {
			return err
		}
		now := s.now()
		payload, err := fn(ctx, uow, &subj, events.NewHeader(actor, now))
		if err != nil {
			return err
		}
		subj.UpdatedAt = now
		if err := uow.Subjects().Update(ctx, subj); err != nil {
			return err
		}
		if _, err := s.activity.RecordEvent(ctx, uow.Activities(), tenantID, id, kind, payload); err != nil {
			return err
		}
		result = subj
		return nil
	})
	if err != nil {
		return domain.Subject{}, err
	}
	return result, nil
}

func cleanAttributes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" || k == "name" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// normaliseCodes upper-cases state codes and drops blanks and repeats,
// keeping the caller's order.
func normaliseCodes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, strings.ToUpper(c))
	}
	return normaliseNames(out)
}

func normaliseNames(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func missing(have, want []string) []string {
	var out []string
	for _, w := range want {
		if !slices.Contains(have, w) {
			out = append(out, w)
		}
	}
	return out
}

func present(have, want []string) []string {
	var out []string
	for _, w := range want {
		if slices.Contains(have, w) {
			out = append(out, w)
		}
	}
	return out
}

func without(have, drop []string) []string {
	out := make([]string, 0, len(have))
	for _, h := range have {
		if !slices.Contains(drop, h) {
			out = append(out, h)
		}
	}
	return out
}

func uniqueIDs(in []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(in))
	out := make([]uuid.UUID, 0, len(in))
	for _, id := range in {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func removeID(list []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(list))
	for _, l := range list {
		if l != id {
			out = append(out, l)
		}
	}
	return out
}
