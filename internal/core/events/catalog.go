package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

// Catalog lists every factory the service ships with. Adding an event
// type or revision means adding its line here.
func Catalog() []Factory {
	factories := make([]Factory, 0, 64)
	for _, kind := range domain.Kinds() {
		created := Typed(kind, createdMessage)
		factories = append(factories,
			created,
			Upcasting(CreatedV1{}, createdTitleUpcaster{}, created),
			Typed(kind, updatedMessage),
			Typed(kind, deactivatedMessage),
			Typed(kind, activatedMessage),
		)
	}
	return append(factories,
		Typed(domain.KindContact, contactLinkedMessage),
		Typed(domain.KindContact, contactUnlinkedMessage),
		Typed(domain.KindEntity, stateIDsAddedMessage),
		Typed(domain.KindEntity, stateIDsRemovedMessage),
		Typed(domain.KindUser, rolesAssignedMessage),
		Typed(domain.KindUser, rolesRevokedMessage),
		Typed(domain.KindTeam, membersAddedMessage),
		Typed(domain.KindTeam, membersRemovedMessage),
	)
}

// DefaultRegistry builds the registry from Catalog and refuses to start
// when any producible event type lacks a factory.
func DefaultRegistry() (*Registry, error) {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		return nil, err
	}
	if missing := r.Missing(); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, k := range missing {
			names = append(names, k.Kind.Label()+" "+k.EventType.String())
		}
		return nil, fmt.Errorf("activity factories missing for: %s", strings.Join(names, ", "))
	}
	return r, nil
}

func createdMessage(kind domain.SubjectKind, p Created) string {
	return fmt.Sprintf("%s %s created", kind.Label(), p.Name)
}

func updatedMessage(kind domain.SubjectKind, p Updated) string {
	changed := changedFields(p.PreviousValues, p.CurrentValues)
	if len(changed) == 0 {
		return kind.Label() + " updated"
	}
	return fmt.Sprintf("%s updated: %s", kind.Label(), strings.Join(changed, ", "))
}

func deactivatedMessage(kind domain.SubjectKind, _ Deactivated) string {
	return kind.Label() + " deactivated"
}

func activatedMessage(kind domain.SubjectKind, _ Activated) string {
	return kind.Label() + " activated"
}

func contactLinkedMessage(_ domain.SubjectKind, p ContactLinked) string {
	return "Contact linked to the contact: " + strings.Join(p.RelatedNames, ", ")
}

func contactUnlinkedMessage(_ domain.SubjectKind, p ContactUnlinked) string {
	return "Contact unlinked from the contact: " + strings.Join(p.RelatedNames, ", ")
}

func stateIDsAddedMessage(_ domain.SubjectKind, p StateIDsAdded) string {
	return fmt.Sprintf("State ID(s) %s added", strings.Join(p.Codes, ", "))
}

func stateIDsRemovedMessage(_ domain.SubjectKind, p StateIDsRemoved) string {
	return fmt.Sprintf("State ID(s) %s removed", strings.Join(p.Codes, ", "))
}

func rolesAssignedMessage(_ domain.SubjectKind, p RolesAssigned) string {
	return fmt.Sprintf("Role(s) %s assigned", strings.Join(p.Roles, ", "))
}

func rolesRevokedMessage(_ domain.SubjectKind, p RolesRevoked) string {
	return fmt.Sprintf("Role(s) %s revoked", strings.Join(p.Roles, ", "))
}

func membersAddedMessage(_ domain.SubjectKind, p MembersAdded) string {
	return fmt.Sprintf("%d member(s) added to the team: %s", p.Count, strings.Join(p.RelatedNames, ", "))
}

func membersRemovedMessage(_ domain.SubjectKind, p MembersRemoved) string {
	return fmt.Sprintf("%d member(s) removed from the team: %s", p.Count, strings.Join(p.RelatedNames, ", "))
}

// changedFields returns the sorted keys whose values differ between the
// two snapshots.
func changedFields(prev, cur map[string]string) []string {
	seen := make(map[string]struct{}, len(prev)+len(cur))
	for k := range prev {
		seen[k] = struct{}{}
	}
	for k := range cur {
		seen[k] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		pv, pok := prev[k]
		cv, cok := cur[k]
		if pok != cok || pv != cv {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// createdTitleUpcaster moves revision 1's "title" into revision 2's "name".
type createdTitleUpcaster struct{}

func (createdTitleUpcaster) FromRevision() uint32 { return 1 }
func (createdTitleUpcaster) ToRevision() uint32   { return 2 }

func (createdTitleUpcaster) Upcast(payload json.RawMessage) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("payload is not an object")
	}
	if title, ok := m["title"]; ok {
		if _, has := m["name"]; !has {
			m["name"] = title
		}
		delete(m, "title")
	}
	return json.Marshal(m)
}
