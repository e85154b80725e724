// Package events holds the activity payload variants and the factories
// that turn stored payloads back into display rows.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

// Header is carried by every payload: who did it and when.
type Header struct {
	ActorID       uuid.UUID `json:"actorId"`
	ActorFullName string    `json:"actorFullName"`
	ActorRoles    string    `json:"actorRoles"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewHeader(actor domain.Actor, at time.Time) Header {
	return Header{
		ActorID:       actor.ID,
		ActorFullName: actor.FullName,
		ActorRoles:    actor.RolesLabel(),
		OccurredAt:    at.UTC(),
	}
}

func (h Header) Meta() Header { return h }

// Payload is the closed set of activity events. Each variant is a value
// type; its EventType and Revision identify the factory that renders it.
type Payload interface {
	EventType() domain.EventType
	Revision() uint32
	Meta() Header
}

// CreatedV1 is the original creation payload, kept so old rows still
// render. New rows are written as Created.
type CreatedV1 struct {
	Header
	Title string `json:"title"`
}

func (CreatedV1) EventType() domain.EventType { return domain.EventCreated }
func (CreatedV1) Revision() uint32            { return 1 }

type Created struct {
	Header
	Name          string            `json:"name"`
	CurrentValues map[string]string `json:"currentValues" jsonschema:"nullable"`
}

func (Created) EventType() domain.EventType { return domain.EventCreated }
func (Created) Revision() uint32            { return 2 }

type Updated struct {
	Header
	PreviousValues map[string]string `json:"previousValues" jsonschema:"nullable"`
	CurrentValues  map[string]string `json:"currentValues" jsonschema:"nullable"`
}

func (Updated) EventType() domain.EventType { return domain.EventUpdated }
func (Updated) Revision() uint32            { return 1 }

type Deactivated struct {
	Header
}

func (Deactivated) EventType() domain.EventType { return domain.EventDeactivated }
func (Deactivated) Revision() uint32            { return 1 }

type Activated struct {
	Header
}

func (Activated) EventType() domain.EventType { return domain.EventActivated }
func (Activated) Revision() uint32            { return 1 }

type ContactLinked struct {
	Header
	RelatedNames []string `json:"relatedNames" jsonschema:"nullable"`
}

func (ContactLinked) EventType() domain.EventType { return domain.EventContactLinked }
func (ContactLinked) Revision() uint32            { return 1 }

type ContactUnlinked struct {
	Header
	RelatedNames []string `json:"relatedNames" jsonschema:"nullable"`
}

func (ContactUnlinked) EventType() domain.EventType { return domain.EventContactUnlinked }
func (ContactUnlinked) Revision() uint32            { return 1 }

type StateIDsAdded struct {
	Header
	Codes []string `json:"codes" jsonschema:"nullable"`
}

func (StateIDsAdded) EventType() domain.EventType { return domain.EventStateIDAdded }
func (StateIDsAdded) Revision() uint32            { return 1 }

type StateIDsRemoved struct {
	Header
	Codes []string `json:"codes" jsonschema:"nullable"`
}

func (StateIDsRemoved) EventType() domain.EventType { return domain.EventStateIDRemoved }
func (StateIDsRemoved) Revision() uint32            { return 1 }

type RolesAssigned struct {
	Header
	Roles []string `json:"roles" jsonschema:"nullable"`
	Count int      `json:"count"`
}

func (RolesAssigned) EventType() domain.EventType { return domain.EventRolesAssigned }
func (RolesAssigned) Revision() uint32            { return 1 }

type RolesRevoked struct {
	Header
	Roles []string `json:"roles" jsonschema:"nullable"`
	Count int      `json:"count"`
}

func (RolesRevoked) EventType() domain.EventType { return domain.EventRolesRevoked }
func (RolesRevoked) Revision() uint32            { return 1 }

type MembersAdded struct {
	Header
	RelatedNames []string `json:"relatedNames" jsonschema:"nullable"`
	Count        int      `json:"count"`
}

func (MembersAdded) EventType() domain.EventType { return domain.EventMembersAdded }
func (MembersAdded) Revision() uint32            { return 1 }

type MembersRemoved struct {
	Header
	RelatedNames []string `json:"relatedNames" jsonschema:"nullable"`
	Count        int      `json:"count"`
}

func (MembersRemoved) EventType() domain.EventType { return domain.EventMembersRemoved }
func (MembersRemoved) Revision() uint32            { return 1 }

// Encode serializes a payload for storage.
func Encode(p Payload) (json.RawMessage, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	return raw, nil
}

// Decode reads a stored payload into its concrete variant. Unknown fields
// are ignored so newer writers do not break older readers.
func Decode[P Payload](raw json.RawMessage) (P, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", p.EventType(), err)
	}
	return p, nil
}
