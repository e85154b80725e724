package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxPageSize = 1000

var (
	ErrInvalidPage     = errors.New("page and pageSize must be positive integers")
	ErrEventNotAllowed = errors.New("event type not allowed for subject kind")
	ErrInvalidActor    = errors.New("actor id and full name are required")
)

// EventType is the stored code of an activity event. Codes are closed per
// subject kind: see AllowedEvents.
type EventType uint16

const (
	EventCreated         EventType = 1
	EventUpdated         EventType = 2
	EventDeactivated     EventType = 3
	EventActivated       EventType = 4
	EventContactLinked   EventType = 10
	EventContactUnlinked EventType = 11
	EventStateIDAdded    EventType = 20
	EventStateIDRemoved  EventType = 21
	EventRolesAssigned   EventType = 30
	EventRolesRevoked    EventType = 31
	EventMembersAdded    EventType = 40
	EventMembersRemoved  EventType = 41
)

var eventNames = map[EventType]string{
	EventCreated:         "Created",
	EventUpdated:         "Updated",
	EventDeactivated:     "Deactivated",
	EventActivated:       "Activated",
	EventContactLinked:   "ContactLinked",
	EventContactUnlinked: "ContactUnlinked",
	EventStateIDAdded:    "StateIdAdded",
	EventStateIDRemoved:  "StateIdRemoved",
	EventRolesAssigned:   "RolesAssigned",
	EventRolesRevoked:    "RolesRevoked",
	EventMembersAdded:    "MembersAdded",
	EventMembersRemoved:  "MembersRemoved",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("EventType(%d)", uint16(t))
}

var commonEvents = []EventType{EventCreated, EventUpdated, EventDeactivated, EventActivated}

var kindEvents = map[SubjectKind][]EventType{
	KindContact: {EventContactLinked, EventContactUnlinked},
	KindEntity:  {EventStateIDAdded, EventStateIDRemoved},
	KindUser:    {EventRolesAssigned, EventRolesRevoked},
	KindTeam:    {EventMembersAdded, EventMembersRemoved},
}

// AllowedEvents returns the closed set of event types a kind can produce.
func AllowedEvents(kind SubjectKind) []EventType {
	if !kind.Valid() {
		return nil
	}
	out := append([]EventType{}, commonEvents...)
	return append(out, kindEvents[kind]...)
}

func EventAllowed(kind SubjectKind, t EventType) bool {
	for _, allowed := range AllowedEvents(kind) {
		if allowed == t {
			return true
		}
	}
	return false
}

// EventName is the qualified name of an event, e.g. "ContactDeactivated".
// Kind-specific types already carry their subject in the name.
func EventName(kind SubjectKind, t EventType) string {
	for _, common := range commonEvents {
		if common == t {
			return kind.pascal() + t.String()
		}
	}
	return t.String()
}

type ActivityLogEntry struct {
	ID         int64
	TenantID   uuid.UUID
	SubjectID  uuid.UUID
	Kind       SubjectKind
	EventType  EventType
	Revision   uint32
	OccurredAt time.Time
	Payload    json.RawMessage
}

type DisplayActivityItem struct {
	Message       string
	OccurredAt    time.Time
	ActorFullName string
}

type ActivityPage struct {
	PageCount uint32
	Items     []DisplayActivityItem
}

// PageQuery addresses one page of a subject's activity log.
type PageQuery struct {
	TenantID  uuid.UUID
	Kind      SubjectKind
	SubjectID uuid.UUID
	Page      int
	PageSize  int
}

func (q PageQuery) Validate() error {
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > MaxPageSize {
		return ErrInvalidPage
	}
	if err := q.Kind.Validate(); err != nil {
		return err
	}
	return nil
}

// Beyond reports whether the page starts past the last of total entries.
// Offset is only meaningful when Beyond is false.
func (q PageQuery) Beyond(total int64) bool {
	if total <= 0 {
		return true
	}
	size := int64(q.PageSize)
	return int64(q.Page) > (total+size-1)/size
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// PageCount is ceil(total / pageSize).
func PageCount(total int64, pageSize int) uint32 {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	size := int64(pageSize)
	return uint32((total + size - 1) / size)
}

// UnresolvedEventError reports a stored (kind, type, revision) with no
// registered factory. It is a deployment defect, never a user error.
type UnresolvedEventError struct {
	Kind      SubjectKind
	EventType EventType
	Revision  uint32
}

func (e *UnresolvedEventError) Error() string {
	return fmt.Sprintf("no activity factory registered for %s/%s revision %d", e.Kind, e.EventType, e.Revision)
}

// DuplicateFactoryError is returned at startup when two factories claim
// the same key.
type DuplicateFactoryError struct {
	Kind      SubjectKind
	EventType EventType
	Revision  uint32
}

func (e *DuplicateFactoryError) Error() string {
	return fmt.Sprintf("duplicate activity factory for %s/%s revision %d", e.Kind, e.EventType, e.Revision)
}

// Actor is the authenticated user performing a mutation.
type Actor struct {
	ID       uuid.UUID
	FullName string
	Roles    []string
}

// RolesLabel is the display-joined role list stored on payloads.
func (a Actor) RolesLabel() string {
	return strings.Join(a.Roles, ", ")
}

func (a Actor) Validate() error {
	if a.ID == uuid.Nil || strings.TrimSpace(a.FullName) == "" {
		return ErrInvalidActor
	}
	return nil
}
