package domain

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidKind    = errors.New("invalid subject kind")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrNotFound       = errors.New("not found")
	ErrInactive       = errors.New("subject is inactive")
	ErrAlreadyActive  = errors.New("subject is already active")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
)

// SubjectKind names an aggregate that owns an activity log.
type SubjectKind string

const (
	KindAccount     SubjectKind = "account"
	KindContact     SubjectKind = "contact"
	KindEntity      SubjectKind = "entity"
	KindLocation    SubjectKind = "location"
	KindUser        SubjectKind = "user"
	KindTenant      SubjectKind = "tenant"
	KindProgram     SubjectKind = "program"
	KindServiceArea SubjectKind = "service_area"
	KindTeam        SubjectKind = "team"
	KindDivision    SubjectKind = "division"
)

type kindInfo struct {
	label   string
	segment string
	table   string
}

var kinds = map[SubjectKind]kindInfo{
	KindAccount:     {label: "Account", segment: "accounts", table: "account_activities"},
	KindContact:     {label: "Contact", segment: "contacts", table: "contact_activities"},
	KindEntity:      {label: "Entity", segment: "entities", table: "entity_activities"},
	KindLocation:    {label: "Location", segment: "locations", table: "location_activities"},
	KindUser:        {label: "User", segment: "users", table: "user_activities"},
	KindTenant:      {label: "Tenant", segment: "tenants", table: "tenant_activities"},
	KindProgram:     {label: "Program", segment: "programs", table: "program_activities"},
	KindServiceArea: {label: "Service area", segment: "service-areas", table: "service_area_activities"},
	KindTeam:        {label: "Team", segment: "teams", table: "team_activities"},
	KindDivision:    {label: "Division", segment: "divisions", table: "division_activities"},
}

// Kinds returns every subject kind in a stable order.
func Kinds() []SubjectKind {
	out := make([]SubjectKind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (k SubjectKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k SubjectKind) Validate() error {
	if !k.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// Label is the capitalised display name used in activity messages.
func (k SubjectKind) Label() string {
	return kinds[k].label
}

// Segment is the plural URL path segment, e.g. "service-areas".
func (k SubjectKind) Segment() string {
	return kinds[k].segment
}

// ActivityTable is the name of the kind's append-only log table.
func (k SubjectKind) ActivityTable() string {
	return kinds[k].table
}

// KindFromSegment resolves a URL path segment back to its kind.
func KindFromSegment(segment string) (SubjectKind, error) {
	for k, info := range kinds {
		if info.segment == segment {
			return k, nil
		}
	}
	return "", ErrInvalidKind
}

// pascal turns "service_area" into "ServiceArea".
func (k SubjectKind) pascal() string {
	parts := strings.Split(string(k), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

type Subject struct {
	TenantID   uuid.UUID
	Kind       SubjectKind
	ID         uuid.UUID
	Name       string
	Active     bool
	Attributes map[string]string
	StateIDs   []string
	Roles      []string
	Links      []uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Subject) Validate() error {
	if err := s.Kind.Validate(); err != nil {
		return err
	}
	if s.TenantID == uuid.Nil || s.ID == uuid.Nil {
		return ErrInvalidSubject
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrInvalidSubject
	}
	return nil
}

// Snapshot flattens the mutable fields into a map used for
// previous/current value payloads.
func (s Subject) Snapshot() map[string]string {
	out := make(map[string]string, len(s.Attributes)+1)
	for k, v := range s.Attributes {
		out[k] = v
	}
	out["name"] = s.Name
	return out
}

// HasLink reports whether id is among the subject's related subjects.
func (s Subject) HasLink(id uuid.UUID) bool {
	for _, l := range s.Links {
		if l == id {
			return true
		}
	}
	return false
}

type SubjectListFilter struct {
	After uuid.UUID
	Limit int
}
