package gormstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

type subjectModel struct {
	ID             uuid.UUID `gorm:"column:id;primaryKey"`
	TenantID       uuid.UUID `gorm:"column:tenant_id;not null"`
	Kind           string    `gorm:"column:kind;not null"`
	Name           string    `gorm:"column:name;not null"`
	Active         bool      `gorm:"column:active;not null"`
	AttributesJSON string    `gorm:"column:attributes_json;not null"`
	StateIDsJSON   string    `gorm:"column:state_ids_json;not null"`
	RolesJSON      string    `gorm:"column:roles_json;not null"`
	LinksJSON      string    `gorm:"column:links_json;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

func (subjectModel) TableName() string {
	return "subjects"
}

func subjectToModel(s domain.Subject) (subjectModel, error) {
	attrs := s.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	m := subjectModel{
		ID:        s.ID,
		TenantID:  s.TenantID,
		Kind:      string(s.Kind),
		Name:      s.Name,
		Active:    s.Active,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
	}
	var err error
	if m.AttributesJSON, err = jsonText(attrs); err != nil {
		return subjectModel{}, err
	}
	if m.StateIDsJSON, err = jsonText(nonNil(s.StateIDs)); err != nil {
		return subjectModel{}, err
	}
	if m.RolesJSON, err = jsonText(nonNil(s.Roles)); err != nil {
		return subjectModel{}, err
	}
	links := s.Links
	if links == nil {
		links = []uuid.UUID{}
	}
	if m.LinksJSON, err = jsonText(links); err != nil {
		return subjectModel{}, err
	}
	return m, nil
}

func (m subjectModel) toDomain() (domain.Subject, error) {
	s := domain.Subject{
		TenantID:  m.TenantID,
		Kind:      domain.SubjectKind(m.Kind),
		ID:        m.ID,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, col := range []struct {
		raw string
		dst any
	}{
		{m.AttributesJSON, &s.Attributes},
		{m.StateIDsJSON, &s.StateIDs},
		{m.RolesJSON, &s.Roles},
		{m.LinksJSON, &s.Links},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return domain.Subject{}, fmt.Errorf("decode subject %s: %w", m.ID, err)
		}
	}
	return s, nil
}

// activityModel maps every per-kind activity table; callers pick the table
// with Table(kind.ActivityTable()).
type activityModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TenantID  uuid.UUID `gorm:"column:tenant_id;not null"`
	SubjectID uuid.UUID `gorm:"column:subject_id;not null"`
	Date      time.Time `gorm:"column:date;not null"`
	EventType uint16    `gorm:"column:event_type;not null"`
	Revision  uint32    `gorm:"column:revision;not null"`
	Event     string    `gorm:"column:event;not null"`
}

func (m activityModel) toDomain(kind domain.SubjectKind) domain.ActivityLogEntry {
	return domain.ActivityLogEntry{
		ID:         m.ID,
		TenantID:   m.TenantID,
		SubjectID:  m.SubjectID,
		Kind:       kind,
		EventType:  domain.EventType(m.EventType),
		Revision:   m.Revision,
		OccurredAt: m.Date.UTC(),
		Payload:    json.RawMessage(m.Event),
	}
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

type apiKeyModel struct {
	TokenHash  string    `gorm:"column:token_hash;primaryKey"`
	TenantID   uuid.UUID `gorm:"column:tenant_id;not null"`
	Name       string    `gorm:"column:name;not null"`
	ActorID    uuid.UUID `gorm:"column:actor_id;not null"`
	ActorName  string    `gorm:"column:actor_name;not null"`
	ActorRoles string    `gorm:"column:actor_roles;not null"`
	Active     bool      `gorm:"column:active;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
