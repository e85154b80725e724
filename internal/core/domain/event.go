package domain

import (
	"encoding/json"
	"time"
)

const (
	OutboxPending    = "pending"
	OutboxDispatched = "dispatched"
	OutboxDead       = "dead"
)

// EventEnvelope is what leaves the process through the outbox: the stored
// entry plus enough routing data for downstream consumers.
type EventEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Revision   uint32          `json:"revision"`
	TenantID   string          `json:"tenant_id"`
	Kind       string          `json:"subject_kind"`
	SubjectID  string          `json:"subject_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(eventID string, entry ActivityLogEntry) EventEnvelope {
	return EventEnvelope{
		EventID:    eventID,
		EventType:  EventName(entry.Kind, entry.EventType),
		Revision:   entry.Revision,
		TenantID:   entry.TenantID.String(),
		Kind:       string(entry.Kind),
		SubjectID:  entry.SubjectID.String(),
		OccurredAt: entry.OccurredAt,
		Payload:    entry.Payload,
	}
}

// Topic routes an envelope, e.g. "activity.<tenant>.contact.ContactDeactivated".
func (e EventEnvelope) Topic() string {
	return "activity." + e.TenantID + "." + e.Kind + "." + e.EventType
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	TenantID      string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
