package events

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

// Key identifies the single factory that owns a stored row. Event type
// codes are closed per subject kind, so the kind is part of the key.
type Key struct {
	Kind      domain.SubjectKind
	EventType domain.EventType
	Revision  uint32
}

func KeyOf(entry domain.ActivityLogEntry) Key {
	return Key{Kind: entry.Kind, EventType: entry.EventType, Revision: entry.Revision}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Kind, domain.EventName(k.Kind, k.EventType), k.Revision)
}

// Factory renders stored payloads of exactly one key. Implementations are
// stateless and safe for concurrent use.
type Factory interface {
	Key() Key
	Render(entry domain.ActivityLogEntry) (domain.DisplayActivityItem, error)
	Schema() *jsonschema.Schema
}

type typedFactory[P Payload] struct {
	key     Key
	message func(domain.SubjectKind, P) string
}

// Typed builds the factory for payload variant P on one subject kind.
// message must be pure: the same payload always yields the same text.
func Typed[P Payload](kind domain.SubjectKind, message func(domain.SubjectKind, P) string) Factory {
	var zero P
	return &typedFactory[P]{
		key:     Key{Kind: kind, EventType: zero.EventType(), Revision: zero.Revision()},
		message: message,
	}
}

func (f *typedFactory[P]) Key() Key { return f.key }

func (f *typedFactory[P]) Render(entry domain.ActivityLogEntry) (domain.DisplayActivityItem, error) {
	if got := KeyOf(entry); got != f.key {
		return domain.DisplayActivityItem{}, fmt.Errorf("factory %s cannot render %s", f.key, got)
	}
	p, err := Decode[P](entry.Payload)
	if err != nil {
		return domain.DisplayActivityItem{}, err
	}
	meta := p.Meta()
	return domain.DisplayActivityItem{
		Message:       f.message(f.key.Kind, p),
		OccurredAt:    meta.OccurredAt,
		ActorFullName: meta.ActorFullName,
	}, nil
}

func (f *typedFactory[P]) Schema() *jsonschema.Schema {
	var zero P
	return reflectSchema(zero)
}

// Upcaster rewrites a payload stored under an older revision into the
// shape of a newer one.
type Upcaster interface {
	FromRevision() uint32
	ToRevision() uint32
	Upcast(payload json.RawMessage) (json.RawMessage, error)
}

type upcastingFactory struct {
	key    Key
	legacy Payload
	up     Upcaster
	target Factory
}

// Upcasting owns the legacy revision of target's event type: rows are
// upcast and then rendered by target.
func Upcasting(legacy Payload, up Upcaster, target Factory) Factory {
	tk := target.Key()
	return &upcastingFactory{
		key:    Key{Kind: tk.Kind, EventType: tk.EventType, Revision: up.FromRevision()},
		legacy: legacy,
		up:     up,
		target: target,
	}
}

func (f *upcastingFactory) Key() Key { return f.key }

func (f *upcastingFactory) Render(entry domain.ActivityLogEntry) (domain.DisplayActivityItem, error) {
	if got := KeyOf(entry); got != f.key {
		return domain.DisplayActivityItem{}, fmt.Errorf("factory %s cannot render %s", f.key, got)
	}
	next, err := f.up.Upcast(entry.Payload)
	if err != nil {
		return domain.DisplayActivityItem{}, fmt.Errorf("upcast %d->%d: %w", f.up.FromRevision(), f.up.ToRevision(), err)
	}
	entry.Payload = next
	entry.Revision = f.up.ToRevision()
	return f.target.Render(entry)
}

func (f *upcastingFactory) Schema() *jsonschema.Schema {
	return reflectSchema(f.legacy)
}
