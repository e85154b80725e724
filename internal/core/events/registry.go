package events

import (
	"sort"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

type kindType struct {
	kind domain.SubjectKind
	t    domain.EventType
}

// Registry is the (kind, type, revision) -> factory dispatch table. It is
// built once at startup and never mutated afterwards.
type Registry struct {
	factories map[Key]Factory
	current   map[kindType]uint32
}

// NewRegistry fails on the first key claimed by two factories.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{
		factories: make(map[Key]Factory, len(factories)),
		current:   make(map[kindType]uint32),
	}
	for _, f := range factories {
		key := f.Key()
		if _, dup := r.factories[key]; dup {
			return nil, &domain.DuplicateFactoryError{Kind: key.Kind, EventType: key.EventType, Revision: key.Revision}
		}
		r.factories[key] = f
		kt := kindType{kind: key.Kind, t: key.EventType}
		if key.Revision > r.current[kt] {
			r.current[kt] = key.Revision
		}
	}
	return r, nil
}

func (r *Registry) Resolve(key Key) (Factory, bool) {
	f, ok := r.factories[key]
	return f, ok
}

// Render dispatches entry to its factory. A missing factory is reported
// as *domain.UnresolvedEventError, never skipped.
func (r *Registry) Render(entry domain.ActivityLogEntry) (domain.DisplayActivityItem, error) {
	f, ok := r.factories[KeyOf(entry)]
	if !ok {
		return domain.DisplayActivityItem{}, &domain.UnresolvedEventError{Kind: entry.Kind, EventType: entry.EventType, Revision: entry.Revision}
	}
	return f.Render(entry)
}

// Current returns the newest registered revision for a kind's event type.
func (r *Registry) Current(kind domain.SubjectKind, t domain.EventType) (uint32, bool) {
	rev, ok := r.current[kindType{kind: kind, t: t}]
	return rev, ok
}

// Keys returns every registered key ordered by kind, type and revision.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.Revision < b.Revision
	})
	return keys
}

// Missing lists every event type a kind can produce that has no factory.
func (r *Registry) Missing() []Key {
	var out []Key
	for _, kind := range domain.Kinds() {
		for _, t := range domain.AllowedEvents(kind) {
			if _, ok := r.Current(kind, t); !ok {
				out = append(out, Key{Kind: kind, EventType: t})
			}
		}
	}
	return out
}
