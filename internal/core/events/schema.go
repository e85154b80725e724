package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

var uuidType = reflect.TypeOf(uuid.UUID{})

// Payload schemas accept unknown properties so newer writers stay readable.
var reflector = &jsonschema.Reflector{
	Anonymous:                 true,
	AllowAdditionalProperties: true,
	DoNotReference:            true,
	Mapper: func(t reflect.Type) *jsonschema.Schema {
		if t == uuidType {
			return &jsonschema.Schema{Type: "string", Format: "uuid"}
		}
		return nil
	},
}

func reflectSchema(v Payload) *jsonschema.Schema {
	return reflector.Reflect(v)
}

// SchemaValidator checks raw payloads against the schema of the factory
// that owns their key. Compiled schemas are cached per key.
type SchemaValidator struct {
	registry *Registry
	cache    sync.Map // Key -> *santhosh.Schema
}

func NewSchemaValidator(registry *Registry) *SchemaValidator {
	return &SchemaValidator{registry: registry}
}

// Validate returns *domain.UnresolvedEventError for unknown keys and
// *domain.ErrSchemaViolation for payloads that do not match.
func (v *SchemaValidator) Validate(key Key, payload json.RawMessage) error {
	compiled, err := v.compiled(key)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return &domain.ErrSchemaViolation{Errors: []string{fmt.Sprintf("payload is not valid json: %v", err)}}
	}
	if err := compiled.Validate(doc); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrSchemaViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrSchemaViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func (v *SchemaValidator) compiled(key Key) (*santhosh.Schema, error) {
	if cached, ok := v.cache.Load(key); ok {
		return cached.(*santhosh.Schema), nil
	}
	f, ok := v.registry.Resolve(key)
	if !ok {
		return nil, &domain.UnresolvedEventError{Kind: key.Kind, EventType: key.EventType, Revision: key.Revision}
	}
	raw, err := json.Marshal(f.Schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", key, err)
	}
	compiled, err := compileSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", key, err)
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

func compileSchema(schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft2020
	if err := compiler.AddResource("payload.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("payload.json")
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}
