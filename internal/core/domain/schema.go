package domain

import (
	"fmt"
	"strings"
)

// ErrSchemaViolation is returned when an event payload does not conform to
// the JSON schema of its (kind, type, revision). Errors holds
// machine-readable details.
type ErrSchemaViolation struct {
	Errors []string
}

func (e *ErrSchemaViolation) Error() string {
	return fmt.Sprintf("schema validation failed: %s", strings.Join(e.Errors, "; "))
}
