package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIKey binds a hashed token to a tenant and the user acting through it.
type APIKey struct {
	TokenHash  string
	TenantID   uuid.UUID
	Name       string
	ActorID    uuid.UUID
	ActorName  string
	ActorRoles []string
	Active     bool
	CreatedAt  time.Time
}

func (k APIKey) Actor() Actor {
	return Actor{ID: k.ActorID, FullName: k.ActorName, Roles: k.ActorRoles}
}

// SplitRoles parses a comma separated role list, dropping blanks.
func SplitRoles(raw string) []string {
	out := make([]string, 0)
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
