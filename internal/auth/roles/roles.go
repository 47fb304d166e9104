// Package roles holds the immutable role to authority table shared by the
// token service, the orchestrator and the authorization middleware.
package roles

import (
	"fmt"
	"sort"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
)

// Table maps every role to its ordered authority list. A Table is never mutated
// after construction and is safe for concurrent use.
type Table struct {
	entries map[models.Role][]string
}

// Default returns the stock table.
func Default() *Table {
	t, _ := NewTable(DefaultMapping())
	return t
}

// DefaultMapping returns a fresh copy of the stock role mapping.
func DefaultMapping() map[models.Role][]string {
	return map[models.Role][]string{
		models.RoleUser:       {models.AuthorityRead},
		models.RoleHR:         {models.AuthorityRead, models.AuthorityUpdate},
		models.RoleManager:    {models.AuthorityRead, models.AuthorityUpdate},
		models.RoleAdmin:      {models.AuthorityRead, models.AuthorityUpdate, models.AuthorityCreate},
		models.RoleSuperAdmin: {models.AuthorityRead, models.AuthorityUpdate, models.AuthorityCreate, models.AuthorityDelete},
	}
}

// NewTable builds a table from mapping. Every known role must be present and
// authorities must not repeat within a role.
func NewTable(mapping map[models.Role][]string) (*Table, error) {
	entries := make(map[models.Role][]string, len(mapping))
	for _, role := range models.Roles {
		auths, ok := mapping[role]
		if !ok {
			return nil, fmt.Errorf("role table: missing role %s", role)
		}

		seen := make(map[string]struct{}, len(auths))
		for _, a := range auths {
			if a == "" {
				return nil, fmt.Errorf("role table: empty authority for role %s", role)
			}
			if _, dup := seen[a]; dup {
				return nil, fmt.Errorf("role table: duplicated authority %q for role %s", a, role)
			}
			seen[a] = struct{}{}
		}

		entries[role] = append([]string(nil), auths...)
	}

	for role := range mapping {
		if _, ok := entries[role]; !ok {
			return nil, fmt.Errorf("role table: %w %s", apierr.ErrUnknownRole, role)
		}
	}

	return &Table{entries: entries}, nil
}

// Authorities returns a copy of the authorities granted to role.
func (t *Table) Authorities(role models.Role) ([]string, error) {
	auths, ok := t.entries[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apierr.ErrUnknownRole, role)
	}
	return append([]string(nil), auths...), nil
}

// Has reports whether role is present in the table.
func (t *Table) Has(role models.Role) bool {
	_, ok := t.entries[role]
	return ok
}

// Parse resolves a role name, accepting the legacy "ROLE_" prefix.
func (t *Table) Parse(name string) (models.Role, error) {
	role := models.Role(name)
	if t.Has(role) {
		return role, nil
	}
	if len(name) > 5 && name[:5] == "ROLE_" {
		role = models.Role(name[5:])
		if t.Has(role) {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w: %s", apierr.ErrUnknownRole, name)
}

// Roles returns the configured roles sorted by name.
func (t *Table) Roles() []models.Role {
	out := make([]models.Role, 0, len(t.entries))
	for r := range t.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
