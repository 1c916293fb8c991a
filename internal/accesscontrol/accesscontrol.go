package accesscontrol

import (
	"bytes"
	"fmt"
	"sort"

	"amm-entrypoint-bot/internal/models"
)

// Registry maps role tags to the set of principals holding them.
// It is not safe for concurrent use; the entrypoint serializes access.
type Registry struct {
	members map[models.Role]map[models.Principal]struct{}
}

// NewRegistry creates a registry where admin holds ADMIN.
func NewRegistry(admin models.Principal) *Registry {
	r := &Registry{members: make(map[models.Role]map[models.Principal]struct{})}
	r.add(models.RoleAdmin, admin)
	return r
}

// HasRole reports whether p holds role.
func (r *Registry) HasRole(role models.Role, p models.Principal) bool {
	_, ok := r.members[role][p]
	return ok
}

// Check passes if p holds any of roles. It is the single capability check
// every gated operation goes through.
func (r *Registry) Check(p models.Principal, roles ...models.Role) error {
	for _, role := range roles {
		if r.HasRole(role, p) {
			return nil
		}
	}
	return fmt.Errorf("%w: account %s is missing role %v", models.ErrUnauthorized, p.Hex(), roles)
}

// GrantRole adds p to role. Granting a role already held is a no-op.
func (r *Registry) GrantRole(caller models.Principal, role models.Role, p models.Principal) error {
	if err := r.Check(caller, models.RoleAdmin); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownRole, role)
	}
	r.add(role, p)
	return nil
}

// RevokeRole removes p from role. Revoking a role not held is a no-op.
// The last ADMIN cannot be revoked.
func (r *Registry) RevokeRole(caller models.Principal, role models.Role, p models.Principal) error {
	if err := r.Check(caller, models.RoleAdmin); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownRole, role)
	}
	if !r.HasRole(role, p) {
		return nil
	}
	if role == models.RoleAdmin && len(r.members[models.RoleAdmin]) == 1 {
		return models.ErrLastAdmin
	}
	delete(r.members[role], p)
	return nil
}

// Members returns the holders of role sorted by address.
func (r *Registry) Members(role models.Role) []models.Principal {
	out := make([]models.Principal, 0, len(r.members[role]))
	for p := range r.members[role] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Snapshot returns a copy of the role table suitable for persistence.
func (r *Registry) Snapshot() map[models.Role][]models.Principal {
	snap := make(map[models.Role][]models.Principal, len(r.members))
	for role := range r.members {
		if members := r.Members(role); len(members) > 0 {
			snap[role] = members
		}
	}
	return snap
}

// Restore replaces the role table with a persisted one. A table without
// any admin is rejected and leaves the registry untouched. Unknown role tags
// are skipped.
func (r *Registry) Restore(snap map[models.Role][]models.Principal) error {
	if len(snap[models.RoleAdmin]) == 0 {
		return fmt.Errorf("%w: persisted role table has no admin", models.ErrLastAdmin)
	}
	r.members = make(map[models.Role]map[models.Principal]struct{})
	for role, members := range snap {
		if !role.Valid() {
			continue
		}
		for _, p := range members {
			r.add(role, p)
		}
	}
	return nil
}

func (r *Registry) add(role models.Role, p models.Principal) {
	set, ok := r.members[role]
	if !ok {
		set = make(map[models.Principal]struct{})
		r.members[role] = set
	}
	set[p] = struct{}{}
}
