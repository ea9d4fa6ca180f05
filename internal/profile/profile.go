package profile

import "agentd/pkg/types"

// Profile is an immutable named set of resource descriptors plus role
// assignments (e.g., "router" -> "qwen2.5-7b"). Profiles are swapped
// wholesale by the Manager, never mutated in place.
type Profile struct {
	Name      string
	Resources []types.ResourceSpec
	Roles     map[string]string
}

// Resource finds a resource descriptor by id.
func (p Profile) Resource(id string) (types.ResourceSpec, bool) {
	for _, r := range p.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return types.ResourceSpec{}, false
}

// RoleResource resolves a role assignment to its resource descriptor.
func (p Profile) RoleResource(role string) (types.ResourceSpec, bool) {
	id, ok := p.Roles[role]
	if !ok {
		return types.ResourceSpec{}, false
	}
	return p.Resource(id)
}

// Largest returns the biggest resource in the profile. Used by the
// recovery prober: if the largest original resource loads, the rest will.
func (p Profile) Largest() (types.ResourceSpec, bool) {
	var best types.ResourceSpec
	found := false
	for _, r := range p.Resources {
		if !found || r.SizeMB > best.SizeMB {
			best = r
			found = true
		}
	}
	return best, found
}

// clone returns a deep copy so callers can hold a Profile without racing
// against a swap.
func (p Profile) clone() Profile {
	out := Profile{Name: p.Name}
	out.Resources = make([]types.ResourceSpec, len(p.Resources))
	copy(out.Resources, p.Resources)
	if p.Roles != nil {
		out.Roles = make(map[string]string, len(p.Roles))
		for k, v := range p.Roles {
			out.Roles[k] = v
		}
	}
	return out
}
