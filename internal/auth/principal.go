package auth

// Principal represents an acting user with its role resolved to a flat
// permission set. Checks are pure lookups, no inheritance.
type Principal struct {
	ID          string
	Email       string
	Role        string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permissions.
func NewPrincipal(user *User, role Role) Principal {
	set := make(map[string]struct{}, len(role.Permissions))
	for _, key := range role.Permissions {
		set[key] = struct{}{}
	}
	return Principal{ID: user.ID, Email: user.Email, Role: role.Name, Permissions: set}
}

// HasPermission reports whether the principal holds the capability key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// Authorize gates an operation on a capability. The error carries no detail
// beyond denial; callers check it before causing any side effect.
func Authorize(p Principal, capability string) error {
	if capability == "" {
		return ErrInvalidInput
	}
	if !p.HasPermission(capability) {
		return ErrForbidden
	}
	return nil
}
