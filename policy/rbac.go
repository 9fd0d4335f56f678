package policy

import (
	"context"
	"errors"
)

// Permission names a single allowed or denied action on a resource class.
// Action and Resource are both plain strings ("ssh:connect", "database/*")
// rather than a closed enum, since the set of actionable resources spans
// every connector pam/connector supports.
type Permission struct {
	Resource string `yaml:"resource" json:"resource"`
	Action   string `yaml:"action" json:"action"`
	Effect   Effect `yaml:"effect" json:"effect"`
}

// Matches reports whether this permission governs the given resource and
// action. A "*" on either field matches anything.
func (p Permission) Matches(resource, action string) bool {
	return (p.Resource == "*" || p.Resource == resource) &&
		(p.Action == "*" || p.Action == action)
}

// Role is a named bundle of permissions.
type Role struct {
	Name        string       `yaml:"name" json:"name"`
	Permissions []Permission `yaml:"permissions" json:"permissions"`
}

// RolePermission is the persisted join row between a role and one of the
// permissions it grants or denies.
type RolePermission struct {
	RoleName   string     `json:"role_name"`
	Permission Permission `json:"permission"`
}

// UserRole is the persisted join row assigning a role to a user.
type UserRole struct {
	UserID   string `json:"user_id"`
	RoleName string `json:"role_name"`
}

var (
	// ErrRoleNotFound is returned when a referenced role doesn't exist.
	ErrRoleNotFound = errors.New("policy: role not found")
)

// RBACStore persists roles and their assignment to users.
type RBACStore interface {
	RolesForUser(ctx context.Context, userID string) ([]string, error)
	Permissions(ctx context.Context, roleName string) ([]Permission, error)
	AssignRole(ctx context.Context, userID, roleName string) error
	RevokeRole(ctx context.Context, userID, roleName string) error
	PutRole(ctx context.Context, role Role) error
}

// RBACAuthorizer answers whether a user may perform an action on a
// resource, by unioning every permission granted by every role assigned
// to the user and applying deny-wins: a single matching deny permission,
// from any role, overrides every matching allow.
type RBACAuthorizer struct {
	store RBACStore
}

// NewRBACAuthorizer constructs an authorizer backed by store.
func NewRBACAuthorizer(store RBACStore) *RBACAuthorizer {
	return &RBACAuthorizer{store: store}
}

// Authorize resolves whether userID may perform action on resource. It
// returns false (deny) if the user holds no role granting an allow
// permission for the resource/action pair, or if any assigned role
// grants a matching deny permission.
func (a *RBACAuthorizer) Authorize(ctx context.Context, userID, resource, action string) (bool, error) {
	roles, err := a.store.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}

	allowed := false
	for _, roleName := range roles {
		perms, err := a.store.Permissions(ctx, roleName)
		if err != nil {
			return false, err
		}
		for _, p := range perms {
			if !p.Matches(resource, action) {
				continue
			}
			if p.Effect == EffectDeny {
				return false, nil
			}
			if p.Effect == EffectAllow {
				allowed = true
			}
		}
	}
	return allowed, nil
}

// InMemoryRBACStore is a map-backed RBACStore for tests and small
// deployments that don't need DynamoDB persistence.
type InMemoryRBACStore struct {
	roles     map[string]Role
	userRoles map[string]map[string]bool
}

// NewInMemoryRBACStore constructs an empty store.
func NewInMemoryRBACStore() *InMemoryRBACStore {
	return &InMemoryRBACStore{
		roles:     make(map[string]Role),
		userRoles: make(map[string]map[string]bool),
	}
}

func (s *InMemoryRBACStore) PutRole(_ context.Context, role Role) error {
	s.roles[role.Name] = role
	return nil
}

func (s *InMemoryRBACStore) AssignRole(_ context.Context, userID, roleName string) error {
	if _, ok := s.roles[roleName]; !ok {
		return ErrRoleNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[string]bool)
	}
	s.userRoles[userID][roleName] = true
	return nil
}

func (s *InMemoryRBACStore) RevokeRole(_ context.Context, userID, roleName string) error {
	delete(s.userRoles[userID], roleName)
	return nil
}

func (s *InMemoryRBACStore) RolesForUser(_ context.Context, userID string) ([]string, error) {
	var names []string
	for name := range s.userRoles[userID] {
		names = append(names, name)
	}
	return names, nil
}

func (s *InMemoryRBACStore) Permissions(_ context.Context, roleName string) ([]Permission, error) {
	role, ok := s.roles[roleName]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role.Permissions, nil
}
