package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"toolvault.org/internal/ids"
)

// Store resolves users and roles into principals for the permission gate.
type Store interface {
	CreateUser(ctx context.Context, email, password, roleName string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	Authenticate(ctx context.Context, email, password string) (User, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ResolvePrincipal(ctx context.Context, userID string) (Principal, error)
}

// InMemory implements Store with in-process concurrency safety and the
// builtin roles preseeded.
type InMemory struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
	roles   map[string]*Role // keyed by name
}

// NewInMemory creates a store seeded with the builtin roles.
func NewInMemory() *InMemory {
	s := &InMemory{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		roles:   make(map[string]*Role),
	}
	now := time.Now().UTC()
	for name, perms := range BuiltinRolePermissions {
		s.roles[name] = &Role{
			ID:          ids.New(),
			Name:        name,
			Permissions: append([]string(nil), perms...),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return s
}

func (s *InMemory) CreateUser(ctx context.Context, email, password, roleName string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return User{}, ErrInvalidInput
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roles[roleName]
	if !ok {
		return User{}, ErrNotFound
	}
	if _, exists := s.byEmail[email]; exists {
		return User{}, ErrAlreadyExists
	}

	now := time.Now().UTC()
	u := &User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusActive,
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return *u, nil
}

func (s *InMemory) GetUser(ctx context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *InMemory) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	id, ok := s.byEmail[email]
	var u *User
	if ok {
		u = s.users[id]
	}
	s.mu.RUnlock()

	if u == nil || u.Status != UserStatusActive {
		return User{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

func (s *InMemory) GetRoleByName(ctx context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	out := *role
	out.Permissions = append([]string(nil), role.Permissions...)
	return out, nil
}

func (s *InMemory) ResolvePrincipal(ctx context.Context, userID string) (Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || u.Status != UserStatusActive {
		return Principal{}, ErrNotFound
	}
	for _, role := range s.roles {
		if role.ID == u.RoleID {
			return NewPrincipal(u, *role), nil
		}
	}
	return Principal{}, ErrNotFound
}

var _ Store = (*InMemory)(nil)
