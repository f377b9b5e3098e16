package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAuthorize(t *testing.T) {
	user := &User{ID: "u1", Email: "op@example.com"}
	role := Role{ID: "r1", Name: RoleSupervisor, Permissions: BuiltinRolePermissions[RoleSupervisor]}
	principal := NewPrincipal(user, role)

	if err := Authorize(principal, PermMovementsApprove); err != nil {
		t.Fatalf("expected supervisor to approve movements: %v", err)
	}
	if err := Authorize(principal, PermDecommissionApprove); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := Authorize(principal, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty capability, got %v", err)
	}
}

func TestStoreCreateAndAuthenticate(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "Tech@Example.com", "s3cret-pw", RoleOperator)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "tech@example.com" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}

	if _, err := s.CreateUser(ctx, "tech@example.com", "other", RoleOperator); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := s.CreateUser(ctx, "x@example.com", "pw", "no-such-role"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}

	if _, err := s.Authenticate(ctx, "tech@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	got, err := s.Authenticate(ctx, "tech@example.com", "s3cret-pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("authenticated wrong user: %s != %s", got.ID, u.ID)
	}
}

func TestResolvePrincipal(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "admin@example.com", "pw-123456", RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	p, err := s.ResolvePrincipal(ctx, u.ID)
	if err != nil {
		t.Fatalf("ResolvePrincipal: %v", err)
	}
	if !p.HasPermission(PermDecommissionApprove) {
		t.Fatal("expected admin to hold decommission.approve")
	}
	if _, err := s.ResolvePrincipal(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Setenv(secretEnvVariable, "unit-test-secret")
	ResetSecretCache()
	t.Cleanup(ResetSecretCache)

	token, err := GenerateToken("u42", RoleSupervisor, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "u42" || claims.Role != RoleSupervisor {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := ParseAndValidate("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatal("expected no principal on fresh context")
	}
	p := Principal{ID: "u1", Role: RoleOperator}
	ctx = ContextWithPrincipal(ctx, p)
	got, ok := PrincipalFromContext(ctx)
	if !ok || got.ID != "u1" {
		t.Fatalf("principal not carried through context: %+v ok=%v", got, ok)
	}
}
