package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/auth"
)

func principalWith(id string, perms ...string) auth.Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return auth.Principal{ID: id, Role: "test", Permissions: set}
}

func adminPrincipal() auth.Principal {
	return principalWith("admin-1", auth.BuiltinRolePermissions[auth.RoleAdmin]...)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *InMemory) {
	t.Helper()
	repo := NewInMemory()
	return New(repo, opts...), repo
}

func registerAsset(t *testing.T, s *Service, code string) asset.Asset {
	t.Helper()
	a, err := s.RegisterAsset(context.Background(), adminPrincipal(), RegisterAssetInput{Code: code, Name: "torque wrench " + code})
	if err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	return a
}

func trailLen(t *testing.T, s *Service, assetID string) int {
	t.Helper()
	trail, err := s.GetAuditTrail(context.Background(), assetID)
	if err != nil {
		t.Fatalf("GetAuditTrail: %v", err)
	}
	return len(trail)
}

func TestRegisterAsset(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a := registerAsset(t, s, "TW-001")
	if a.Status != asset.StatusAvailable || a.Version != 1 {
		t.Fatalf("unexpected asset: %+v", a)
	}

	st, ver, err := s.GetAssetStatus(ctx, a.ID)
	if err != nil || st != asset.StatusAvailable || ver != 1 {
		t.Fatalf("GetAssetStatus: %v %v %v", st, ver, err)
	}

	if _, err := s.RegisterAsset(ctx, adminPrincipal(), RegisterAssetInput{Code: "TW-001", Name: "dup"}); KindOf(err) != KindDuplicateActive {
		t.Fatalf("expected duplicate code failure, got %v", err)
	}
	if _, _, err := s.GetAssetStatus(ctx, "missing"); KindOf(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := s.RegisterAsset(ctx, principalWith("nobody"), RegisterAssetInput{Code: "TW-002", Name: "x"}); KindOf(err) != KindForbidden {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestAuditLedgerGrowsOnlyOnSuccess(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()

	a := registerAsset(t, s, "TW-010")
	if got := trailLen(t, s, a.ID); got != 1 {
		t.Fatalf("expected 1 audit entry after register, got %d", got)
	}

	m, err := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew-5"})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if got := trailLen(t, s, a.ID); got != 2 {
		t.Fatalf("expected 2 entries, got %d", got)
	}

	// Failed operation: complete from pending. Ledger must not grow.
	if _, err := s.CompleteMovement(ctx, p, m.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
	if got := trailLen(t, s, a.ID); got != 2 {
		t.Fatalf("ledger grew on failure: %d", got)
	}

	// Read-only operations never append.
	if _, _, err := s.GetAssetStatus(ctx, a.ID); err != nil {
		t.Fatalf("GetAssetStatus: %v", err)
	}
	if got := trailLen(t, s, a.ID); got != 2 {
		t.Fatalf("ledger grew on read: %d", got)
	}
}

// Two orchestrator instances sharing one repository model two nodes: the
// per-asset lock does not serialize them, so both observe the same asset
// version and exactly one compare-and-set wins.
func TestConcurrentCompleteOneConflict(t *testing.T) {
	repo := NewInMemory()
	s1 := New(repo)
	s2 := New(repo)
	ctx := context.Background()
	p := adminPrincipal()

	a, err := s1.RegisterAsset(ctx, p, RegisterAssetInput{Code: "TW-020", Name: "caliper"})
	if err != nil {
		t.Fatalf("RegisterAsset: %v", err)
	}
	m, err := s1.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew-1"})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if _, err := s1.ApproveMovement(ctx, p, m.ID); err != nil {
		t.Fatalf("ApproveMovement: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i, s := range []*Service{s1, s2} {
		wg.Add(1)
		go func(i int, s *Service) {
			defer wg.Done()
			<-start
			_, errs[i] = s.CompleteMovement(ctx, p, m.ID)
		}(i, s)
	}
	close(start)
	wg.Wait()

	var okCount, conflictOrInvalid int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case KindOf(err) == KindConflict || KindOf(err) == KindInvalidTransition:
			conflictOrInvalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 1 || conflictOrInvalid != 1 {
		t.Fatalf("expected exactly one success, got ok=%d other=%d", okCount, conflictOrInvalid)
	}

	st, ver, err := s1.GetAssetStatus(ctx, a.ID)
	if err != nil || st != asset.StatusInUse {
		t.Fatalf("asset should be in_use: %v %v", st, err)
	}
	if ver != 2 {
		t.Fatalf("expected exactly one version bump, got %d", ver)
	}
}

func TestLockTimeoutSurfacesBusy(t *testing.T) {
	s, _ := newTestService(t, WithLockWait(20*time.Millisecond))
	ctx := context.Background()
	a := registerAsset(t, s, "TW-030")

	release, err := s.locks.acquire(ctx, a.ID, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = s.CreateMovement(ctx, adminPrincipal(), CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew-2"})
	le, ok := err.(*Error)
	if !ok || le.Kind != KindBusy {
		t.Fatalf("expected Busy, got %v", err)
	}
	if !le.Retryable() {
		t.Fatal("Busy must be retryable")
	}
}

func TestLockReleasedAfterFailure(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "TW-040")

	// Invalid transition inside the locked region.
	m, err := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew-3"})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if _, err := s.CompleteMovement(ctx, p, m.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}

	// The lock must be free again.
	if _, err := s.ApproveMovement(ctx, p, m.ID); err != nil {
		t.Fatalf("lock not released: %v", err)
	}
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	s, _ := newTestService(t)
	a := registerAsset(t, s, "TW-050")

	release, err := s.locks.acquire(context.Background(), a.ID, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.locks.acquire(ctx, a.ID, time.Minute)
		done <- err
	}()
	cancel()
	err = <-done
	if KindOf(err) != KindBusy {
		t.Fatalf("expected busy, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected wrapped context.Canceled, got %v", err)
	}

	release()
	// Entry must have been cleaned up on both paths.
	s.locks.mu.Lock()
	n := len(s.locks.entries)
	s.locks.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected empty lock table, got %d entries", n)
	}
}
