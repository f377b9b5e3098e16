package lifecycle

import (
	"context"
	"testing"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/auth"
)

func TestDecommissionFullFlow(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "DC-001")

	req, err := s.RequestDecommission(ctx, p, a.ID, "beyond economic repair")
	if err != nil || req.Status != DecommissionPending {
		t.Fatalf("RequestDecommission: %v (%s)", err, req.Status)
	}

	req, err = s.ApproveDecommission(ctx, p, req.ID)
	if err != nil || req.Status != DecommissionApproved {
		t.Fatalf("ApproveDecommission: %v (%s)", err, req.Status)
	}

	req, err = s.CompleteDecommission(ctx, p, req.ID)
	if err != nil || req.Status != DecommissionCompleted {
		t.Fatalf("CompleteDecommission: %v (%s)", err, req.Status)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusDecommissioned {
		t.Fatalf("expected decommissioned, got %s", st)
	}
}

func TestDecommissionedAssetIsTerminal(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "DC-002")

	req, _ := s.RequestDecommission(ctx, p, a.ID, "obsolete")
	s.ApproveDecommission(ctx, p, req.ID)
	if _, err := s.CompleteDecommission(ctx, p, req.ID); err != nil {
		t.Fatalf("CompleteDecommission: %v", err)
	}

	// Every workflow refuses a retired asset.
	if _, err := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew"}); KindOf(err) != KindAssetRetired {
		t.Fatalf("expected AssetRetired for movement, got %v", err)
	}
	if _, err := s.SendToCalibration(ctx, p, sendInput(a.ID, s.now())); KindOf(err) != KindAssetRetired {
		t.Fatalf("expected AssetRetired for calibration, got %v", err)
	}
	if _, err := s.PlaceInQuarantine(ctx, p, a.ID, "hold"); KindOf(err) != KindAssetRetired {
		t.Fatalf("expected AssetRetired for quarantine, got %v", err)
	}
	if _, err := s.RequestDecommission(ctx, p, a.ID, "again"); KindOf(err) != KindAssetRetired {
		t.Fatalf("expected AssetRetired for second request, got %v", err)
	}
}

func TestDecommissionBlockedByOpenWork(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()

	// Open movement blocks the request.
	a := registerAsset(t, s, "DC-003")
	m, _ := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew"})
	if _, err := s.RequestDecommission(ctx, p, a.ID, "retire"); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition with open movement, got %v", err)
	}
	if _, err := s.CancelMovement(ctx, p, m.ID, "clearing for retirement"); err != nil {
		t.Fatalf("CancelMovement: %v", err)
	}
	if _, err := s.RequestDecommission(ctx, p, a.ID, "retire"); err != nil {
		t.Fatalf("request after cancel: %v", err)
	}

	// Work opened after the request blocks completion.
	b := registerAsset(t, s, "DC-004")
	req, err := s.RequestDecommission(ctx, p, b.ID, "retire")
	if err != nil {
		t.Fatalf("RequestDecommission: %v", err)
	}
	if _, err := s.ApproveDecommission(ctx, p, req.ID); err != nil {
		t.Fatalf("ApproveDecommission: %v", err)
	}
	if _, err := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: b.ID, Responsible: "crew"}); err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if _, err := s.CompleteDecommission(ctx, p, req.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition with late open work, got %v", err)
	}
}

func TestDecommissionApprovalRequiresAdmin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	a := registerAsset(t, s, "DC-005")

	supervisor := principalWith("sup-1", auth.BuiltinRolePermissions[auth.RoleSupervisor]...)
	req, err := s.RequestDecommission(ctx, supervisor, a.ID, "retire")
	if err != nil {
		t.Fatalf("supervisor should request: %v", err)
	}
	if _, err := s.ApproveDecommission(ctx, supervisor, req.ID); KindOf(err) != KindForbidden {
		t.Fatalf("supervisor must not approve, got %v", err)
	}
	if _, err := s.ApproveDecommission(ctx, adminPrincipal(), req.ID); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
}

func TestDecommissionOrderEnforced(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "DC-006")

	req, _ := s.RequestDecommission(ctx, p, a.ID, "retire")
	if _, err := s.CompleteDecommission(ctx, p, req.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("complete before approve must fail, got %v", err)
	}
	if _, err := s.ApproveDecommission(ctx, p, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := s.ApproveDecommission(ctx, p, req.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("double approve must fail, got %v", err)
	}
	if _, err := s.RequestDecommission(ctx, p, a.ID, "again"); KindOf(err) != KindDuplicateActive {
		t.Fatalf("expected DuplicateActive for second open request, got %v", err)
	}
}
