package lifecycle

import (
	"context"
	"testing"

	"toolvault.org/internal/asset"
)

func TestQuarantinePlaceAndResolveRestoresPrior(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "QR-001")

	// Put the asset in use first so prior status is interesting.
	m, _ := s.CreateMovement(ctx, p, CreateMovementInput{Type: MovementLoan, AssetID: a.ID, Responsible: "crew-1"})
	s.ApproveMovement(ctx, p, m.ID)
	if _, err := s.CompleteMovement(ctx, p, m.ID); err != nil {
		t.Fatalf("CompleteMovement: %v", err)
	}

	rec, err := s.PlaceInQuarantine(ctx, p, a.ID, "suspected drop damage")
	if err != nil {
		t.Fatalf("PlaceInQuarantine: %v", err)
	}
	if rec.PriorStatus != asset.StatusInUse {
		t.Fatalf("expected prior in_use, got %s", rec.PriorStatus)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusQuarantine {
		t.Fatalf("expected quarantine, got %s", st)
	}

	rec, err = s.ResolveQuarantine(ctx, p, rec.ID)
	if err != nil || rec.Status != QuarantineResolved {
		t.Fatalf("ResolveQuarantine: %v (%s)", err, rec.Status)
	}
	if rec.ReleaseDate == nil {
		t.Fatal("release date not set on resolution")
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusInUse {
		t.Fatalf("expected prior status restored, got %s", st)
	}
}

func TestDuplicateActiveQuarantine(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "QR-002")

	if _, err := s.PlaceInQuarantine(ctx, p, a.ID, "first hold"); err != nil {
		t.Fatalf("first place: %v", err)
	}
	if _, err := s.PlaceInQuarantine(ctx, p, a.ID, "second hold"); KindOf(err) != KindDuplicateActive {
		t.Fatalf("expected DuplicateActive, got %v", err)
	}
}

func TestEscalateKeepsAssetQuarantined(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "QR-003")

	rec, _ := s.PlaceInQuarantine(ctx, p, a.ID, "failed inspection")
	rec, err := s.EscalateQuarantine(ctx, p, rec.ID)
	if err != nil || rec.Status != QuarantineEscalated {
		t.Fatalf("EscalateQuarantine: %v (%s)", err, rec.Status)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusQuarantine {
		t.Fatalf("escalate must not move the asset, got %s", st)
	}

	// Escalated holds still block new placements and remain resolvable.
	if _, err := s.PlaceInQuarantine(ctx, p, a.ID, "another"); KindOf(err) != KindDuplicateActive {
		t.Fatalf("expected DuplicateActive while escalated, got %v", err)
	}
	if _, err := s.EscalateQuarantine(ctx, p, rec.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition on double escalate, got %v", err)
	}
	if _, err := s.ResolveQuarantine(ctx, p, rec.ID); err != nil {
		t.Fatalf("resolve escalated hold: %v", err)
	}
}

func TestResolveResolvedHoldFails(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "QR-004")

	rec, _ := s.PlaceInQuarantine(ctx, p, a.ID, "hold")
	if _, err := s.ResolveQuarantine(ctx, p, rec.ID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := s.ResolveQuarantine(ctx, p, rec.ID); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestRestoredStatusDefaults(t *testing.T) {
	cases := map[asset.Status]asset.Status{
		asset.StatusInUse:          asset.StatusInUse,
		asset.StatusInMaintenance:  asset.StatusInMaintenance,
		asset.StatusQuarantine:     asset.StatusAvailable,
		asset.StatusDecommissioned: asset.StatusAvailable,
		asset.Status("bogus"):      asset.StatusAvailable,
	}
	for prior, want := range cases {
		if got := restoredStatus(prior); got != want {
			t.Fatalf("restoredStatus(%s)=%s, want %s", prior, got, want)
		}
	}
}
