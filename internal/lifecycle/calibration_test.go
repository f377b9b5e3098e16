package lifecycle

import (
	"context"
	"testing"
	"time"

	"toolvault.org/internal/asset"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sendInput(assetID string, now time.Time) SendToCalibrationInput {
	return SendToCalibrationInput{
		AssetID:             assetID,
		Provider:            "metrology-lab",
		SendDate:            now,
		EstimatedReturnDate: now.Add(14 * 24 * time.Hour),
	}
}

func TestCalibrationPassedCycle(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-001")

	rec, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	if err != nil {
		t.Fatalf("SendToCalibration: %v", err)
	}
	if rec.Status != CalibrationSent {
		t.Fatalf("expected sent, got %s", rec.Status)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusInCalibration {
		t.Fatalf("expected in_calibration, got %s", st)
	}

	next := now.Add(365 * 24 * time.Hour)
	rec, err = s.ReceiveFromCalibration(ctx, p, ReceiveFromCalibrationInput{
		RecordID:            rec.ID,
		ReturnDate:          now.Add(10 * 24 * time.Hour),
		Result:              ResultPassed,
		NextCalibrationDate: &next,
		Certificate:         "CERT-2026-117",
	})
	if err != nil {
		t.Fatalf("ReceiveFromCalibration: %v", err)
	}
	if rec.Status != CalibrationCompleted || rec.Result != ResultPassed {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusAvailable {
		t.Fatalf("expected available after passed result, got %s", st)
	}
}

func TestCalibrationFailedTriggersQuarantine(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, repo := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-002")

	rec, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	if err != nil {
		t.Fatalf("SendToCalibration: %v", err)
	}
	if _, err := s.ReceiveFromCalibration(ctx, p, ReceiveFromCalibrationInput{
		RecordID:   rec.ID,
		ReturnDate: now.Add(10 * 24 * time.Hour),
		Result:     ResultFailed,
	}); err != nil {
		t.Fatalf("ReceiveFromCalibration: %v", err)
	}

	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusQuarantine {
		t.Fatalf("expected quarantine after failed result, got %s", st)
	}
	hold, open, err := repo.UnresolvedQuarantineForAsset(ctx, a.ID)
	if err != nil || !open {
		t.Fatalf("expected an active hold: %v %v", open, err)
	}
	if hold.PriorStatus != asset.StatusAvailable {
		t.Fatalf("hold should restore to available, got %s", hold.PriorStatus)
	}

	// Resolving the hold returns the asset to circulation.
	if _, err := s.ResolveQuarantine(ctx, p, hold.ID); err != nil {
		t.Fatalf("ResolveQuarantine: %v", err)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusAvailable {
		t.Fatalf("expected available after resolve, got %s", st)
	}
}

func TestCalibrationConditionalReturnsAvailable(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-003")

	rec, _ := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	if _, err := s.ReceiveFromCalibration(ctx, p, ReceiveFromCalibrationInput{
		RecordID:   rec.ID,
		ReturnDate: now,
		Result:     ResultConditional,
	}); err != nil {
		t.Fatalf("ReceiveFromCalibration: %v", err)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusAvailable {
		t.Fatalf("expected available after conditional result, got %s", st)
	}
}

func TestSecondOpenCalibrationRejected(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-004")

	if _, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now)); err != nil {
		t.Fatalf("SendToCalibration: %v", err)
	}
	// Asset is now in_calibration, so the status check trips first; force
	// the duplicate check by sending for an available asset with an open
	// record is impossible by construction — the invariant holds either way.
	if _, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now)); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
}

func TestDelayedIsDerivedAtReadTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := now
	s, _ := newTestService(t, WithClock(func() time.Time { return clock }))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-005")

	rec, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	if err != nil {
		t.Fatalf("SendToCalibration: %v", err)
	}

	got, _ := s.GetCalibration(ctx, rec.ID)
	if got.Status != CalibrationSent {
		t.Fatalf("expected sent before due date, got %s", got.Status)
	}

	// Move the clock past the estimated return date.
	clock = now.Add(15 * 24 * time.Hour)
	got, _ = s.GetCalibration(ctx, rec.ID)
	if got.Status != CalibrationDelayed {
		t.Fatalf("expected delayed after due date, got %s", got.Status)
	}

	// The stored status is untouched: in_process is still reachable.
	if _, err := s.MarkCalibrationInProcess(ctx, p, rec.ID); err != nil {
		t.Fatalf("MarkCalibrationInProcess: %v", err)
	}
	got, _ = s.GetCalibration(ctx, rec.ID)
	if got.Status != CalibrationDelayed {
		t.Fatalf("in_process past due must still read delayed, got %s", got.Status)
	}
}

func TestReceiveClosedRecordFails(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-006")

	rec, _ := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	in := ReceiveFromCalibrationInput{RecordID: rec.ID, ReturnDate: now, Result: ResultPassed}
	if _, err := s.ReceiveFromCalibration(ctx, p, in); err != nil {
		t.Fatalf("first receive: %v", err)
	}
	if _, err := s.ReceiveFromCalibration(ctx, p, in); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition on second receive, got %v", err)
	}
}

func TestReceiveBlockedWhileAssetQuarantined(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, repo := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()
	a := registerAsset(t, s, "CAL-007")

	rec, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
	if err != nil {
		t.Fatalf("SendToCalibration: %v", err)
	}
	// A hold placed while the record is open takes the asset out of
	// in_calibration.
	hold, err := s.PlaceInQuarantine(ctx, p, a.ID, "dropped in transit")
	if err != nil {
		t.Fatalf("PlaceInQuarantine: %v", err)
	}

	// A failed receipt must not stack a second hold on the asset.
	in := ReceiveFromCalibrationInput{RecordID: rec.ID, ReturnDate: now, Result: ResultFailed}
	if _, err := s.ReceiveFromCalibration(ctx, p, in); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
	got, open, err := repo.UnresolvedQuarantineForAsset(ctx, a.ID)
	if err != nil || !open {
		t.Fatalf("expected the original hold to survive: %v %v", open, err)
	}
	if got.ID != hold.ID {
		t.Fatalf("a second hold was created: %s != %s", got.ID, hold.ID)
	}

	// A passed receipt is equally blocked until the hold resolves.
	in.Result = ResultPassed
	if _, err := s.ReceiveFromCalibration(ctx, p, in); KindOf(err) != KindInvalidTransition {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}

	// Resolving restores in_calibration; the receipt then proceeds.
	if _, err := s.ResolveQuarantine(ctx, p, hold.ID); err != nil {
		t.Fatalf("ResolveQuarantine: %v", err)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusInCalibration {
		t.Fatalf("expected in_calibration after resolve, got %s", st)
	}
	if _, err := s.ReceiveFromCalibration(ctx, p, in); err != nil {
		t.Fatalf("ReceiveFromCalibration after resolve: %v", err)
	}
	if st, _, _ := s.GetAssetStatus(ctx, a.ID); st != asset.StatusAvailable {
		t.Fatalf("expected available, got %s", st)
	}
}

func TestListCalibrationAlerts(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s, _ := newTestService(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	p := adminPrincipal()

	day := 24 * time.Hour
	mk := func(code string, nextOffset time.Duration, withNext bool) {
		a := registerAsset(t, s, code)
		rec, err := s.SendToCalibration(ctx, p, sendInput(a.ID, now))
		if err != nil {
			t.Fatalf("send %s: %v", code, err)
		}
		in := ReceiveFromCalibrationInput{RecordID: rec.ID, ReturnDate: now, Result: ResultPassed}
		if withNext {
			next := now.Add(nextOffset)
			in.NextCalibrationDate = &next
		}
		if _, err := s.ReceiveFromCalibration(ctx, p, in); err != nil {
			t.Fatalf("receive %s: %v", code, err)
		}
	}

	mk("AL-1", 3*day, true)   // critical
	mk("AL-2", 20*day, true)  // warning
	mk("AL-3", 90*day, true)  // info
	mk("AL-4", 0, false)      // no date: no alert

	alerts, err := s.ListCalibrationAlerts(ctx)
	if err != nil {
		t.Fatalf("ListCalibrationAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(alerts))
	}
	bySeverity := map[AlertSeverity]int{}
	for _, al := range alerts {
		bySeverity[al.Severity]++
	}
	if bySeverity[SeverityCritical] != 1 || bySeverity[SeverityWarning] != 1 || bySeverity[SeverityInfo] != 1 {
		t.Fatalf("unexpected severities: %v", bySeverity)
	}
}
