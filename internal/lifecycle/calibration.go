package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
	"toolvault.org/internal/auth"
	"toolvault.org/internal/ids"
)

// SendToCalibrationInput starts a calibration cycle.
type SendToCalibrationInput struct {
	AssetID             string
	Provider            string
	SendDate            time.Time
	EstimatedReturnDate time.Time
}

// SendToCalibration opens a calibration record and moves the asset to
// in_calibration in one atomic step. The asset must be available and must
// not already have an open record.
func (s *Service) SendToCalibration(ctx context.Context, p auth.Principal, in SendToCalibrationInput) (CalibrationRecord, error) {
	if strings.TrimSpace(in.AssetID) == "" {
		return CalibrationRecord{}, errValidation("asset_id")
	}
	if strings.TrimSpace(in.Provider) == "" {
		return CalibrationRecord{}, errValidation("provider")
	}
	if in.SendDate.IsZero() {
		return CalibrationRecord{}, errValidation("send_date")
	}
	if in.EstimatedReturnDate.IsZero() || !in.EstimatedReturnDate.After(in.SendDate) {
		return CalibrationRecord{}, errValidation("estimated_return_date")
	}
	if err := authorize(p, auth.PermCalibrationSend, "calibration.send"); err != nil {
		return CalibrationRecord{}, err
	}

	var rec CalibrationRecord
	err := s.mutate(ctx, in.AssetID, "calibration", "send", func(ctx context.Context) error {
		a, err := s.loadAsset(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "calibration.send")
		}
		if a.Status != asset.StatusAvailable {
			return errInvalidTransition("asset", a.ID, string(a.Status), "calibration.send")
		}
		if _, open, err := s.repo.OpenCalibrationForAsset(ctx, a.ID); err != nil {
			return err
		} else if open {
			return errDuplicateActive("calibration", a.ID)
		}

		now := s.now()
		rec = CalibrationRecord{
			ID:                  ids.New(),
			AssetID:             a.ID,
			Status:              CalibrationSent,
			Provider:            strings.TrimSpace(in.Provider),
			SendDate:            in.SendDate,
			EstimatedReturnDate: in.EstimatedReturnDate,
			CreatedBy:           p.ID,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		entry := s.auditEntry(p, "calibration.send", "calibration", rec.ID, a.ID,
			fmt.Sprintf("/%s", a.Status),
			fmt.Sprintf("%s/%s", CalibrationSent, asset.StatusInCalibration))

		if err := s.commit(ctx, a.ID, "calibration.send", func(tx Tx) error {
			if err := tx.PutCalibration(rec); err != nil {
				return err
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, asset.StatusInCalibration); err != nil {
				return err
			}
			return tx.AppendAudit(entry)
		}); err != nil {
			return err
		}
		audit.Emit(ctx, entry)
		return nil
	})
	if err != nil {
		return CalibrationRecord{}, err
	}
	return rec, nil
}

// MarkCalibrationInProcess records the provider's confirmation that work
// started. Asset status is unchanged.
func (s *Service) MarkCalibrationInProcess(ctx context.Context, p auth.Principal, recordID string) (CalibrationRecord, error) {
	if recordID == "" {
		return CalibrationRecord{}, errValidation("record_id")
	}
	if err := authorize(p, auth.PermCalibrationSend, "calibration.mark_in_process"); err != nil {
		return CalibrationRecord{}, err
	}

	rec, err := s.getCalibration(ctx, recordID)
	if err != nil {
		return CalibrationRecord{}, err
	}

	err = s.mutate(ctx, rec.AssetID, "calibration", "mark_in_process", func(ctx context.Context) error {
		rec, err = s.getCalibration(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != CalibrationSent {
			return errInvalidTransition("calibration", rec.ID, string(rec.Status), "mark_in_process")
		}

		prev := rec.Status
		rec.Status = CalibrationInProcess
		rec.UpdatedAt = s.now()
		entry := s.auditEntry(p, "calibration.mark_in_process", "calibration", rec.ID, rec.AssetID, string(prev), string(rec.Status))

		if err := s.commit(ctx, rec.AssetID, "calibration.mark_in_process", func(tx Tx) error {
			if err := tx.PutCalibration(rec); err != nil {
				return err
			}
			return tx.AppendAudit(entry)
		}); err != nil {
			return err
		}
		audit.Emit(ctx, entry)
		return nil
	})
	if err != nil {
		return CalibrationRecord{}, err
	}
	return rec, nil
}

// ReceiveFromCalibrationInput closes a calibration cycle.
type ReceiveFromCalibrationInput struct {
	RecordID            string
	ReturnDate          time.Time
	Result              CalibrationResult
	NextCalibrationDate *time.Time
	Certificate         string
}

// ReceiveFromCalibration completes an open record. Passed or conditional
// results return the asset to available; a failed result places it in
// quarantine, opening a hold record in the same atomic unit.
func (s *Service) ReceiveFromCalibration(ctx context.Context, p auth.Principal, in ReceiveFromCalibrationInput) (CalibrationRecord, error) {
	if in.RecordID == "" {
		return CalibrationRecord{}, errValidation("record_id")
	}
	if in.ReturnDate.IsZero() {
		return CalibrationRecord{}, errValidation("return_date")
	}
	if !in.Result.Valid() {
		return CalibrationRecord{}, errValidation("result")
	}
	if err := authorize(p, auth.PermCalibrationReceive, "calibration.receive"); err != nil {
		return CalibrationRecord{}, err
	}

	rec, err := s.getCalibration(ctx, in.RecordID)
	if err != nil {
		return CalibrationRecord{}, err
	}

	err = s.mutate(ctx, rec.AssetID, "calibration", "receive", func(ctx context.Context) error {
		rec, err = s.getCalibration(ctx, in.RecordID)
		if err != nil {
			return err
		}
		if !rec.Open() {
			return errInvalidTransition("calibration", rec.ID, string(rec.Status), "receive")
		}
		a, err := s.loadAsset(ctx, rec.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "calibration.receive")
		}
		// A hold placed while the record was open moves the asset out of
		// in_calibration; receipt must wait until the hold resolves.
		if a.Status != asset.StatusInCalibration {
			return errInvalidTransition("asset", a.ID, string(a.Status), "calibration.receive")
		}

		now := s.now()
		prev := rec.Status
		ret := in.ReturnDate
		rec.Status = CalibrationCompleted
		rec.ReturnDate = &ret
		rec.Result = in.Result
		rec.NextCalibrationDate = in.NextCalibrationDate
		rec.Certificate = strings.TrimSpace(in.Certificate)
		rec.UpdatedAt = now

		target := asset.StatusAvailable
		var hold *QuarantineRecord
		if in.Result == ResultFailed {
			if _, held, err := s.repo.UnresolvedQuarantineForAsset(ctx, a.ID); err != nil {
				return err
			} else if held {
				return errDuplicateActive("quarantine", a.ID)
			}
			target = asset.StatusQuarantine
			// A failed calibration would otherwise have returned the
			// asset to available; that is the status a later resolve
			// restores.
			hold = &QuarantineRecord{
				ID:          ids.New(),
				AssetID:     a.ID,
				Status:      QuarantineActive,
				Reason:      "calibration failed",
				PriorStatus: asset.StatusAvailable,
				EntryDate:   now,
				CreatedBy:   p.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
		}
		entry := s.auditEntry(p, "calibration.receive", "calibration", rec.ID, a.ID,
			fmt.Sprintf("%s/%s", prev, a.Status),
			fmt.Sprintf("%s/%s", rec.Status, target))

		if err := s.commit(ctx, a.ID, "calibration.receive", func(tx Tx) error {
			if err := tx.PutCalibration(rec); err != nil {
				return err
			}
			if hold != nil {
				if err := tx.PutQuarantine(*hold); err != nil {
					return err
				}
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, target); err != nil {
				return err
			}
			return tx.AppendAudit(entry)
		}); err != nil {
			return err
		}
		audit.Emit(ctx, entry)
		return nil
	})
	if err != nil {
		return CalibrationRecord{}, err
	}
	return rec, nil
}

// GetCalibration returns a record with its read-time classification: open
// records past their estimated return date read as delayed.
func (s *Service) GetCalibration(ctx context.Context, id string) (CalibrationRecord, error) {
	if id == "" {
		return CalibrationRecord{}, errValidation("record_id")
	}
	rec, err := s.getCalibration(ctx, id)
	if err != nil {
		return CalibrationRecord{}, err
	}
	rec.Status = rec.EffectiveStatus(s.now())
	return rec, nil
}

// ListCalibrationAlerts classifies every asset's next calibration due date.
// Assets with no due date carry no alert. Read-only, lock-free.
func (s *Service) ListCalibrationAlerts(ctx context.Context) ([]CalibrationAlert, error) {
	records, err := s.repo.LatestCompletedCalibrations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	alerts := make([]CalibrationAlert, 0, len(records))
	for _, rec := range records {
		severity, days := AlertSeverityFor(rec.NextCalibrationDate, now)
		if severity == SeverityNotApplicable {
			continue
		}
		alerts = append(alerts, CalibrationAlert{
			AssetID:             rec.AssetID,
			RecordID:            rec.ID,
			NextCalibrationDate: *rec.NextCalibrationDate,
			DaysUntil:           days,
			Severity:            severity,
		})
	}
	return alerts, nil
}

func (s *Service) getCalibration(ctx context.Context, id string) (CalibrationRecord, error) {
	rec, err := s.repo.GetCalibration(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return CalibrationRecord{}, errNotFound("calibration", id)
	}
	return rec, err
}
