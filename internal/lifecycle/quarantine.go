package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
	"toolvault.org/internal/auth"
	"toolvault.org/internal/ids"
)

// PlaceInQuarantine opens a hold on an asset, capturing the status to
// restore on resolution. At most one unresolved hold may exist per asset.
func (s *Service) PlaceInQuarantine(ctx context.Context, p auth.Principal, assetID, reason string) (QuarantineRecord, error) {
	if strings.TrimSpace(assetID) == "" {
		return QuarantineRecord{}, errValidation("asset_id")
	}
	if strings.TrimSpace(reason) == "" {
		return QuarantineRecord{}, errValidation("reason")
	}
	if err := authorize(p, auth.PermQuarantinePlace, "quarantine.place"); err != nil {
		return QuarantineRecord{}, err
	}

	var rec QuarantineRecord
	err := s.mutate(ctx, assetID, "quarantine", "place", func(ctx context.Context) error {
		a, err := s.loadAsset(ctx, assetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "quarantine.place")
		}
		if _, open, err := s.repo.UnresolvedQuarantineForAsset(ctx, a.ID); err != nil {
			return err
		} else if open {
			return errDuplicateActive("quarantine", a.ID)
		}

		now := s.now()
		rec = QuarantineRecord{
			ID:          ids.New(),
			AssetID:     a.ID,
			Status:      QuarantineActive,
			Reason:      strings.TrimSpace(reason),
			PriorStatus: a.Status,
			EntryDate:   now,
			CreatedBy:   p.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		entry := s.auditEntry(p, "quarantine.place", "quarantine", rec.ID, a.ID,
			fmt.Sprintf("/%s", a.Status),
			fmt.Sprintf("%s/%s", QuarantineActive, asset.StatusQuarantine))

		if err := s.commit(ctx, a.ID, "quarantine.place", func(tx Tx) error {
			if err := tx.PutQuarantine(rec); err != nil {
				return err
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, asset.StatusQuarantine); err != nil {
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
		return QuarantineRecord{}, err
	}
	return rec, nil
}

// ResolveQuarantine releases the hold and restores the status captured at
// placement, defaulting to available when that status is unusable.
func (s *Service) ResolveQuarantine(ctx context.Context, p auth.Principal, recordID string) (QuarantineRecord, error) {
	if recordID == "" {
		return QuarantineRecord{}, errValidation("record_id")
	}
	if err := authorize(p, auth.PermQuarantineResolve, "quarantine.resolve"); err != nil {
		return QuarantineRecord{}, err
	}

	rec, err := s.getQuarantine(ctx, recordID)
	if err != nil {
		return QuarantineRecord{}, err
	}

	err = s.mutate(ctx, rec.AssetID, "quarantine", "resolve", func(ctx context.Context) error {
		rec, err = s.getQuarantine(ctx, recordID)
		if err != nil {
			return err
		}
		if !rec.Unresolved() {
			return errInvalidTransition("quarantine", rec.ID, string(rec.Status), "resolve")
		}
		a, err := s.loadAsset(ctx, rec.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "quarantine.resolve")
		}

		restored := restoredStatus(rec.PriorStatus)
		now := s.now()
		prev := rec.Status
		rec.Status = QuarantineResolved
		rec.ReleaseDate = &now
		rec.ResolvedBy = p.ID
		rec.UpdatedAt = now
		entry := s.auditEntry(p, "quarantine.resolve", "quarantine", rec.ID, a.ID,
			fmt.Sprintf("%s/%s", prev, a.Status),
			fmt.Sprintf("%s/%s", rec.Status, restored))

		if err := s.commit(ctx, a.ID, "quarantine.resolve", func(tx Tx) error {
			if err := tx.PutQuarantine(rec); err != nil {
				return err
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, restored); err != nil {
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
		return QuarantineRecord{}, err
	}
	return rec, nil
}

// EscalateQuarantine flags an unresolved hold for higher-authority review.
// The asset stays in quarantine.
func (s *Service) EscalateQuarantine(ctx context.Context, p auth.Principal, recordID string) (QuarantineRecord, error) {
	if recordID == "" {
		return QuarantineRecord{}, errValidation("record_id")
	}
	if err := authorize(p, auth.PermQuarantineEscalate, "quarantine.escalate"); err != nil {
		return QuarantineRecord{}, err
	}

	rec, err := s.getQuarantine(ctx, recordID)
	if err != nil {
		return QuarantineRecord{}, err
	}

	err = s.mutate(ctx, rec.AssetID, "quarantine", "escalate", func(ctx context.Context) error {
		rec, err = s.getQuarantine(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != QuarantineActive {
			return errInvalidTransition("quarantine", rec.ID, string(rec.Status), "escalate")
		}

		prev := rec.Status
		rec.Status = QuarantineEscalated
		rec.UpdatedAt = s.now()
		entry := s.auditEntry(p, "quarantine.escalate", "quarantine", rec.ID, rec.AssetID, string(prev), string(rec.Status))

		if err := s.commit(ctx, rec.AssetID, "quarantine.escalate", func(tx Tx) error {
			if err := tx.PutQuarantine(rec); err != nil {
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
		return QuarantineRecord{}, err
	}
	return rec, nil
}

// GetQuarantine is a lock-free read.
func (s *Service) GetQuarantine(ctx context.Context, id string) (QuarantineRecord, error) {
	if id == "" {
		return QuarantineRecord{}, errValidation("record_id")
	}
	return s.getQuarantine(ctx, id)
}

func (s *Service) getQuarantine(ctx context.Context, id string) (QuarantineRecord, error) {
	rec, err := s.repo.GetQuarantine(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return QuarantineRecord{}, errNotFound("quarantine", id)
	}
	return rec, err
}

// restoredStatus picks the status an asset returns to when a hold resolves:
// the captured prior status unless it is invalid, terminal or quarantine
// itself, in which case available.
func restoredStatus(prior asset.Status) asset.Status {
	if !prior.Valid() || prior.Terminal() || prior == asset.StatusQuarantine {
		return asset.StatusAvailable
	}
	return prior
}
