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

// RequestDecommission opens a retirement request. Decommission is blocked
// while any other workflow record is open on the asset, so an in-flight
// movement, calibration or hold must finish first.
func (s *Service) RequestDecommission(ctx context.Context, p auth.Principal, assetID, reason string) (DecommissionRequest, error) {
	if strings.TrimSpace(assetID) == "" {
		return DecommissionRequest{}, errValidation("asset_id")
	}
	if strings.TrimSpace(reason) == "" {
		return DecommissionRequest{}, errValidation("reason")
	}
	if err := authorize(p, auth.PermDecommissionRequest, "decommission.request"); err != nil {
		return DecommissionRequest{}, err
	}

	var req DecommissionRequest
	err := s.mutate(ctx, assetID, "decommission", "request", func(ctx context.Context) error {
		a, err := s.loadAsset(ctx, assetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "decommission.request")
		}
		if err := s.requireNoOpenWork(ctx, a.ID, "decommission.request"); err != nil {
			return err
		}
		if _, open, err := s.repo.OpenDecommissionForAsset(ctx, a.ID); err != nil {
			return err
		} else if open {
			return errDuplicateActive("decommission", a.ID)
		}

		now := s.now()
		req = DecommissionRequest{
			ID:          ids.New(),
			AssetID:     a.ID,
			Status:      DecommissionPending,
			Reason:      strings.TrimSpace(reason),
			RequestedBy: p.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		entry := s.auditEntry(p, "decommission.request", "decommission", req.ID, a.ID, "", string(DecommissionPending))

		if err := s.commit(ctx, a.ID, "decommission.request", func(tx Tx) error {
			if err := tx.PutDecommission(req); err != nil {
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
		return DecommissionRequest{}, err
	}
	return req, nil
}

// ApproveDecommission is the admin gate on retirement.
func (s *Service) ApproveDecommission(ctx context.Context, p auth.Principal, requestID string) (DecommissionRequest, error) {
	if requestID == "" {
		return DecommissionRequest{}, errValidation("request_id")
	}
	if err := authorize(p, auth.PermDecommissionApprove, "decommission.approve"); err != nil {
		return DecommissionRequest{}, err
	}

	req, err := s.getDecommission(ctx, requestID)
	if err != nil {
		return DecommissionRequest{}, err
	}

	err = s.mutate(ctx, req.AssetID, "decommission", "approve", func(ctx context.Context) error {
		req, err = s.getDecommission(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != DecommissionPending {
			return errInvalidTransition("decommission", req.ID, string(req.Status), "approve")
		}

		prev := req.Status
		req.Status = DecommissionApproved
		req.ApprovedBy = p.ID
		req.UpdatedAt = s.now()
		entry := s.auditEntry(p, "decommission.approve", "decommission", req.ID, req.AssetID, string(prev), string(req.Status))

		if err := s.commit(ctx, req.AssetID, "decommission.approve", func(tx Tx) error {
			if err := tx.PutDecommission(req); err != nil {
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
		return DecommissionRequest{}, err
	}
	return req, nil
}

// CompleteDecommission retires the asset. Terminal: the registry refuses
// any further compare-and-set once the asset is decommissioned.
func (s *Service) CompleteDecommission(ctx context.Context, p auth.Principal, requestID string) (DecommissionRequest, error) {
	if requestID == "" {
		return DecommissionRequest{}, errValidation("request_id")
	}
	if err := authorize(p, auth.PermDecommissionComplete, "decommission.complete"); err != nil {
		return DecommissionRequest{}, err
	}

	req, err := s.getDecommission(ctx, requestID)
	if err != nil {
		return DecommissionRequest{}, err
	}

	err = s.mutate(ctx, req.AssetID, "decommission", "complete", func(ctx context.Context) error {
		req, err = s.getDecommission(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != DecommissionApproved {
			return errInvalidTransition("decommission", req.ID, string(req.Status), "complete")
		}
		a, err := s.loadAsset(ctx, req.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "decommission.complete")
		}
		// Work may have been opened since the request was filed.
		if err := s.requireNoOpenWork(ctx, a.ID, "decommission.complete"); err != nil {
			return err
		}

		prev := req.Status
		req.Status = DecommissionCompleted
		req.CompletedBy = p.ID
		req.UpdatedAt = s.now()
		entry := s.auditEntry(p, "decommission.complete", "decommission", req.ID, a.ID,
			fmt.Sprintf("%s/%s", prev, a.Status),
			fmt.Sprintf("%s/%s", req.Status, asset.StatusDecommissioned))

		if err := s.commit(ctx, a.ID, "decommission.complete", func(tx Tx) error {
			if err := tx.PutDecommission(req); err != nil {
				return err
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, asset.StatusDecommissioned); err != nil {
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
		return DecommissionRequest{}, err
	}
	return req, nil
}

// GetDecommission is a lock-free read.
func (s *Service) GetDecommission(ctx context.Context, id string) (DecommissionRequest, error) {
	if id == "" {
		return DecommissionRequest{}, errValidation("request_id")
	}
	return s.getDecommission(ctx, id)
}

func (s *Service) getDecommission(ctx context.Context, id string) (DecommissionRequest, error) {
	req, err := s.repo.GetDecommission(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return DecommissionRequest{}, errNotFound("decommission", id)
	}
	return req, err
}

// requireNoOpenWork rejects retirement while any other workflow record is
// open on the asset.
func (s *Service) requireNoOpenWork(ctx context.Context, assetID, action string) error {
	return s.requireNoOpenWorkExcept(ctx, assetID, "", action)
}

// requireNoOpenWorkExcept is requireNoOpenWork minus one movement, for the
// disposal path where the retiring movement itself is still open.
func (s *Service) requireNoOpenWorkExcept(ctx context.Context, assetID, exceptMovementID, action string) error {
	open, err := s.repo.OpenMovementsForAsset(ctx, assetID)
	if err != nil {
		return err
	}
	for _, m := range open {
		if m.ID == exceptMovementID {
			continue
		}
		return errInvalidTransition("movement", m.ID, string(m.Status), action)
	}
	if _, ok, err := s.repo.OpenCalibrationForAsset(ctx, assetID); err != nil {
		return err
	} else if ok {
		return errInvalidTransition("calibration", assetID, string(CalibrationSent), action)
	}
	if _, ok, err := s.repo.UnresolvedQuarantineForAsset(ctx, assetID); err != nil {
		return err
	} else if ok {
		return errInvalidTransition("quarantine", assetID, string(QuarantineActive), action)
	}
	return nil
}
