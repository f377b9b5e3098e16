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

// CreateMovementInput describes a new entry/exit transaction.
type CreateMovementInput struct {
	Type        MovementType
	AssetID     string
	Responsible string
	Notes       string
}

// CreateMovement opens a movement in pending state. The asset must be in a
// status compatible with the movement type; its status does not change yet.
func (s *Service) CreateMovement(ctx context.Context, p auth.Principal, in CreateMovementInput) (Movement, error) {
	if !in.Type.Valid() {
		return Movement{}, errValidation("type")
	}
	if strings.TrimSpace(in.AssetID) == "" {
		return Movement{}, errValidation("asset_id")
	}
	if strings.TrimSpace(in.Responsible) == "" {
		return Movement{}, errValidation("responsible")
	}
	if err := authorize(p, auth.PermMovementsCreate, "movement.create"); err != nil {
		return Movement{}, err
	}

	var m Movement
	err := s.mutate(ctx, in.AssetID, "movement", "create", func(ctx context.Context) error {
		a, err := s.loadAsset(ctx, in.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "movement.create")
		}
		rule := movementRules[in.Type]
		if !statusIn(a.Status, rule.requires) {
			return errInvalidTransition("asset", a.ID, string(a.Status), "movement.create")
		}

		now := s.now()
		m = Movement{
			ID:          ids.New(),
			Type:        in.Type,
			AssetID:     a.ID,
			Status:      MovementPending,
			Responsible: strings.TrimSpace(in.Responsible),
			Notes:       strings.TrimSpace(in.Notes),
			CreatedBy:   p.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		entry := s.auditEntry(p, "movement.create", "movement", m.ID, a.ID, "", string(MovementPending))

		if err := s.commit(ctx, a.ID, "movement.create", func(tx Tx) error {
			if err := tx.PutMovement(m); err != nil {
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
		return Movement{}, err
	}
	return m, nil
}

// ApproveMovement gates a pending movement. Approval changes no asset state.
func (s *Service) ApproveMovement(ctx context.Context, p auth.Principal, movementID string) (Movement, error) {
	if movementID == "" {
		return Movement{}, errValidation("movement_id")
	}
	if err := authorize(p, auth.PermMovementsApprove, "movement.approve"); err != nil {
		return Movement{}, err
	}

	m, err := s.getMovement(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}

	err = s.mutate(ctx, m.AssetID, "movement", "approve", func(ctx context.Context) error {
		m, err = s.getMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != MovementPending {
			return errInvalidTransition("movement", m.ID, string(m.Status), "approve")
		}

		prev := m.Status
		m.Status = MovementApproved
		m.ApprovedBy = p.ID
		m.UpdatedAt = s.now()
		entry := s.auditEntry(p, "movement.approve", "movement", m.ID, m.AssetID, string(prev), string(m.Status))

		if err := s.commit(ctx, m.AssetID, "movement.approve", func(tx Tx) error {
			if err := tx.PutMovement(m); err != nil {
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
		return Movement{}, err
	}
	return m, nil
}

// CompleteMovement applies the asset status change dictated by the movement
// type via compare-and-set, in the same atomic unit as the movement update
// and the audit entry.
func (s *Service) CompleteMovement(ctx context.Context, p auth.Principal, movementID string) (Movement, error) {
	if movementID == "" {
		return Movement{}, errValidation("movement_id")
	}
	if err := authorize(p, auth.PermMovementsComplete, "movement.complete"); err != nil {
		return Movement{}, err
	}

	m, err := s.getMovement(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}

	err = s.mutate(ctx, m.AssetID, "movement", "complete", func(ctx context.Context) error {
		m, err = s.getMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != MovementApproved {
			return errInvalidTransition("movement", m.ID, string(m.Status), "complete")
		}
		a, err := s.loadAsset(ctx, m.AssetID)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return errRetired(a.ID, "movement.complete")
		}
		rule := movementRules[m.Type]
		if !statusIn(a.Status, rule.requires) {
			return errInvalidTransition("asset", a.ID, string(a.Status), "movement.complete")
		}
		// Disposal retires the asset, so it carries the same gates as
		// decommission: admin authority and no other open work.
		if rule.completed.Terminal() {
			if err := authorize(p, auth.PermDecommissionComplete, "movement.complete"); err != nil {
				return err
			}
			if err := s.requireNoOpenWorkExcept(ctx, a.ID, m.ID, "movement.complete"); err != nil {
				return err
			}
		}

		prevStatus := m.Status
		m.Status = MovementCompleted
		m.CompletedBy = p.ID
		m.UpdatedAt = s.now()
		entry := s.auditEntry(p, "movement.complete", "movement", m.ID, a.ID,
			fmt.Sprintf("%s/%s", prevStatus, a.Status),
			fmt.Sprintf("%s/%s", m.Status, rule.completed))

		if err := s.commit(ctx, a.ID, "movement.complete", func(tx Tx) error {
			if err := tx.PutMovement(m); err != nil {
				return err
			}
			if err := tx.CompareAndSetStatus(a.ID, a.Version, rule.completed); err != nil {
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
		return Movement{}, err
	}
	return m, nil
}

// CancelMovement voids a movement before completion. The reason is
// mandatory; nothing is reverted because complete had not yet run.
func (s *Service) CancelMovement(ctx context.Context, p auth.Principal, movementID, reason string) (Movement, error) {
	if movementID == "" {
		return Movement{}, errValidation("movement_id")
	}
	if strings.TrimSpace(reason) == "" {
		return Movement{}, errValidation("reason")
	}
	if err := authorize(p, auth.PermMovementsCancel, "movement.cancel"); err != nil {
		return Movement{}, err
	}

	m, err := s.getMovement(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}

	err = s.mutate(ctx, m.AssetID, "movement", "cancel", func(ctx context.Context) error {
		m, err = s.getMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Status != MovementPending && m.Status != MovementApproved {
			return errInvalidTransition("movement", m.ID, string(m.Status), "cancel")
		}

		prev := m.Status
		m.Status = MovementCancelled
		m.CancelReason = strings.TrimSpace(reason)
		m.CancelledBy = p.ID
		m.UpdatedAt = s.now()
		entry := s.auditEntry(p, "movement.cancel", "movement", m.ID, m.AssetID, string(prev), string(m.Status))

		if err := s.commit(ctx, m.AssetID, "movement.cancel", func(tx Tx) error {
			if err := tx.PutMovement(m); err != nil {
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
		return Movement{}, err
	}
	return m, nil
}

// GetMovement is a lock-free read.
func (s *Service) GetMovement(ctx context.Context, id string) (Movement, error) {
	if id == "" {
		return Movement{}, errValidation("movement_id")
	}
	return s.getMovement(ctx, id)
}

func (s *Service) getMovement(ctx context.Context, id string) (Movement, error) {
	m, err := s.repo.GetMovement(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return Movement{}, errNotFound("movement", id)
	}
	return m, err
}

func statusIn(st asset.Status, allowed []asset.Status) bool {
	for _, a := range allowed {
		if st == a {
			return true
		}
	}
	return false
}
