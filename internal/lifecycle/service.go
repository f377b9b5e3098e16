// Package lifecycle implements the asset lifecycle and workflow engine: the
// movement, calibration, quarantine and decommission workflows, orchestrated
// behind one entry point that checks permissions, serializes mutations per
// asset and commits every transition atomically with its audit entry.
package lifecycle

import (
	"context"
	"errors"
	"time"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
	"toolvault.org/internal/auth"
	"toolvault.org/internal/ids"
	"toolvault.org/internal/obs"
)

const defaultLockWait = 2 * time.Second

// Service is the lifecycle orchestrator. It is the only component permitted
// to compare-and-set asset status; the UI and any other client reach every
// workflow through it.
type Service struct {
	repo     Repository
	locks    *assetLocks
	lockWait time.Duration
	now      func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithLockWait bounds how long a mutating operation waits for the per-asset
// lock before failing Busy.
func WithLockWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

// WithClock overrides the time source. Test helper.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs the orchestrator on top of a repository.
func New(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locks:    newAssetLocks(),
		lockWait: defaultLockWait,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorize maps a permission-gate denial into the failure taxonomy. It runs
// before the lock is taken and before any side effect.
func authorize(p auth.Principal, capability, action string) error {
	if err := auth.Authorize(p, capability); err != nil {
		return errForbidden(action)
	}
	return nil
}

// mutate wraps a mutating operation with the per-asset lock and the
// transition metric. Lock release is unconditional on all exit paths.
func (s *Service) mutate(ctx context.Context, assetID, workflow, action string, fn func(ctx context.Context) error) error {
	release, err := s.locks.acquire(ctx, assetID, s.lockWait)
	if err != nil {
		obs.ObserveTransition(workflow, action, outcomeOf(err))
		return err
	}
	defer release()

	err = fn(ctx)
	obs.ObserveTransition(workflow, action, outcomeOf(err))
	return err
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// commit runs one atomic unit and translates repository failures into the
// taxonomy. A conflict or retired signal rolls the whole unit back.
func (s *Service) commit(ctx context.Context, assetID, action string, fn func(tx Tx) error) error {
	err := s.repo.Atomic(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, asset.ErrVersionConflict):
		return errConflict(assetID, action)
	case errors.Is(err, asset.ErrRetired):
		return errRetired(assetID, action)
	case errors.Is(err, asset.ErrNotFound):
		return errNotFound("asset", assetID)
	}
	return err
}

func (s *Service) loadAsset(ctx context.Context, id string) (asset.Asset, error) {
	a, err := s.repo.GetAsset(ctx, id)
	if errors.Is(err, asset.ErrNotFound) {
		return asset.Asset{}, errNotFound("asset", id)
	}
	return a, err
}

func (s *Service) auditEntry(p auth.Principal, action, entityType, entityID, assetID, prev, next string) audit.Entry {
	return audit.Entry{
		ID:            ids.New(),
		Timestamp:     s.now(),
		Actor:         p.ID,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		AssetID:       assetID,
		PreviousValue: prev,
		NewValue:      next,
	}
}

// GetAuditTrail returns the append-only trail for one asset, oldest first.
// Read-only: no lock, no permission gate.
func (s *Service) GetAuditTrail(ctx context.Context, assetID string) ([]audit.Entry, error) {
	if assetID == "" {
		return nil, errValidation("asset_id")
	}
	return s.repo.AuditTrail(ctx, assetID)
}
