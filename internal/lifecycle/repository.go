package lifecycle

import (
	"context"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
)

// Repository persists assets, workflow records and the audit ledger behind
// one transactional boundary. Reads never require the per-asset lock; all
// writes go through Atomic so that record state, asset status and the audit
// entry commit together or not at all.
type Repository interface {
	GetAsset(ctx context.Context, id string) (asset.Asset, error)
	ListAssets(ctx context.Context) ([]asset.Asset, error)

	GetMovement(ctx context.Context, id string) (Movement, error)
	OpenMovementsForAsset(ctx context.Context, assetID string) ([]Movement, error)

	GetCalibration(ctx context.Context, id string) (CalibrationRecord, error)
	OpenCalibrationForAsset(ctx context.Context, assetID string) (CalibrationRecord, bool, error)
	LatestCompletedCalibrations(ctx context.Context) ([]CalibrationRecord, error)

	GetQuarantine(ctx context.Context, id string) (QuarantineRecord, error)
	UnresolvedQuarantineForAsset(ctx context.Context, assetID string) (QuarantineRecord, bool, error)

	GetDecommission(ctx context.Context, id string) (DecommissionRequest, error)
	OpenDecommissionForAsset(ctx context.Context, assetID string) (DecommissionRequest, bool, error)

	AuditTrail(ctx context.Context, assetID string) ([]audit.Entry, error)

	// Atomic runs fn against a transaction; every write staged by fn is
	// committed as one unit. A compare-and-set failure inside the unit
	// rolls back everything and surfaces asset.ErrVersionConflict or
	// asset.ErrRetired.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside one atomic unit.
type Tx interface {
	RegisterAsset(a asset.Asset) error
	// CompareAndSetStatus flips the asset status iff the stored version
	// matches expectedVersion, bumping the version. Refused once the
	// asset is decommissioned.
	CompareAndSetStatus(assetID string, expectedVersion uint64, newStatus asset.Status) error
	PutMovement(m Movement) error
	PutCalibration(c CalibrationRecord) error
	PutQuarantine(q QuarantineRecord) error
	PutDecommission(d DecommissionRequest) error
	AppendAudit(e audit.Entry) error
}
