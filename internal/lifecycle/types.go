package lifecycle

import (
	"time"

	"toolvault.org/internal/asset"
)

// MovementType identifies the entry/exit variant of a movement.
type MovementType string

const (
	MovementPurchase        MovementType = "purchase"
	MovementReturn          MovementType = "return"
	MovementLoan            MovementType = "loan"
	MovementCalibrationExit MovementType = "calibration_exit"
	MovementMaintenanceExit MovementType = "maintenance_exit"
	MovementTransfer        MovementType = "transfer"
	MovementDisposal        MovementType = "disposal"
)

// MovementDirection distinguishes stock entering from stock leaving.
type MovementDirection string

const (
	DirectionEntry MovementDirection = "entry"
	DirectionExit  MovementDirection = "exit"
)

// MovementStatus is the approval state of a movement.
type MovementStatus string

const (
	MovementPending   MovementStatus = "pending"
	MovementApproved  MovementStatus = "approved"
	MovementCompleted MovementStatus = "completed"
	MovementCancelled MovementStatus = "cancelled"
)

// movementRule binds a movement type to the asset statuses it may start
// from and the status the asset takes when the movement completes.
type movementRule struct {
	direction MovementDirection
	requires  []asset.Status
	completed asset.Status
}

var movementRules = map[MovementType]movementRule{
	MovementPurchase:        {DirectionEntry, []asset.Status{asset.StatusAvailable}, asset.StatusAvailable},
	MovementReturn:          {DirectionEntry, []asset.Status{asset.StatusInUse}, asset.StatusAvailable},
	MovementLoan:            {DirectionExit, []asset.Status{asset.StatusAvailable}, asset.StatusInUse},
	MovementCalibrationExit: {DirectionExit, []asset.Status{asset.StatusAvailable}, asset.StatusInCalibration},
	MovementMaintenanceExit: {DirectionExit, []asset.Status{asset.StatusAvailable}, asset.StatusInMaintenance},
	MovementTransfer:        {DirectionExit, []asset.Status{asset.StatusAvailable}, asset.StatusAvailable},
	// Disposal ends in a terminal status; CompleteMovement applies the
	// decommission gates (admin authority, no other open work) before
	// retiring through it.
	MovementDisposal: {DirectionExit, []asset.Status{asset.StatusAvailable}, asset.StatusDecommissioned},
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	_, ok := movementRules[t]
	return ok
}

// Direction returns the entry/exit direction of the movement type.
func (t MovementType) Direction() MovementDirection {
	return movementRules[t].direction
}

// Movement is an entry/exit transaction that relocates or consumes an asset.
type Movement struct {
	ID           string         `json:"id"`
	Type         MovementType   `json:"type"`
	AssetID      string         `json:"asset_id"`
	Status       MovementStatus `json:"status"`
	Responsible  string         `json:"responsible"`
	Notes        string         `json:"notes,omitempty"`
	CancelReason string         `json:"cancel_reason,omitempty"`
	CreatedBy    string         `json:"created_by"`
	ApprovedBy   string         `json:"approved_by,omitempty"`
	CompletedBy  string         `json:"completed_by,omitempty"`
	CancelledBy  string         `json:"cancelled_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// CalibrationStatus is the stored state of a calibration record. Delayed is
// a derived read-time classification and is never persisted.
type CalibrationStatus string

const (
	CalibrationSent      CalibrationStatus = "sent"
	CalibrationInProcess CalibrationStatus = "in_process"
	CalibrationCompleted CalibrationStatus = "completed"
	CalibrationDelayed   CalibrationStatus = "delayed"
)

// CalibrationResult is set only on receipt.
type CalibrationResult string

const (
	ResultPassed      CalibrationResult = "passed"
	ResultFailed      CalibrationResult = "failed"
	ResultConditional CalibrationResult = "conditional"
)

// Valid reports whether r is a known calibration result.
func (r CalibrationResult) Valid() bool {
	switch r {
	case ResultPassed, ResultFailed, ResultConditional:
		return true
	}
	return false
}

// CalibrationRecord is one send/receive round-trip to a provider.
type CalibrationRecord struct {
	ID                  string            `json:"id"`
	AssetID             string            `json:"asset_id"`
	Status              CalibrationStatus `json:"status"`
	Provider            string            `json:"provider"`
	SendDate            time.Time         `json:"send_date"`
	EstimatedReturnDate time.Time         `json:"estimated_return_date"`
	ReturnDate          *time.Time        `json:"return_date,omitempty"`
	Result              CalibrationResult `json:"result,omitempty"`
	NextCalibrationDate *time.Time        `json:"next_calibration_date,omitempty"`
	Certificate         string            `json:"certificate,omitempty"`
	CreatedBy           string            `json:"created_by"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Open reports whether the record is still awaiting receipt.
func (c CalibrationRecord) Open() bool {
	return c.Status == CalibrationSent || c.Status == CalibrationInProcess
}

// EffectiveStatus classifies the record at read time: an open record whose
// estimated return date has passed reads as delayed. Recomputed on every
// read, never cached.
func (c CalibrationRecord) EffectiveStatus(now time.Time) CalibrationStatus {
	if c.Open() && now.After(c.EstimatedReturnDate) {
		return CalibrationDelayed
	}
	return c.Status
}

// QuarantineStatus is the state of a hold record.
type QuarantineStatus string

const (
	QuarantineActive    QuarantineStatus = "active"
	QuarantineResolved  QuarantineStatus = "resolved"
	QuarantineEscalated QuarantineStatus = "escalated"
)

// QuarantineRecord holds an asset outside normal circulation. PriorStatus
// captures the status to restore on resolution.
type QuarantineRecord struct {
	ID          string           `json:"id"`
	AssetID     string           `json:"asset_id"`
	Status      QuarantineStatus `json:"status"`
	Reason      string           `json:"reason"`
	PriorStatus asset.Status     `json:"prior_status"`
	EntryDate   time.Time        `json:"entry_date"`
	ReleaseDate *time.Time       `json:"release_date,omitempty"`
	CreatedBy   string           `json:"created_by"`
	ResolvedBy  string           `json:"resolved_by,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Unresolved reports whether the hold still blocks the asset. Escalated
// holds remain unresolved; they still count against the one-active-record
// invariant and can still be resolved.
func (q QuarantineRecord) Unresolved() bool {
	return q.Status == QuarantineActive || q.Status == QuarantineEscalated
}

// DecommissionStatus is the approval state of a retirement request.
type DecommissionStatus string

const (
	DecommissionPending   DecommissionStatus = "pending"
	DecommissionApproved  DecommissionStatus = "approved"
	DecommissionCompleted DecommissionStatus = "completed"
)

// DecommissionRequest is the terminal retirement process for an asset.
type DecommissionRequest struct {
	ID          string             `json:"id"`
	AssetID     string             `json:"asset_id"`
	Status      DecommissionStatus `json:"status"`
	Reason      string             `json:"reason"`
	RequestedBy string             `json:"requested_by"`
	ApprovedBy  string             `json:"approved_by,omitempty"`
	CompletedBy string             `json:"completed_by,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Open reports whether the request has not yet reached its terminal state.
func (d DecommissionRequest) Open() bool {
	return d.Status == DecommissionPending || d.Status == DecommissionApproved
}
