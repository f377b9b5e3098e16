// Package asset owns the canonical lifecycle status vocabulary for tracked
// tools and instruments. Status is mutated only through workflow transitions;
// the compare-and-set primitive lives on the repository transaction so that
// nothing outside the lifecycle orchestrator can reach it.
package asset

import (
	"errors"
	"time"
)

// Status is the single canonical lifecycle state of an asset.
type Status string

const (
	StatusAvailable      Status = "available"
	StatusInUse          Status = "in_use"
	StatusInCalibration  Status = "in_calibration"
	StatusInMaintenance  Status = "in_maintenance"
	StatusQuarantine     Status = "quarantine"
	StatusDecommissioned Status = "decommissioned"
)

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusInUse, StatusInCalibration,
		StatusInMaintenance, StatusQuarantine, StatusDecommissioned:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDecommissioned
}

// Asset is a tracked tool with exactly one status at any instant and a
// monotonically increasing version for optimistic concurrency.
type Asset struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Status      Status    `json:"status"`
	Version     uint64    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrNotFound        = errors.New("asset: not found")
	ErrCodeTaken       = errors.New("asset: code already registered")
	ErrVersionConflict = errors.New("asset: version conflict")
	ErrRetired         = errors.New("asset: decommissioned")
)
