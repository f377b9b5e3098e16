package lifecycle

import (
	"math"
	"time"
)

// AlertSeverity grades how urgently an asset needs recalibration.
type AlertSeverity string

const (
	SeverityCritical      AlertSeverity = "critical"
	SeverityWarning       AlertSeverity = "warning"
	SeverityInfo          AlertSeverity = "info"
	SeverityNotApplicable AlertSeverity = "not_applicable"
)

// CalibrationAlert is the read-time classification of one asset's next
// calibration due date.
type CalibrationAlert struct {
	AssetID             string        `json:"asset_id"`
	RecordID            string        `json:"record_id"`
	NextCalibrationDate time.Time     `json:"next_calibration_date"`
	DaysUntil           int           `json:"days_until"`
	Severity            AlertSeverity `json:"severity"`
}

// AlertSeverityFor classifies a next-calibration date against now.
// Tiers: overdue or due within 7 days is critical, 8-30 days is warning,
// beyond 30 days is info; no date at all is not applicable.
func AlertSeverityFor(next *time.Time, now time.Time) (AlertSeverity, int) {
	if next == nil {
		return SeverityNotApplicable, 0
	}
	daysUntil := int(math.Floor(next.Sub(now).Hours() / 24))
	switch {
	case daysUntil < 0:
		return SeverityCritical, daysUntil
	case daysUntil <= 7:
		return SeverityCritical, daysUntil
	case daysUntil <= 30:
		return SeverityWarning, daysUntil
	default:
		return SeverityInfo, daysUntil
	}
}
