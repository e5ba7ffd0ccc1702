package domain

import "time"

// MaintenanceActivity classifies a maintenance visit.
type MaintenanceActivity string

const (
	ActivityInspection     MaintenanceActivity = "Inspection"
	ActivityCalibration    MaintenanceActivity = "Calibration"
	ActivityRepair         MaintenanceActivity = "Repair"
	ActivityReplacement    MaintenanceActivity = "Replacement"
	ActivityCleaning       MaintenanceActivity = "Cleaning"
	ActivityFirmwareUpdate MaintenanceActivity = "FirmwareUpdate"
)

// ValidActivity reports whether a is a declared activity.
func ValidActivity(a MaintenanceActivity) bool {
	switch a {
	case ActivityInspection, ActivityCalibration, ActivityRepair,
		ActivityReplacement, ActivityCleaning, ActivityFirmwareUpdate:
		return true
	}
	return false
}

// MaintenanceLog records one maintenance visit to a station. Entries are
// append-only: they are never mutated after creation, only superseded by
// newer entries.
type MaintenanceLog struct {
	ID        string              `json:"id"`
	StationID string              `json:"station_id"`
	TechID    string              `json:"tech_id"`
	Timestamp time.Time           `json:"timestamp"`
	Activity  MaintenanceActivity `json:"activity"`
	Notes     string              `json:"notes,omitempty"`
}
