package domain

import "time"

// StationStatus is the lifecycle state of a weather station.
type StationStatus string

const (
	StatusActive         StationStatus = "Active"
	StatusMaintenance    StationStatus = "Maintenance"
	StatusDecommissioned StationStatus = "Decommissioned"
)

// ValidStatus reports whether s is a declared status value.
func ValidStatus(s StationStatus) bool {
	switch s {
	case StatusActive, StatusMaintenance, StatusDecommissioned:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status change is allowed. Active and
// Maintenance flip freely in both directions; Decommissioned is terminal.
func (s StationStatus) CanTransitionTo(next StationStatus) bool {
	if !ValidStatus(next) {
		return false
	}
	if s == next {
		return true
	}
	return s != StatusDecommissioned
}

// MaintenanceRef is the most recent maintenance entry embedded in a station.
type MaintenanceRef struct {
	LogID     string              `json:"log_id"`
	Timestamp time.Time           `json:"timestamp"`
	TechID    string              `json:"tech_id"`
	Activity  MaintenanceActivity `json:"activity"`
	Notes     string              `json:"notes,omitempty"`
}

// WeatherStation is a fixed observation site. StationID is immutable after
// creation and doubles as the document id.
type WeatherStation struct {
	StationID         string          `json:"id"`
	Name              string          `json:"name"`
	Location          Point           `json:"location"`
	Owner             OwnerRef        `json:"owner"`
	Status            StationStatus   `json:"status"`
	InstalledAt       time.Time       `json:"installed_at"`
	LatestMaintenance *MaintenanceRef `json:"latest_maintenance,omitempty"`
}
