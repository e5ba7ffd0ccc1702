package domain

import "time"

// StationRef is the station subset embedded in reports for query locality.
type StationRef struct {
	StationID string `json:"station_id"`
	Name      string `json:"name"`
}

// OwnerRef is the tenant subset embedded in stations and reports. Contact
// details are present only for institutional owners, where they are public.
type OwnerRef struct {
	OwnerType UserType `json:"owner_type"`
	UserID    string   `json:"user_id"`
	Name      string   `json:"name"`
	Contact   string   `json:"contact,omitempty"`
	Email     string   `json:"email,omitempty"`
	Telephone string   `json:"telephone,omitempty"`
}

// WeatherReport is one calendar day of data for one station. Date is midnight
// UTC; the (station id, date) pair is unique across the collection. Version
// starts at 1 and is incremented on every mutation by the write path.
type WeatherReport struct {
	ID           string        `json:"id"`
	Date         time.Time     `json:"date"`
	Version      int64         `json:"version"`
	LastModified time.Time     `json:"last_modified"`
	Location     Point         `json:"location"` // denormalized from the station
	Station      StationRef    `json:"station"`
	Owner        OwnerRef      `json:"owner"`
	Readings     []Reading     `json:"readings,omitempty"`
	Observations []Observation `json:"observations,omitempty"`
	DaySummary   *DaySummary   `json:"day_summary,omitempty"`
}

// Day returns t truncated to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
