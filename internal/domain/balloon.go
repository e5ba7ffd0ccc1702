package domain

import (
	"math"
	"time"
)

// Radiosonde identifies the instrument package carried by a balloon.
type Radiosonde struct {
	Serial   string `json:"serial"`
	Software string `json:"software"`
}

// GroundStationRef is the launch-site subset embedded in balloon reports.
type GroundStationRef struct {
	StationID string   `json:"station_id"`
	Name      string   `json:"name"`
	Owner     OwnerRef `json:"owner"`
}

// AscentReading is one telemetry sample from a radiosonde ascent. Unlike
// station readings these are authoritative data, stored as received: the
// altitude profile is typically monotone but never enforced.
type AscentReading struct {
	Timestamp     time.Time `json:"timestamp"`
	Location      Point3D   `json:"location"`
	GPHeight      float64   `json:"gpheight"` // geopotential height, meters
	Temp          *float64  `json:"temp,omitempty"`
	Dewpoint      *float64  `json:"dewpoint,omitempty"`
	Pressure      *float64  `json:"pressure,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
}

// BalloonReport is one radiosonde launch. Location is the first detected
// position; readings are ordered by ascending timestamp.
type BalloonReport struct {
	ID           string           `json:"id"`
	LaunchDate   time.Time        `json:"launch_date"`
	Station      GroundStationRef `json:"station"`
	Location     Point3D          `json:"location"`
	Version      int64            `json:"version"`
	LastModified time.Time        `json:"last_modified"`
	Radiosonde   Radiosonde       `json:"radiosonde"`
	Readings     []AscentReading  `json:"readings,omitempty"`
}

// WindFromComponents converts eastward (u) and northward (v) wind components
// in m/s to a speed and a meteorological direction in [0, 360) degrees.
func WindFromComponents(u, v float64) (speed, direction float64) {
	speed = math.Sqrt(u*u + v*v)
	direction = math.Atan2(v, u) * 180 / math.Pi
	direction = math.Mod(direction+360, 360)
	return speed, direction
}

// KelvinToCelsius converts an absolute temperature to °C.
func KelvinToCelsius(k float64) float64 {
	return k - 273.15
}
