package domain

import (
	"fmt"
	"time"
)

// ValidationError describes a malformed or out-of-range document field. The
// write path rejects a document with a ValidationError before any write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Physically plausible sensor bounds. Values outside these are rejected as
// instrument or import errors rather than stored.
const (
	minTempC      = -95.0
	maxTempC      = 60.0
	minPressure   = 300.0 // hPa; radiosonde ascents go well below surface pressure
	maxPressure   = 1100.0
	maxWindSpeed  = 150.0 // m/s
	maxSunshineS  = 86400.0
	maxGPHeightM  = 50000.0
	secondsPerDay = 86400
)

func checkRange(field string, v *float64, lo, hi float64) *ValidationError {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return invalid(field, "value %g outside plausible range [%g, %g]", *v, lo, hi)
	}
	return nil
}

func checkReading(prefix string, r *Reading) *ValidationError {
	if r.Timestamp.IsZero() {
		return invalid(prefix+".timestamp", "required")
	}
	if r.SampleDuration <= 0 || r.SampleDuration > secondsPerDay {
		return invalid(prefix+".sample_duration", "must be in (0, %d] seconds", secondsPerDay)
	}
	checks := []*ValidationError{
		checkRange(prefix+".temp", r.Temp, minTempC, maxTempC),
		checkRange(prefix+".dewpoint", r.Dewpoint, minTempC, maxTempC),
		checkRange(prefix+".humidity", r.Humidity, 0, 100),
		checkRange(prefix+".pressure", r.Pressure, minPressure, maxPressure),
		checkRange(prefix+".precip", r.Precip, 0, 1000),
		checkRange(prefix+".cloud_cover", r.CloudCover, 0, 100),
		checkRange(prefix+".wind_speed", r.WindSpeed, 0, maxWindSpeed),
		checkRange(prefix+".wind_direction", r.WindDirection, 0, 360),
		checkRange(prefix+".sunshine", r.Sunshine, 0, maxSunshineS),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a weather report against the document invariants: required
// fields present, date at day granularity, readings sorted by timestamp with
// every timestamp inside [date, date+24h), and sensor values within
// physically plausible ranges.
func (r *WeatherReport) Validate() error {
	if r.Station.StationID == "" {
		return invalid("station.station_id", "required")
	}
	if r.Date.IsZero() {
		return invalid("date", "required")
	}
	if !r.Date.Equal(Day(r.Date)) {
		return invalid("date", "must be at day granularity (midnight UTC)")
	}
	if !r.Location.ValidCoordinates() {
		return invalid("location", "coordinates (%g, %g) outside WGS-84 bounds", r.Location.Lon, r.Location.Lat)
	}
	if r.Owner.UserID == "" {
		return invalid("owner.user_id", "required")
	}

	dayEnd := r.Date.Add(24 * time.Hour)
	for i := range r.Readings {
		prefix := fmt.Sprintf("readings[%d]", i)
		if err := checkReading(prefix, &r.Readings[i]); err != nil {
			return err
		}
		ts := r.Readings[i].Timestamp
		if ts.Before(r.Date) || !ts.Before(dayEnd) {
			return invalid(prefix+".timestamp", "%s outside report day [%s, %s)",
				ts.Format(time.RFC3339), r.Date.Format(time.RFC3339), dayEnd.Format(time.RFC3339))
		}
		if i > 0 && ts.Before(r.Readings[i-1].Timestamp) {
			return invalid(prefix+".timestamp", "readings must be sorted by ascending timestamp")
		}
	}

	for i := range r.Observations {
		ob := &r.Observations[i]
		prefix := fmt.Sprintf("observations[%d]", i)
		if ob.Timestamp.IsZero() {
			return invalid(prefix+".timestamp", "required")
		}
		if ob.Category != "" && !ValidCategory(ob.Category) {
			return invalid(prefix+".category", "unknown category %q", ob.Category)
		}
		if err := checkRange(prefix+".humidity", ob.Humidity, 0, 100); err != nil {
			return err
		}
		if err := checkRange(prefix+".temp", ob.Temp, minTempC, maxTempC); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a balloon report: required launch metadata, coordinates in
// range, and the ascent profile sorted by ascending timestamp. Altitude is
// deliberately not checked for monotonicity; the profile is authoritative.
func (b *BalloonReport) Validate() error {
	if b.Station.StationID == "" {
		return invalid("station.station_id", "required")
	}
	if b.LaunchDate.IsZero() {
		return invalid("launch_date", "required")
	}
	if b.Radiosonde.Serial == "" {
		return invalid("radiosonde.serial", "required")
	}
	if !b.Location.Surface().ValidCoordinates() {
		return invalid("location", "coordinates outside WGS-84 bounds")
	}

	for i := range b.Readings {
		rd := &b.Readings[i]
		prefix := fmt.Sprintf("readings[%d]", i)
		if rd.Timestamp.IsZero() {
			return invalid(prefix+".timestamp", "required")
		}
		if i > 0 && rd.Timestamp.Before(b.Readings[i-1].Timestamp) {
			return invalid(prefix+".timestamp", "readings must be sorted by ascending timestamp")
		}
		if !rd.Location.Surface().ValidCoordinates() {
			return invalid(prefix+".location", "coordinates outside WGS-84 bounds")
		}
		if rd.GPHeight < -500 || rd.GPHeight > maxGPHeightM {
			return invalid(prefix+".gpheight", "value %g outside plausible range", rd.GPHeight)
		}
		if err := checkRange(prefix+".temp", rd.Temp, minTempC, maxTempC); err != nil {
			return err
		}
		if err := checkRange(prefix+".pressure", rd.Pressure, 1, maxPressure); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks a station document.
func (s *WeatherStation) Validate() error {
	if s.StationID == "" {
		return invalid("id", "required")
	}
	if s.Name == "" {
		return invalid("name", "required")
	}
	if !s.Location.ValidCoordinates() {
		return invalid("location", "coordinates (%g, %g) outside WGS-84 bounds", s.Location.Lon, s.Location.Lat)
	}
	if !ValidStatus(s.Status) {
		return invalid("status", "unknown status %q", s.Status)
	}
	if s.Owner.UserID == "" {
		return invalid("owner.user_id", "required")
	}
	if s.InstalledAt.IsZero() {
		return invalid("installed_at", "required")
	}
	return nil
}

// Validate checks a user document, including the structural PII rules: only
// Private and Admin users carry encrypted fields, and they must carry no
// plaintext institutional fields.
func (u *User) Validate() error {
	if u.UserID == "" {
		return invalid("id", "required")
	}
	if !ValidUserType(u.UserType) {
		return invalid("user_type", "unknown type %q", u.UserType)
	}
	if u.CredentialDigest == "" {
		return invalid("credential_digest", "required")
	}
	switch u.UserType {
	case UserPrivate, UserAdmin:
		if u.Institution != "" || u.Contact != "" {
			return invalid("institution", "plaintext institutional fields not allowed for %s users", u.UserType)
		}
	default:
		if u.EncryptedName != "" || u.EncryptedEmail != "" {
			return invalid("name_enc", "encrypted PII fields only allowed for Private and Admin users")
		}
	}
	return nil
}

// Validate checks a maintenance log entry.
func (m *MaintenanceLog) Validate() error {
	if m.StationID == "" {
		return invalid("station_id", "required")
	}
	if m.TechID == "" {
		return invalid("tech_id", "required")
	}
	if m.Timestamp.IsZero() {
		return invalid("timestamp", "required")
	}
	if !ValidActivity(m.Activity) {
		return invalid("activity", "unknown activity %q", m.Activity)
	}
	return nil
}
