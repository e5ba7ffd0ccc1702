// Package domain models the documents held by the weather data store:
// automated station readings, radiosonde (weather balloon) telemetry, manual
// observations, and the tenants that own them.
//
// # Collections
//
// Six logical collections, each a mapping from a unique id to a document:
//
//	weather_stations         WeatherStation, keyed by station id (e.g. "WS-LON002")
//	weather_reports          WeatherReport, one calendar day per station
//	weather_balloon_reports  BalloonReport, one radiosonde launch
//	users                    User (institutions, private users, admins)
//	technicians              Technician
//	maintenance_logs         MaintenanceLog, append-only
//
// # Units
//
// Sensor values use the units of the upstream open-meteo exports: temperature
// and dewpoint in °C, humidity and cloud cover in %, pressure in hPa,
// precipitation in mm, wind speed in m/s, wind direction in degrees clockwise
// from north, sunshine duration in seconds, soil moisture in m³/m³.
// Geospatial distances are statute miles on a spherical Earth of radius
// 3963.2 miles.
//
// # Embedded time series
//
// A WeatherReport embeds its hourly readings; a BalloonReport embeds its
// ascent profile. Both sequences are ordered by ascending timestamp, and a
// report's reading timestamps must fall within [date, date+24h). The day
// summary is derived, never authoritative: it is recomputed from the readings
// on every write. The ascent profile is the opposite — authoritative telemetry
// that is stored as received (altitude is typically monotone but not enforced).
//
// # Nullability
//
// Sensor fields are pointers. A nil field is an unmeasured sample: it is
// excluded from mean/min/max aggregation but still counted by count. Manual
// observations carry only the fields the observer filled in.
//
// # PII
//
// Private and Admin users have their name and email stored as ciphertext in
// fields that are structurally distinct from the plaintext ones
// (EncryptedName/EncryptedEmail vs. Institution/Contact), so the index layer
// can never index ciphertext by accident. Institutional contact details are
// public and stay plaintext. Decryption happens only in the access layer.
package domain
