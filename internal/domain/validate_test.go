package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

func validReport() domain.WeatherReport {
	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return domain.WeatherReport{
		ID:       "rpt-1",
		Date:     day,
		Version:  1,
		Location: domain.Point{Lon: -0.1630249, Lat: 51.493847},
		Station:  domain.StationRef{StationID: "WS-LON002", Name: "Hyde Park"},
		Owner:    domain.OwnerRef{OwnerType: domain.UserInstitution, UserID: "usr-1", Name: "Met Office"},
		Readings: []domain.Reading{
			{Timestamp: day.Add(9 * time.Hour), SampleDuration: 3600, Temp: f(6.5), Humidity: f(76)},
			{Timestamp: day.Add(15 * time.Hour), SampleDuration: 3600, Temp: f(8.2)},
		},
	}
}

func TestWeatherReport_Validate(t *testing.T) {
	r := validReport()
	assert.NoError(t, r.Validate())
}

func TestWeatherReport_Validate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.WeatherReport)
		field  string
	}{
		{
			name:   "missing station id",
			mutate: func(r *domain.WeatherReport) { r.Station.StationID = "" },
			field:  "station.station_id",
		},
		{
			name:   "date not at day granularity",
			mutate: func(r *domain.WeatherReport) { r.Date = r.Date.Add(6 * time.Hour) },
			field:  "date",
		},
		{
			name:   "coordinates out of bounds",
			mutate: func(r *domain.WeatherReport) { r.Location.Lat = 91 },
			field:  "location",
		},
		{
			name:   "missing owner",
			mutate: func(r *domain.WeatherReport) { r.Owner.UserID = "" },
			field:  "owner.user_id",
		},
		{
			name: "reading outside report day",
			mutate: func(r *domain.WeatherReport) {
				r.Readings[1].Timestamp = r.Date.Add(25 * time.Hour)
			},
			field: "readings[1].timestamp",
		},
		{
			name: "readings out of order",
			mutate: func(r *domain.WeatherReport) {
				r.Readings[0], r.Readings[1] = r.Readings[1], r.Readings[0]
			},
			field: "readings[1].timestamp",
		},
		{
			name: "implausible temperature",
			mutate: func(r *domain.WeatherReport) {
				r.Readings[0].Temp = f(99)
			},
			field: "readings[0].temp",
		},
		{
			name: "humidity over 100",
			mutate: func(r *domain.WeatherReport) {
				r.Readings[0].Humidity = f(101)
			},
			field: "readings[0].humidity",
		},
		{
			name: "zero sample duration",
			mutate: func(r *domain.WeatherReport) {
				r.Readings[0].SampleDuration = 0
			},
			field: "readings[0].sample_duration",
		},
		{
			name: "unknown observation category",
			mutate: func(r *domain.WeatherReport) {
				r.Observations = []domain.Observation{{
					Timestamp: r.Date.Add(time.Hour),
					Category:  "Plague of Frogs",
				}}
			},
			field: "observations[0].category",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := validReport()
			tc.mutate(&r)

			err := r.Validate()
			require.Error(t, err)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestBalloonReport_Validate(t *testing.T) {
	launch := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	b := domain.BalloonReport{
		ID:         "bal-1",
		LaunchDate: launch,
		Station:    domain.GroundStationRef{StationID: "GS-BER001", Name: "Lindenberg"},
		Radiosonde: domain.Radiosonde{Serial: "S5041238", Software: "2.02.14"},
		Location:   domain.Point3D{Lon: 14.12, Lat: 52.21, Alt: 112},
		Readings: []domain.AscentReading{
			{Timestamp: launch, Location: domain.Point3D{Lon: 14.12, Lat: 52.21, Alt: 112}, GPHeight: 112, Temp: f(4.1)},
			{Timestamp: launch.Add(time.Minute), Location: domain.Point3D{Lon: 14.13, Lat: 52.22, Alt: 450}, GPHeight: 450, Temp: f(2.0)},
		},
	}
	require.NoError(t, b.Validate())

	b.Readings[1].Timestamp = launch.Add(-time.Minute)
	err := b.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sorted")

	b.Readings[1].Timestamp = launch.Add(time.Minute)
	b.Readings[1].GPHeight = 90000
	assert.Error(t, b.Validate())

	b.Readings[1].GPHeight = 450
	b.Radiosonde.Serial = ""
	assert.Error(t, b.Validate())
}

func TestWeatherStation_Validate(t *testing.T) {
	s := domain.WeatherStation{
		StationID:   "WS-LON002",
		Name:        "Hyde Park",
		Location:    domain.Point{Lon: -0.1630249, Lat: 51.493847},
		Owner:       domain.OwnerRef{OwnerType: domain.UserInstitution, UserID: "usr-1", Name: "Met Office"},
		Status:      domain.StatusActive,
		InstalledAt: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Validate())

	s.Status = "Retired"
	assert.Error(t, s.Validate())

	s.Status = domain.StatusActive
	s.InstalledAt = time.Time{}
	assert.Error(t, s.Validate())
}

func TestStationStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to domain.StationStatus
		want     bool
	}{
		{domain.StatusActive, domain.StatusMaintenance, true},
		{domain.StatusMaintenance, domain.StatusActive, true},
		{domain.StatusActive, domain.StatusDecommissioned, true},
		{domain.StatusDecommissioned, domain.StatusActive, false},
		{domain.StatusDecommissioned, domain.StatusMaintenance, false},
		{domain.StatusDecommissioned, domain.StatusDecommissioned, true},
		{domain.StatusActive, "Retired", false},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		user    domain.User
		wantErr bool
	}{
		{
			name: "private user with encrypted fields",
			user: domain.User{
				UserID:           "usr-p1",
				UserType:         domain.UserPrivate,
				CredentialDigest: "digest",
				DisplayName:      "J. Smith",
				EncryptedName:    "ciphertext",
				EncryptedEmail:   "ciphertext",
			},
		},
		{
			name: "institution with plaintext contact",
			user: domain.User{
				UserID:           "usr-i1",
				UserType:         domain.UserInstitution,
				CredentialDigest: "digest",
				Institution:      "Met Office",
				Contact:          "ops@example.org",
			},
		},
		{
			name: "private user with plaintext institution",
			user: domain.User{
				UserID:           "usr-p2",
				UserType:         domain.UserPrivate,
				CredentialDigest: "digest",
				Institution:      "Met Office",
			},
			wantErr: true,
		},
		{
			name: "institution with encrypted fields",
			user: domain.User{
				UserID:           "usr-i2",
				UserType:         domain.UserInstitution,
				CredentialDigest: "digest",
				EncryptedName:    "ciphertext",
			},
			wantErr: true,
		},
		{
			name: "missing credential digest",
			user: domain.User{
				UserID:   "usr-x",
				UserType: domain.UserPrivate,
			},
			wantErr: true,
		},
		{
			name: "unknown user type",
			user: domain.User{
				UserID:           "usr-y",
				UserType:         "Robot",
				CredentialDigest: "digest",
			},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.user.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMaintenanceLog_Validate(t *testing.T) {
	log := domain.MaintenanceLog{
		ID:        "mnt-1",
		StationID: "WS-LON002",
		TechID:    "tech-1",
		Timestamp: time.Date(2025, 2, 10, 14, 0, 0, 0, time.UTC),
		Activity:  domain.ActivityCalibration,
	}
	require.NoError(t, log.Validate())

	log.Activity = "Vandalism"
	assert.Error(t, log.Validate())

	log.Activity = domain.ActivityRepair
	log.TechID = ""
	assert.Error(t, log.Validate())
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ts := time.Date(2025, 3, 1, 0, 30, 0, 0, loc) // 2025-02-28T23:30Z
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), domain.Day(ts))
	assert.Equal(t, domain.Day(ts), domain.Day(domain.Day(ts)))
}
