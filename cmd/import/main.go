// Command import loads weather data files into a store directory.
//
// It understands two formats:
//
//   - Open-meteo CSV exports: three sections separated by blank lines
//     (station location, hourly readings, daily summaries), imported as one
//     weather report per calendar day.
//   - Radiosonde GeoJSON: a FeatureCollection of Point features with sonde
//     telemetry properties, imported as one balloon report.
//
// Usage:
//
//	go run ./cmd/import \
//	  -data-dir /var/lib/weather-store \
//	  -station-id WS-LON002 -station-name "London Weather Centre" \
//	  -owner-id user-1001 -owner-name "Met Office" -owner-type Institution \
//	  -csv data/london.csv
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dataDir := flag.String("data-dir", "", "store directory")
	stationID := flag.String("station-id", "", "station id for imported documents")
	stationName := flag.String("station-name", "", "station display name")
	ownerID := flag.String("owner-id", "", "owner user id")
	ownerName := flag.String("owner-name", "", "owner display name")
	ownerType := flag.String("owner-type", string(domain.UserInstitution), "owner tenant class")
	csvPath := flag.String("csv", "", "open-meteo CSV export to import")
	geojsonPath := flag.String("geojson", "", "radiosonde GeoJSON file to import")
	launch := flag.String("launch", "", "balloon launch time, RFC 3339 (required with -geojson)")
	flag.Parse()

	if *dataDir == "" || *stationID == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -data-dir, -station-id")
	}
	if *csvPath == "" && *geojsonPath == "" {
		flag.Usage()
		return fmt.Errorf("nothing to import: pass -csv or -geojson")
	}

	st, err := store.Open(store.Options{Dir: *dataDir})
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.EnsureIndexes(ctx); err != nil {
		return err
	}

	owner := domain.OwnerRef{
		OwnerType: domain.UserType(*ownerType),
		UserID:    *ownerID,
		Name:      *ownerName,
	}

	if *csvPath != "" {
		n, err := importCSV(ctx, st, *csvPath, *stationID, *stationName, owner)
		if err != nil {
			return fmt.Errorf("importing %s: %w", *csvPath, err)
		}
		log.Printf("imported %d weather reports from %s", n, *csvPath)
	}

	if *geojsonPath != "" {
		if *launch == "" {
			return fmt.Errorf("-launch is required with -geojson")
		}
		launchTime, err := time.Parse(time.RFC3339, *launch)
		if err != nil {
			return fmt.Errorf("invalid -launch: %w", err)
		}
		id, err := importGeoJSON(ctx, st, *geojsonPath, *stationID, *stationName, owner, launchTime)
		if err != nil {
			return fmt.Errorf("importing %s: %w", *geojsonPath, err)
		}
		log.Printf("imported balloon report %s from %s", id, *geojsonPath)
	}

	return nil
}

// importCSV splits an open-meteo export into its three sections and inserts
// one report per day of hourly readings.
func importCSV(ctx context.Context, st *store.Store, path, stationID, stationName string, owner domain.OwnerRef) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	sections := splitSections(string(raw))
	if len(sections) < 2 {
		return 0, fmt.Errorf("expected at least 2 CSV sections, got %d", len(sections))
	}

	location, err := parseStationSection(sections[0])
	if err != nil {
		return 0, err
	}

	readings, err := parseHourlySection(sections[1])
	if err != nil {
		return 0, err
	}

	// Ensure the station document exists before its reports.
	_, err = st.GetStation(ctx, stationID)
	if err != nil {
		station := &domain.WeatherStation{
			StationID:   stationID,
			Name:        stationName,
			Location:    location,
			Owner:       owner,
			Status:      domain.StatusActive,
			InstalledAt: domain.Now(),
		}
		if err := st.InsertStation(ctx, station); err != nil {
			return 0, err
		}
	}

	byDay := make(map[time.Time][]domain.Reading)
	for _, r := range readings {
		day := domain.Day(r.Timestamp)
		byDay[day] = append(byDay[day], r)
	}
	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	imported := 0
	for _, day := range days {
		report := &domain.WeatherReport{
			Date:     day,
			Location: location,
			Station:  domain.StationRef{StationID: stationID, Name: stationName},
			Owner:    owner,
			Readings: byDay[day],
		}
		if _, err := st.InsertReport(ctx, report); err != nil {
			return imported, fmt.Errorf("report for %s: %w", day.Format("2006-01-02"), err)
		}
		imported++
	}
	return imported, nil
}

// splitSections splits the file on blank lines.
func splitSections(content string) [][]string {
	var sections [][]string
	var current []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				sections = append(sections, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		sections = append(sections, current)
	}
	return sections
}

// parseStationSection reads the single-row location header.
func parseStationSection(lines []string) (domain.Point, error) {
	if len(lines) < 2 {
		return domain.Point{}, fmt.Errorf("station section needs a header and a data row")
	}
	header := strings.Split(lines[0], ",")
	values := strings.Split(lines[1], ",")
	fields := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(values) {
			fields[strings.TrimSpace(h)] = strings.TrimSpace(values[i])
		}
	}
	lat, err := strconv.ParseFloat(fields["latitude"], 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(fields["longitude"], 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("invalid longitude: %w", err)
	}
	return domain.Point{Lon: lon, Lat: lat}, nil
}

// Hourly samples cover one hour.
const hourlySampleDuration = 3600

// parseHourlySection reads the hourly readings. Column headers carry units,
// e.g. "temperature_2m (°C)"; matching is on the name before the unit.
func parseHourlySection(lines []string) ([]domain.Reading, error) {
	reader := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("hourly section has no data rows")
	}

	col := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		name := h
		if cut := strings.Index(h, " ("); cut > 0 {
			name = h[:cut]
		}
		col[strings.TrimSpace(name)] = i
	}

	field := func(row []string, name string) *float64 {
		i, ok := col[name]
		if !ok || i >= len(row) || row[i] == "" {
			return nil
		}
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return nil
		}
		return &v
	}

	readings := make([]domain.Reading, 0, len(rows)-1)
	for _, row := range rows[1:] {
		i, ok := col["time"]
		if !ok || i >= len(row) {
			return nil, fmt.Errorf("hourly section missing time column")
		}
		ts, err := time.Parse("2006-01-02T15:04", row[i])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", row[i], err)
		}
		r := domain.Reading{
			Timestamp:      ts.UTC(),
			SampleDuration: hourlySampleDuration,
			Temp:           field(row, "temperature_2m"),
			Dewpoint:       field(row, "dew_point_2m"),
			Humidity:       field(row, "relative_humidity_2m"),
			Pressure:       field(row, "pressure_msl"),
			Precip:         field(row, "precipitation"),
			CloudCover:     field(row, "cloud_cover"),
			WindSpeed:      field(row, "wind_speed_10m"),
			WindDirection:  field(row, "wind_direction_10m"),
			Sunshine:       field(row, "sunshine_duration"),
			Soil: &domain.SoilProfile{
				Depth0To7Cm: &domain.SoilLayer{
					Temp:     field(row, "soil_temperature_0_to_7cm"),
					Moisture: field(row, "soil_moisture_0_to_7cm"),
				},
				Depth7To28Cm: &domain.SoilLayer{
					Temp:     field(row, "soil_temperature_7_to_28cm"),
					Moisture: field(row, "soil_moisture_7_to_28cm"),
				},
				Depth28To100Cm: &domain.SoilLayer{
					Temp:     field(row, "soil_temperature_28_to_100cm"),
					Moisture: field(row, "soil_moisture_28_to_100cm"),
				},
				Depth100To255Cm: &domain.SoilLayer{
					Temp:     field(row, "soil_temperature_100_to_255cm"),
					Moisture: field(row, "soil_moisture_100_to_255cm"),
				},
			},
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// sondeFeatureCollection is the subset of the radiosonde GeoJSON schema the
// importer reads. Temperatures arrive in Kelvin and wind as u/v components.
type sondeFeatureCollection struct {
	Properties struct {
		Serial    string `json:"sonde_serial"`
		SWVersion string `json:"sonde_swversion"`
	} `json:"properties"`
	Features []struct {
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Time     int64    `json:"time"`
			GPHeight float64  `json:"gpheight"`
			Temp     *float64 `json:"temp"`
			Dewpoint *float64 `json:"dewpoint"`
			Pressure *float64 `json:"pressure"`
			WindU    *float64 `json:"wind_u"`
			WindV    *float64 `json:"wind_v"`
		} `json:"properties"`
	} `json:"features"`
}

// importGeoJSON converts a radiosonde FeatureCollection into one balloon
// report. Non-Point features are skipped.
func importGeoJSON(ctx context.Context, st *store.Store, path, stationID, stationName string, owner domain.OwnerRef, launch time.Time) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var fc sondeFeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return "", fmt.Errorf("parse GeoJSON: %w", err)
	}

	var readings []domain.AscentReading
	for _, f := range fc.Features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) != 3 {
			continue
		}
		r := domain.AscentReading{
			Timestamp: time.Unix(f.Properties.Time, 0).UTC(),
			Location: domain.Point3D{
				Lon: f.Geometry.Coordinates[0],
				Lat: f.Geometry.Coordinates[1],
				Alt: f.Geometry.Coordinates[2],
			},
			GPHeight: f.Properties.GPHeight,
			Pressure: f.Properties.Pressure,
		}
		if f.Properties.Temp != nil {
			c := domain.KelvinToCelsius(*f.Properties.Temp)
			r.Temp = &c
		}
		if f.Properties.Dewpoint != nil {
			c := domain.KelvinToCelsius(*f.Properties.Dewpoint)
			r.Dewpoint = &c
		}
		if f.Properties.WindU != nil && f.Properties.WindV != nil {
			speed, direction := domain.WindFromComponents(*f.Properties.WindU, *f.Properties.WindV)
			r.WindSpeed = &speed
			r.WindDirection = &direction
		}
		readings = append(readings, r)
	}
	if len(readings) == 0 {
		return "", fmt.Errorf("no Point features in %s", path)
	}
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})

	report := &domain.BalloonReport{
		LaunchDate: launch.UTC(),
		Station: domain.GroundStationRef{
			StationID: stationID,
			Name:      stationName,
			Owner:     owner,
		},
		Location: readings[0].Location,
		Radiosonde: domain.Radiosonde{
			Serial:   fc.Properties.Serial,
			Software: fc.Properties.SWVersion,
		},
		Readings: readings,
	}
	return st.InsertBalloonReport(ctx, report)
}
