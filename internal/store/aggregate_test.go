package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

func intp(v int) *int { return &v }

// seedReports inserts two stations with a few days of readings each and
// returns the store.
func seedReports(t *testing.T) *store.Store {
	t.Helper()
	s := newTestStore(t)
	ctx := context.Background()
	londonStations(t, s)
	require.NoError(t, s.EnsureIndexes(ctx))

	hyde := hydeParkStation()
	greenwich := &domain.WeatherStation{
		StationID: "WS-LON001",
		Name:      "Greenwich",
		Location:  domain.Point{Lon: -0.0005, Lat: 51.4769},
		Owner:     metOffice,
	}

	d1, d2 := day("2025-03-01"), day("2025-03-02")
	inserts := []*domain.WeatherReport{
		reportFor(hyde, d1,
			readingAt(d1, 9, f(4.0), f(80)),
			readingAt(d1, 15, f(8.0), f(70)),
		),
		reportFor(hyde, d2,
			readingAt(d2, 9, f(10.0), nil),
			readingAt(d2, 15, f(6.0), nil),
		),
		reportFor(greenwich, d1,
			readingAt(d1, 9, f(6.0), f(75)),
		),
	}
	for _, r := range inserts {
		_, err := s.InsertReport(ctx, r)
		require.NoError(t, err)
	}
	return s
}

func TestAggregateReadings_Filters(t *testing.T) {
	s := seedReports(t)
	ctx := context.Background()

	t.Run("all readings", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{})
		require.NoError(t, err)
		assert.Equal(t, 5, stats.Count)
		assert.InDelta(t, 6.8, *stats.AvgTemp, 1e-9)
		assert.InDelta(t, 4.0, *stats.MinTemp, 1e-9)
		assert.InDelta(t, 10.0, *stats.MaxTemp, 1e-9)
		// Humidity skips the null samples.
		assert.InDelta(t, 75.0, *stats.AvgHumidity, 1e-9)
	})

	t.Run("by station", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{StationID: "WS-LON001"})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Count)
		assert.InDelta(t, 6.0, *stats.AvgTemp, 1e-9)
	})

	t.Run("date range is inclusive on both ends", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{
			From: day("2025-03-01"),
			To:   day("2025-03-01"),
		})
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Count)

		stats, err = s.AggregateReadings(ctx, store.ReadingQuery{
			From: day("2025-03-01"),
			To:   day("2025-03-02"),
		})
		require.NoError(t, err)
		assert.Equal(t, 5, stats.Count)
	})

	t.Run("hour window", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{
			StationID: "WS-LON002",
			HourFrom:  intp(12),
			HourTo:    intp(18),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Count)
		assert.InDelta(t, 7.0, *stats.AvgTemp, 1e-9)
	})

	t.Run("owner type", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{OwnerType: domain.UserPrivate})
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Count)
		assert.Nil(t, stats.AvgTemp)
	})

	t.Run("radius", func(t *testing.T) {
		stats, err := s.AggregateReadings(ctx, store.ReadingQuery{
			Near: &store.GeoFilter{Center: domain.Point{Lon: -0.1278, Lat: 51.5074}, RadiusMiles: 3},
		})
		require.NoError(t, err)
		// Only Hyde Park is within 3 miles of central London.
		assert.Equal(t, 4, stats.Count)
	})
}

func TestAggregateReadings_BadQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var qerr *store.QueryError
	_, err := s.AggregateReadings(ctx, store.ReadingQuery{From: day("2025-03-02"), To: day("2025-03-01")})
	assert.ErrorAs(t, err, &qerr)

	_, err = s.AggregateReadings(ctx, store.ReadingQuery{HourFrom: intp(-1)})
	assert.ErrorAs(t, err, &qerr)

	_, err = s.AggregateReadings(ctx, store.ReadingQuery{HourFrom: intp(12), HourTo: intp(12)})
	assert.ErrorAs(t, err, &qerr)

	_, err = s.AggregateReadings(ctx, store.ReadingQuery{HourTo: intp(25)})
	assert.ErrorAs(t, err, &qerr)

	_, err = s.AggregateReadings(ctx, store.ReadingQuery{
		Near: &store.GeoFilter{Center: domain.Point{}, RadiusMiles: -1},
	})
	assert.ErrorAs(t, err, &qerr)
}

func TestAggregateReadingsByStation(t *testing.T) {
	s := seedReports(t)
	ctx := context.Background()

	rows, err := s.AggregateReadingsByStation(ctx, store.ReadingQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Ordered by station id.
	assert.Equal(t, "WS-LON001", rows[0].StationID)
	assert.Equal(t, "Greenwich", rows[0].Name)
	assert.Equal(t, 1, rows[0].Count)

	assert.Equal(t, "WS-LON002", rows[1].StationID)
	assert.Equal(t, 4, rows[1].Count)
	assert.InDelta(t, 7.0, *rows[1].AvgTemp, 1e-9)
}

func TestAggregateReadingsByStationAndDay(t *testing.T) {
	s := seedReports(t)
	ctx := context.Background()

	rows, err := s.AggregateReadingsByStationAndDay(ctx, store.ReadingQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// One row per (station, day), ordered by station id then date.
	assert.Equal(t, "WS-LON001", rows[0].StationID)
	assert.True(t, rows[0].Date.Equal(day("2025-03-01")))
	assert.Equal(t, 1, rows[0].Count)
	assert.InDelta(t, 6.0, *rows[0].AvgTemp, 1e-9)

	assert.Equal(t, "WS-LON002", rows[1].StationID)
	assert.True(t, rows[1].Date.Equal(day("2025-03-01")))
	assert.Equal(t, 2, rows[1].Count)
	assert.InDelta(t, 6.0, *rows[1].AvgTemp, 1e-9)
	assert.InDelta(t, 75.0, *rows[1].AvgHumidity, 1e-9)

	assert.Equal(t, "WS-LON002", rows[2].StationID)
	assert.True(t, rows[2].Date.Equal(day("2025-03-02")))
	assert.Equal(t, 2, rows[2].Count)
	assert.InDelta(t, 8.0, *rows[2].AvgTemp, 1e-9)
	assert.Nil(t, rows[2].AvgHumidity)

	t.Run("filters apply before grouping", func(t *testing.T) {
		rows, err := s.AggregateReadingsByStationAndDay(ctx, store.ReadingQuery{StationID: "WS-LON002"})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "WS-LON002", rows[0].StationID)
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		var qerr *store.QueryError
		_, err := s.AggregateReadingsByStationAndDay(ctx, store.ReadingQuery{
			From: day("2025-03-02"),
			To:   day("2025-03-01"),
		})
		assert.ErrorAs(t, err, &qerr)
	})
}

func TestBuildExtremesReport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	station := hydeParkStation()
	require.NoError(t, s.InsertStation(ctx, station))

	d1, d2, d3 := day("2025-03-01"), day("2025-03-02"), day("2025-03-03")

	cold := reportFor(station, d1, readingAt(d1, 0, f(-8), nil))
	storm := reportFor(station, d2, domain.Reading{
		Timestamp:      d2,
		SampleDuration: 3600,
		WindSpeed:      f(14),
		Precip:         f(20),
	})
	mild := reportFor(station, d3, readingAt(d3, 0, f(12), nil))

	for _, r := range []*domain.WeatherReport{cold, storm, mild} {
		_, err := s.InsertReport(ctx, r)
		require.NoError(t, err)
	}

	records, err := s.BuildExtremesReport(ctx, d1, day("2025-04-01"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Ordered by id: <station>-<YYYYMMDD>.
	assert.Equal(t, "WS-LON002-20250301", records[0].ID)
	assert.Equal(t, domain.LabelSevereCold, records[0].Label)
	assert.InDelta(t, -8, *records[0].TempMin, 1e-9)

	assert.Equal(t, "WS-LON002-20250302", records[1].ID)
	assert.Equal(t, domain.LabelStorm, records[1].Label)
	assert.InDelta(t, 20, *records[1].PrecipTotal, 1e-9)

	// Reruns overwrite rather than append.
	again, err := s.BuildExtremesReport(ctx, d1, day("2025-04-01"))
	require.NoError(t, err)
	assert.Len(t, again, 2)

	stored, err := s.ExtremeRecords(ctx, d1, day("2025-04-01"))
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	var qerr *store.QueryError
	_, err = s.BuildExtremesReport(ctx, d2, d1)
	assert.ErrorAs(t, err, &qerr)
}

func TestCoolerAfternoons(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	station := hydeParkStation()
	require.NoError(t, s.InsertStation(ctx, station))

	d1, d2, d3 := day("2025-03-01"), day("2025-03-02"), day("2025-03-03")
	inserts := []*domain.WeatherReport{
		// Afternoon colder than morning.
		reportFor(station, d1, readingAt(d1, 9, f(10.0), nil), readingAt(d1, 15, f(6.0), nil)),
		// Normal warming.
		reportFor(station, d2, readingAt(d2, 9, f(4.0), nil), readingAt(d2, 15, f(9.0), nil)),
		// Missing the 15:00 sample; skipped.
		reportFor(station, d3, readingAt(d3, 9, f(4.0), nil)),
	}
	for _, r := range inserts {
		_, err := s.InsertReport(ctx, r)
		require.NoError(t, err)
	}

	trends, err := s.CoolerAfternoons(ctx, d1, day("2025-04-01"))
	require.NoError(t, err)
	require.Len(t, trends, 1)

	got := trends[0]
	assert.Equal(t, "WS-LON002", got.StationID)
	assert.Equal(t, d1, got.Date)
	assert.Equal(t, domain.LabelCoolerAfternoon, got.Label)
	assert.InDelta(t, 50.0, got.MorningF, 1e-9)
	assert.InDelta(t, 42.8, got.AfternoonF, 1e-9)
	assert.InDelta(t, -7.2, got.DeltaF, 1e-9)
}

func TestCoolerAfternoons_EqualTemperaturesExcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	station := hydeParkStation()
	require.NoError(t, s.InsertStation(ctx, station))

	d := day("2025-03-01")
	_, err := s.InsertReport(ctx, reportFor(station, d,
		readingAt(d, 9, f(7.0), nil),
		readingAt(d, 15, f(7.0), nil),
	))
	require.NoError(t, err)

	trends, err := s.CoolerAfternoons(ctx, d, day("2025-04-01"))
	require.NoError(t, err)
	assert.Empty(t, trends)
}

func TestStorageUsageByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	station := hydeParkStation()
	require.NoError(t, s.InsertStation(ctx, station))

	other := hydeParkStation()
	other.StationID = "WS-LON009"
	other.Owner = domain.OwnerRef{OwnerType: domain.UserPrivate, UserID: "usr-jane", Name: "Jane"}
	require.NoError(t, s.InsertStation(ctx, other))

	days := []struct {
		station *domain.WeatherStation
		date    string
	}{
		{station, "2025-02-28"},
		{station, "2025-03-01"},
		{station, "2025-03-02"},
		{other, "2025-03-01"},
	}
	for _, d := range days {
		dd := day(d.date)
		_, err := s.InsertReport(ctx, reportFor(d.station, dd, readingAt(dd, 0, f(4), nil)))
		require.NoError(t, err)
	}

	usage, err := s.StorageUsageByOwner(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 3)

	// Ordered by (year, month, owner id).
	assert.Equal(t, 2, usage[0].Month)
	assert.Equal(t, "usr-met", usage[0].OwnerID)
	assert.Equal(t, 1, usage[0].Documents)

	assert.Equal(t, 3, usage[1].Month)
	assert.Equal(t, "usr-jane", usage[1].OwnerID)

	assert.Equal(t, 3, usage[2].Month)
	assert.Equal(t, "usr-met", usage[2].OwnerID)
	assert.Equal(t, 2, usage[2].Documents)
	assert.Positive(t, usage[2].Bytes)
}

func TestTopStorageUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	station := hydeParkStation()
	require.NoError(t, s.InsertStation(ctx, station))

	other := hydeParkStation()
	other.StationID = "WS-LON009"
	other.Owner = domain.OwnerRef{OwnerType: domain.UserPrivate, UserID: "usr-jane", Name: "Jane"}
	require.NoError(t, s.InsertStation(ctx, other))

	for _, d := range []string{"2025-03-01", "2025-03-02"} {
		dd := day(d)
		_, err := s.InsertReport(ctx, reportFor(station, dd, readingAt(dd, 0, f(4), nil)))
		require.NoError(t, err)
	}
	dd := day("2025-03-01")
	_, err := s.InsertReport(ctx, reportFor(other, dd, readingAt(dd, 0, f(4), nil)))
	require.NoError(t, err)

	top, err := s.TopStorageUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "usr-met", top[0].OwnerID)
	assert.Equal(t, 2, top[0].Documents)
	assert.Greater(t, top[0].Bytes, top[1].Bytes)

	top, err = s.TopStorageUsers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	var qerr *store.QueryError
	_, err = s.TopStorageUsers(ctx, 0)
	assert.ErrorAs(t, err, &qerr)
}
