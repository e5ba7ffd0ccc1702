package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

// GeoFilter restricts matches to stations within a great-circle radius.
type GeoFilter struct {
	Center      domain.Point
	RadiusMiles float64
}

// ReadingQuery selects reports and the hourly readings inside them. Stages
// always apply in the same order regardless of which fields are set: radius,
// date range, station, owner type, then the per-reading hour window after the
// readings are unwound.
type ReadingQuery struct {
	Near      *GeoFilter
	From      time.Time // inclusive, zero means unbounded
	To        time.Time // inclusive, zero means unbounded
	StationID string
	OwnerType domain.UserType

	// HourFrom/HourTo bound the UTC hour of day of individual readings,
	// half-open [HourFrom, HourTo). Nil means no bound.
	HourFrom *int
	HourTo   *int
}

func (q ReadingQuery) validate() error {
	if !q.From.IsZero() && !q.To.IsZero() && q.From.After(q.To) {
		return &QueryError{Param: "from", Reason: "must not be after to"}
	}
	if q.Near != nil {
		if err := validateRadius(q.Near.Center, q.Near.RadiusMiles); err != nil {
			return err
		}
	}
	if q.HourFrom != nil && (*q.HourFrom < 0 || *q.HourFrom > 23) {
		return &QueryError{Param: "hour_from", Reason: "must be in [0, 23]"}
	}
	if q.HourTo != nil && (*q.HourTo < 1 || *q.HourTo > 24) {
		return &QueryError{Param: "hour_to", Reason: "must be in [1, 24]"}
	}
	if q.HourFrom != nil && q.HourTo != nil && *q.HourFrom >= *q.HourTo {
		return &QueryError{Param: "hour_from", Reason: "must be less than hour_to"}
	}
	return nil
}

// agg accumulates one sensor field across unwound readings, ignoring null
// samples.
type agg struct {
	n   int
	sum float64
	min float64
	max float64
}

func (a *agg) add(v *float64) {
	if v == nil {
		return
	}
	if a.n == 0 {
		a.min, a.max = *v, *v
	} else {
		a.min = math.Min(a.min, *v)
		a.max = math.Max(a.max, *v)
	}
	a.n++
	a.sum += *v
}

func (a *agg) avg() *float64 {
	if a.n == 0 {
		return nil
	}
	v := a.sum / float64(a.n)
	return &v
}

func (a *agg) minimum() *float64 {
	if a.n == 0 {
		return nil
	}
	v := a.min
	return &v
}

func (a *agg) maximum() *float64 {
	if a.n == 0 {
		return nil
	}
	v := a.max
	return &v
}

func (a *agg) total() *float64 {
	if a.n == 0 {
		return nil
	}
	v := a.sum
	return &v
}

// ReadingStats are aggregates over the unwound readings matched by a query.
// Count is the number of matched readings; the per-sensor aggregates skip
// null samples, so a field can be nil even when Count is positive.
type ReadingStats struct {
	Count       int      `json:"count"`
	AvgTemp     *float64 `json:"avg_temp,omitempty"`
	MinTemp     *float64 `json:"min_temp,omitempty"`
	MaxTemp     *float64 `json:"max_temp,omitempty"`
	AvgHumidity *float64 `json:"avg_humidity,omitempty"`
	AvgPressure *float64 `json:"avg_pressure,omitempty"`
	AvgWind     *float64 `json:"avg_wind_speed,omitempty"`
	MaxWind     *float64 `json:"max_wind_speed,omitempty"`
	TotalPrecip *float64 `json:"total_precipitation,omitempty"`
}

// StationStats are per-station aggregates from a grouped query.
type StationStats struct {
	StationID string `json:"station_id"`
	Name      string `json:"name"`
	ReadingStats
}

// StationDayStats are per-station, per-day aggregates from a grouped query.
type StationDayStats struct {
	StationID string    `json:"station_id"`
	Date      time.Time `json:"date"`
	ReadingStats
}

type statsAcc struct {
	count    int
	temp     agg
	humidity agg
	pressure agg
	wind     agg
	precip   agg
}

func (a *statsAcc) add(r domain.Reading) {
	a.count++
	a.temp.add(r.Temp)
	a.humidity.add(r.Humidity)
	a.pressure.add(r.Pressure)
	a.wind.add(r.WindSpeed)
	a.precip.add(r.Precip)
}

func (a *statsAcc) stats() ReadingStats {
	return ReadingStats{
		Count:       a.count,
		AvgTemp:     a.temp.avg(),
		MinTemp:     a.temp.minimum(),
		MaxTemp:     a.temp.maximum(),
		AvgHumidity: a.humidity.avg(),
		AvgPressure: a.pressure.avg(),
		AvgWind:     a.wind.avg(),
		MaxWind:     a.wind.maximum(),
		TotalPrecip: a.precip.total(),
	}
}

// AggregateReadings runs the fixed pipeline and returns aggregates over every
// matched reading.
func (s *Store) AggregateReadings(ctx context.Context, q ReadingQuery) (*ReadingStats, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues("aggregate_readings").Observe(time.Since(start).Seconds())
	}()

	var acc statsAcc
	err := s.forEachMatchedReading(ctx, q, func(_ *domain.WeatherReport, r domain.Reading) {
		acc.add(r)
	})
	if err != nil {
		return nil, err
	}
	stats := acc.stats()
	return &stats, nil
}

// AggregateReadingsByStation runs the fixed pipeline grouped by station,
// returning one row per station ordered by station id.
func (s *Store) AggregateReadingsByStation(ctx context.Context, q ReadingQuery) ([]StationStats, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues("aggregate_by_station").Observe(time.Since(start).Seconds())
	}()

	accs := make(map[string]*statsAcc)
	names := make(map[string]string)
	err := s.forEachMatchedReading(ctx, q, func(report *domain.WeatherReport, r domain.Reading) {
		id := report.Station.StationID
		acc, ok := accs[id]
		if !ok {
			acc = &statsAcc{}
			accs[id] = acc
			names[id] = report.Station.Name
		}
		acc.add(r)
	})
	if err != nil {
		return nil, err
	}

	out := make([]StationStats, 0, len(accs))
	for id, acc := range accs {
		out = append(out, StationStats{StationID: id, Name: names[id], ReadingStats: acc.stats()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

// AggregateReadingsByStationAndDay runs the fixed pipeline grouped by station
// and calendar day, returning one row per (station, day) ordered by station id
// then date ascending.
func (s *Store) AggregateReadingsByStationAndDay(ctx context.Context, q ReadingQuery) ([]StationDayStats, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues("aggregate_by_station_day").Observe(time.Since(start).Seconds())
	}()

	type groupKey struct {
		stationID string
		date      time.Time
	}
	accs := make(map[groupKey]*statsAcc)
	err := s.forEachMatchedReading(ctx, q, func(report *domain.WeatherReport, r domain.Reading) {
		key := groupKey{stationID: report.Station.StationID, date: report.Date}
		acc, ok := accs[key]
		if !ok {
			acc = &statsAcc{}
			accs[key] = acc
		}
		acc.add(r)
	})
	if err != nil {
		return nil, err
	}

	out := make([]StationDayStats, 0, len(accs))
	for key, acc := range accs {
		out = append(out, StationDayStats{StationID: key.stationID, Date: key.date, ReadingStats: acc.stats()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// forEachMatchedReading applies the pipeline stages in order and invokes fn
// once per unwound reading. A report with no readings contributes nothing.
func (s *Store) forEachMatchedReading(ctx context.Context, q ReadingQuery, fn func(*domain.WeatherReport, domain.Reading)) error {
	reports, err := s.matchReports(ctx, q)
	if err != nil {
		return err
	}
	for i := range reports {
		report := &reports[i]
		for _, r := range report.Readings {
			if q.HourFrom != nil && r.Timestamp.UTC().Hour() < *q.HourFrom {
				continue
			}
			if q.HourTo != nil && r.Timestamp.UTC().Hour() >= *q.HourTo {
				continue
			}
			fn(report, r)
		}
	}
	return nil
}

// matchReports applies the report-level stages: radius, date range, station,
// owner type.
func (s *Store) matchReports(ctx context.Context, q ReadingQuery) ([]domain.WeatherReport, error) {
	var reports []domain.WeatherReport
	if q.Near != nil {
		matches, err := s.FindReportsWithinRadius(ctx, q.Near.Center, q.Near.RadiusMiles, 0)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			reports = append(reports, m.Report)
		}
	} else if q.StationID != "" {
		from, to := q.From, q.To
		if from.IsZero() {
			from = time.Unix(0, 0).UTC()
		}
		if to.IsZero() {
			to = domain.Now().AddDate(100, 0, 0)
		} else {
			// ReportsForStation is half-open; widen so the To day survives
			// until the inclusive filter below.
			to = to.AddDate(0, 0, 1)
		}
		var err error
		reports, err = s.ReportsForStation(ctx, q.StationID, from, to)
		if err != nil {
			return nil, err
		}
	} else {
		err := s.view(ctx, func(txn *badger.Txn) error {
			return forEachDoc(txn, ColReports, func(id string, val []byte) error {
				var report domain.WeatherReport
				if err := json.Unmarshal(val, &report); err != nil {
					return err
				}
				reports = append(reports, report)
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	filtered := reports[:0]
	for _, report := range reports {
		if !q.From.IsZero() && report.Date.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && report.Date.After(q.To) {
			continue
		}
		if q.StationID != "" && report.Station.StationID != q.StationID {
			continue
		}
		if q.OwnerType != "" && report.Owner.OwnerType != q.OwnerType {
			continue
		}
		filtered = append(filtered, report)
	}
	return filtered, nil
}

// ExtremeRecord is one classified day persisted to the extremes collection.
// The id is <station id>-<YYYYMMDD> so reruns overwrite rather than append.
type ExtremeRecord struct {
	ID          string    `json:"id"`
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name"`
	Date        time.Time `json:"date"`
	Label       string    `json:"label"`
	TempMin     *float64  `json:"temp_min,omitempty"`
	TempMax     *float64  `json:"temp_max,omitempty"`
	WindMax     *float64  `json:"wind_speed_max,omitempty"`
	PrecipTotal *float64  `json:"precipitation_total,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// BuildExtremesReport classifies every report dated in [from, to) and merges
// the results into the weather_extremes collection. Days classified Normal
// are skipped. Returns the records written, ordered by id.
func (s *Store) BuildExtremesReport(ctx context.Context, from, to time.Time) ([]ExtremeRecord, error) {
	if !from.Before(to) {
		return nil, &QueryError{Param: "from", Reason: "must be before to"}
	}
	// The query date range is inclusive; back off a nanosecond to keep [from, to).
	reports, err := s.matchReports(ctx, ReadingQuery{From: from, To: to.Add(-time.Nanosecond)})
	if err != nil {
		return nil, err
	}

	now := domain.Now()
	var records []ExtremeRecord
	for _, report := range reports {
		if report.DaySummary == nil {
			continue
		}
		label := domain.Classify(*report.DaySummary, domain.ExtremeWeatherRules)
		if label == domain.LabelNormal {
			continue
		}
		records = append(records, ExtremeRecord{
			ID:          fmt.Sprintf("%s-%s", report.Station.StationID, report.Date.Format("20060102")),
			StationID:   report.Station.StationID,
			StationName: report.Station.Name,
			Date:        report.Date,
			Label:       label,
			TempMin:     report.DaySummary.TempMin,
			TempMax:     report.DaySummary.TempMax,
			WindMax:     report.DaySummary.WindSpeedMax,
			PrecipTotal: report.DaySummary.PrecipSum,
			GeneratedAt: now,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	err = s.update(ctx, func(txn *badger.Txn) error {
		for i := range records {
			if err := s.setDoc(txn, ColExtremes, records[i].ID, &records[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ExtremeRecords returns the persisted extremes in [from, to), ordered by id.
func (s *Store) ExtremeRecords(ctx context.Context, from, to time.Time) ([]ExtremeRecord, error) {
	var records []ExtremeRecord
	err := s.view(ctx, func(txn *badger.Txn) error {
		return forEachDoc(txn, ColExtremes, func(id string, val []byte) error {
			var rec ExtremeRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			if rec.Date.Before(from) || !rec.Date.Before(to) {
				return nil
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// AfternoonTrend compares the 09:00 and 15:00 UTC temperatures of one report
// day, in Fahrenheit rounded to one decimal.
type AfternoonTrend struct {
	StationID  string    `json:"station_id"`
	Date       time.Time `json:"date"`
	MorningF   float64   `json:"morning_f"`
	AfternoonF float64   `json:"afternoon_f"`
	DeltaF     float64   `json:"delta_f"`
	Label      string    `json:"label"`
}

func toFahrenheit(c float64) float64 {
	return math.Round((c*9/5+32)*10) / 10
}

// CoolerAfternoons returns the days in [from, to) where the 15:00 reading was
// strictly colder than the 09:00 reading. Days missing either sample are
// skipped. Results are ordered by date, then station id.
func (s *Store) CoolerAfternoons(ctx context.Context, from, to time.Time) ([]AfternoonTrend, error) {
	if !from.Before(to) {
		return nil, &QueryError{Param: "from", Reason: "must be before to"}
	}
	// The query date range is inclusive; back off a nanosecond to keep [from, to).
	reports, err := s.matchReports(ctx, ReadingQuery{From: from, To: to.Add(-time.Nanosecond)})
	if err != nil {
		return nil, err
	}

	var trends []AfternoonTrend
	for _, report := range reports {
		morning := tempAtHour(report.Readings, 9)
		afternoon := tempAtHour(report.Readings, 15)
		if morning == nil || afternoon == nil {
			continue
		}
		am, pm := toFahrenheit(*morning), toFahrenheit(*afternoon)
		label := domain.ClassifyAfternoonTrend(am, pm)
		if label != domain.LabelCoolerAfternoon {
			continue
		}
		trends = append(trends, AfternoonTrend{
			StationID:  report.Station.StationID,
			Date:       report.Date,
			MorningF:   am,
			AfternoonF: pm,
			DeltaF:     math.Round((pm-am)*10) / 10,
			Label:      label,
		})
	}
	sort.Slice(trends, func(i, j int) bool {
		if !trends[i].Date.Equal(trends[j].Date) {
			return trends[i].Date.Before(trends[j].Date)
		}
		return trends[i].StationID < trends[j].StationID
	})
	return trends, nil
}

// tempAtHour returns the first non-null temperature sample in the given UTC
// hour of day.
func tempAtHour(readings []domain.Reading, hour int) *float64 {
	for _, r := range readings {
		if r.Timestamp.UTC().Hour() == hour && r.Temp != nil {
			return r.Temp
		}
	}
	return nil
}

// StorageUsage is the serialized footprint of one owner's reports in one
// calendar month.
type StorageUsage struct {
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name"`
	Documents int    `json:"documents"`
	Bytes     int64  `json:"bytes"`
}

// StorageUsageByOwner sizes every report by its serialized form, grouped by
// calendar month and owner. Ordered by (year, month, owner id).
func (s *Store) StorageUsageByOwner(ctx context.Context) ([]StorageUsage, error) {
	type key struct {
		year, month int
		ownerID     string
	}
	accs := make(map[key]*StorageUsage)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return forEachDoc(txn, ColReports, func(id string, val []byte) error {
			var r struct {
				Date  time.Time `json:"date"`
				Owner struct {
					UserID string `json:"user_id"`
					Name   string `json:"name"`
				} `json:"owner"`
			}
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			k := key{r.Date.Year(), int(r.Date.Month()), r.Owner.UserID}
			u, ok := accs[k]
			if !ok {
				u = &StorageUsage{Year: k.year, Month: k.month, OwnerID: k.ownerID, OwnerName: r.Owner.Name}
				accs[k] = u
			}
			u.Documents++
			u.Bytes += int64(len(val))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]StorageUsage, 0, len(accs))
	for _, u := range accs {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	return out, nil
}

// TopStorageUsers returns the n owners with the largest total footprint,
// descending. Ties break on owner id.
func (s *Store) TopStorageUsers(ctx context.Context, n int) ([]StorageUsage, error) {
	if n < 1 {
		return nil, &QueryError{Param: "n", Reason: "must be >= 1"}
	}
	monthly, err := s.StorageUsageByOwner(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]*StorageUsage)
	for _, u := range monthly {
		t, ok := totals[u.OwnerID]
		if !ok {
			t = &StorageUsage{OwnerID: u.OwnerID, OwnerName: u.OwnerName}
			totals[u.OwnerID] = t
		}
		t.Documents += u.Documents
		t.Bytes += u.Bytes
	}
	out := make([]StorageUsage, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].OwnerID < out[j].OwnerID
	})
	return clampLimit(out, n), nil
}
