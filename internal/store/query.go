package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

// GetStation returns the station with the given id.
func (s *Store) GetStation(ctx context.Context, stationID string) (*domain.WeatherStation, error) {
	var station domain.WeatherStation
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, ColStations, stationID, &station)
	})
	if err != nil {
		return nil, err
	}
	return &station, nil
}

// GetReport returns the report with the given id.
func (s *Store) GetReport(ctx context.Context, id string) (*domain.WeatherReport, error) {
	var report domain.WeatherReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, ColReports, id, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetReportForDay returns the single report for a station and calendar day.
func (s *Store) GetReportForDay(ctx context.Context, stationID string, day time.Time) (*domain.WeatherReport, error) {
	var report domain.WeatherReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(uniqueKey(ColReports, reportUniqueKey(stationID, domain.Day(day))))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getDoc(txn, ColReports, id, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetBalloonReport returns the balloon report with the given id.
func (s *Store) GetBalloonReport(ctx context.Context, id string) (*domain.BalloonReport, error) {
	var report domain.BalloonReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, ColBalloons, id, &report)
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetUser returns the user with the given id. PII fields remain sealed; use
// the access layer to read them.
func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, ColUsers, userID, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetTechnician returns the technician with the given id.
func (s *Store) GetTechnician(ctx context.Context, techID string) (*domain.Technician, error) {
	var tech domain.Technician
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getDoc(txn, ColTechnicians, techID, &tech)
	})
	if err != nil {
		return nil, err
	}
	return &tech, nil
}

// StationDistance pairs a station with its great-circle distance from the
// search center.
type StationDistance struct {
	Station       domain.WeatherStation
	DistanceMiles float64
}

// ReportDistance pairs a report with its great-circle distance from the
// search center.
type ReportDistance struct {
	Report        domain.WeatherReport
	DistanceMiles float64
}

// FindStationsWithinRadius returns stations within radiusMiles of center,
// ordered by ascending distance with station id as tie-break. limit <= 0
// means no limit. The limit is applied after sorting, so the nearest
// documents are always the ones returned.
func (s *Store) FindStationsWithinRadius(ctx context.Context, center domain.Point, radiusMiles float64, limit int) ([]StationDistance, error) {
	if err := validateRadius(center, radiusMiles); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues("stations_within_radius").Observe(time.Since(start).Seconds())
	}()

	var out []StationDistance
	err := s.view(ctx, func(txn *badger.Txn) error {
		return s.geoScan(txn, ColStations, IdxStationLocation, center, radiusMiles, func(id string) error {
			var station domain.WeatherStation
			if err := getDoc(txn, ColStations, id, &station); err != nil {
				return err
			}
			d := center.DistanceMiles(station.Location)
			if d <= radiusMiles {
				out = append(out, StationDistance{Station: station, DistanceMiles: d})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMiles != out[j].DistanceMiles {
			return out[i].DistanceMiles < out[j].DistanceMiles
		}
		return out[i].Station.StationID < out[j].Station.StationID
	})
	return clampLimit(out, limit), nil
}

// FindReportsWithinRadius returns reports whose station location lies within
// radiusMiles of center, ordered by ascending distance with station id then
// report id as tie-breaks.
func (s *Store) FindReportsWithinRadius(ctx context.Context, center domain.Point, radiusMiles float64, limit int) ([]ReportDistance, error) {
	if err := validateRadius(center, radiusMiles); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.metrics.QueryDuration.WithLabelValues("reports_within_radius").Observe(time.Since(start).Seconds())
	}()

	var out []ReportDistance
	err := s.view(ctx, func(txn *badger.Txn) error {
		return s.geoScan(txn, ColReports, IdxReportLocation, center, radiusMiles, func(id string) error {
			var report domain.WeatherReport
			if err := getDoc(txn, ColReports, id, &report); err != nil {
				return err
			}
			d := center.DistanceMiles(report.Location)
			if d <= radiusMiles {
				out = append(out, ReportDistance{Report: report, DistanceMiles: d})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMiles != out[j].DistanceMiles {
			return out[i].DistanceMiles < out[j].DistanceMiles
		}
		if out[i].Report.Station.StationID != out[j].Report.Station.StationID {
			return out[i].Report.Station.StationID < out[j].Report.Station.StationID
		}
		return out[i].Report.ID < out[j].Report.ID
	})
	return clampLimit(out, limit), nil
}

func validateRadius(center domain.Point, radiusMiles float64) error {
	if !center.ValidCoordinates() {
		return &QueryError{Param: "center", Reason: "coordinates out of range"}
	}
	if radiusMiles <= 0 {
		return &QueryError{Param: "radius", Reason: "must be positive"}
	}
	return nil
}

func clampLimit[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// geoScan visits every candidate document id in the cells covering the
// search circle. Callers apply the exact distance test; the cells only bound
// the scan. Falls back to a full collection scan when the geo index has not
// been built.
func (s *Store) geoScan(txn *badger.Txn, collection, index string, center domain.Point, radiusMiles float64, visit func(id string) error) error {
	if !s.indexReady(collection, index) {
		s.metrics.FullScans.WithLabelValues(collection).Inc()
		return forEachDoc(txn, collection, func(id string, _ []byte) error {
			return visit(id)
		})
	}

	seen := make(map[string]struct{})
	for _, cell := range geoCellsForRadius(center, radiusMiles) {
		prefix := append(indexPrefix(collection, index), cell...)
		prefix = append(prefix, keySep)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			id := idFromIndexEntry(it.Item().Key())
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if err := visit(id); err != nil {
				it.Close()
				return err
			}
		}
		it.Close()
	}
	return nil
}

func (s *Store) indexReady(collection, index string) bool {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return s.indexes[collection+"/"+index]
}

// decTimeDesc recovers the timestamp from a descending-encoded component.
func decTimeDesc(buf []byte) time.Time {
	var raw [8]byte
	copy(raw[:], buf)
	for i := range raw {
		raw[i] = ^raw[i]
	}
	nanos := int64(binary.BigEndian.Uint64(raw[:])) - timeOffset
	return time.Unix(0, nanos).UTC()
}

// reportIDsForStation scans the station+date index for report ids with dates
// in [from, to). Ids come back in descending date order. Falls back to a full
// collection scan before the index is backfilled.
func (s *Store) reportIDsForStation(txn *badger.Txn, stationID string, from, to time.Time) ([]string, error) {
	if !s.indexReady(ColReports, IdxReportStationDate) {
		return s.scanReportIDsForStation(txn, stationID, from, to)
	}
	prefix := append(indexPrefix(ColReports, IdxReportStationDate), encString(stationID)...)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		rest := key[len(prefix):]
		if len(rest) < 8 {
			continue
		}
		date := decTimeDesc(rest[:8])
		if date.Before(from) || !date.Before(to) {
			continue
		}
		ids = append(ids, idFromIndexEntry(key))
	}
	return ids, nil
}

func (s *Store) scanReportIDsForStation(txn *badger.Txn, stationID string, from, to time.Time) ([]string, error) {
	s.metrics.FullScans.WithLabelValues(ColReports).Inc()
	type match struct {
		id   string
		date time.Time
	}
	var matches []match
	err := forEachDoc(txn, ColReports, func(id string, val []byte) error {
		var r struct {
			Date    time.Time `json:"date"`
			Station struct {
				StationID string `json:"station_id"`
			} `json:"station"`
		}
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		if r.Station.StationID != stationID || r.Date.Before(from) || !r.Date.Before(to) {
			return nil
		}
		matches = append(matches, match{id: id, date: r.Date})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].date.After(matches[j].date) })
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return ids, nil
}

// ReportsForStation returns the station's reports with dates in [from, to),
// most recent first.
func (s *Store) ReportsForStation(ctx context.Context, stationID string, from, to time.Time) ([]domain.WeatherReport, error) {
	if !from.Before(to) {
		return nil, &QueryError{Param: "from", Reason: "must be before to"}
	}
	var reports []domain.WeatherReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := s.reportIDsForStation(txn, stationID, from, to)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var report domain.WeatherReport
			if err := getDoc(txn, ColReports, id, &report); err != nil {
				return err
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// CountReports returns the number of reports for a station in [from, to).
func (s *Store) CountReports(ctx context.Context, stationID string, from, to time.Time) (int, error) {
	if !from.Before(to) {
		return 0, &QueryError{Param: "from", Reason: "must be before to"}
	}
	var count int
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := s.reportIDsForStation(txn, stationID, from, to)
		if err != nil {
			return err
		}
		count = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// BalloonReportsForStation returns a station's balloon reports, most recent
// launch first. Falls back to a full collection scan before the station+date
// index is backfilled.
func (s *Store) BalloonReportsForStation(ctx context.Context, stationID string, limit int) ([]domain.BalloonReport, error) {
	var reports []domain.BalloonReport
	err := s.view(ctx, func(txn *badger.Txn) error {
		if !s.indexReady(ColBalloons, IdxBalloonStationDate) {
			s.metrics.FullScans.WithLabelValues(ColBalloons).Inc()
			err := forEachDoc(txn, ColBalloons, func(id string, val []byte) error {
				var report domain.BalloonReport
				if err := json.Unmarshal(val, &report); err != nil {
					return err
				}
				if report.Station.StationID == stationID {
					reports = append(reports, report)
				}
				return nil
			})
			if err != nil {
				return err
			}
			sort.Slice(reports, func(i, j int) bool {
				return reports[i].LaunchDate.After(reports[j].LaunchDate)
			})
			return nil
		}
		prefix := append(indexPrefix(ColBalloons, IdxBalloonStationDate), encString(stationID)...)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(reports) >= limit {
				return nil
			}
			var report domain.BalloonReport
			if err := getDoc(txn, ColBalloons, idFromIndexEntry(it.Item().Key()), &report); err != nil {
				return err
			}
			reports = append(reports, report)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clampLimit(reports, limit), nil
}

// AscentPage is one page of balloon readings ordered by geopotential height.
type AscentPage struct {
	Readings []domain.AscentReading `json:"readings"`
	Page     int                    `json:"page"`
	PerPage  int                    `json:"per_page"`
	Total    int                    `json:"total"`
}

// BalloonReadingsPage returns one page of a balloon report's readings sorted
// by ascending geopotential height. Pages are 1-based; a page past the end is
// empty, not an error.
func (s *Store) BalloonReadingsPage(ctx context.Context, balloonID string, page, perPage int) (*AscentPage, error) {
	if page < 1 {
		return nil, &QueryError{Param: "page", Reason: "must be >= 1"}
	}
	if perPage < 1 {
		return nil, &QueryError{Param: "per_page", Reason: "must be >= 1"}
	}
	report, err := s.GetBalloonReport(ctx, balloonID)
	if err != nil {
		return nil, err
	}
	readings := make([]domain.AscentReading, len(report.Readings))
	copy(readings, report.Readings)
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].GPHeight < readings[j].GPHeight
	})

	out := &AscentPage{Page: page, PerPage: perPage, Total: len(readings)}
	lo := (page - 1) * perPage
	if lo >= len(readings) {
		return out, nil
	}
	hi := lo + perPage
	if hi > len(readings) {
		hi = len(readings)
	}
	out.Readings = readings[lo:hi]
	return out, nil
}

// MaintenanceForStation returns a station's maintenance history, most recent
// first. Falls back to a full collection scan before the station+timestamp
// index is backfilled.
func (s *Store) MaintenanceForStation(ctx context.Context, stationID string, limit int) ([]domain.MaintenanceLog, error) {
	var logs []domain.MaintenanceLog
	err := s.view(ctx, func(txn *badger.Txn) error {
		if !s.indexReady(ColMaintenance, IdxMaintenanceStation) {
			s.metrics.FullScans.WithLabelValues(ColMaintenance).Inc()
			err := forEachDoc(txn, ColMaintenance, func(id string, val []byte) error {
				var entry domain.MaintenanceLog
				if err := json.Unmarshal(val, &entry); err != nil {
					return err
				}
				if entry.StationID == stationID {
					logs = append(logs, entry)
				}
				return nil
			})
			if err != nil {
				return err
			}
			sort.Slice(logs, func(i, j int) bool {
				if !logs[i].Timestamp.Equal(logs[j].Timestamp) {
					return logs[i].Timestamp.After(logs[j].Timestamp)
				}
				return logs[i].ID < logs[j].ID
			})
			return nil
		}
		prefix := append(indexPrefix(ColMaintenance, IdxMaintenanceStation), encString(stationID)...)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(logs) >= limit {
				return nil
			}
			var entry domain.MaintenanceLog
			if err := getDoc(txn, ColMaintenance, idFromIndexEntry(it.Item().Key()), &entry); err != nil {
				return err
			}
			logs = append(logs, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clampLimit(logs, limit), nil
}

// TechnicianActivity returns a technician's maintenance entries, most recent
// first.
func (s *Store) TechnicianActivity(ctx context.Context, techID string) ([]domain.MaintenanceLog, error) {
	var logs []domain.MaintenanceLog
	err := s.view(ctx, func(txn *badger.Txn) error {
		return forEachDoc(txn, ColMaintenance, func(id string, val []byte) error {
			var entry domain.MaintenanceLog
			if err := json.Unmarshal(val, &entry); err != nil {
				return err
			}
			if entry.TechID == techID {
				logs = append(logs, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].Timestamp.Equal(logs[j].Timestamp) {
			return logs[i].Timestamp.After(logs[j].Timestamp)
		}
		return logs[i].ID < logs[j].ID
	})
	return logs, nil
}
