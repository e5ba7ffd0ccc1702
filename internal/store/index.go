package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

// indexDef is one secondary index. Keys extracts the encoded component keys
// for a document; a nil slice omits the document, an error marks it as
// violating the index geometry.
type indexDef struct {
	Collection string
	Name       string
	Keys       func(id string, doc []byte) ([][]byte, error)
}

// Index names follow the <field>_<direction> convention, with -1 for
// descending components and 2dsphere for geo indexes.
const (
	IdxStationLocation     = "location_2dsphere"
	IdxReportLocation      = "location_2dsphere"
	IdxReportStation       = "station_id_1"
	IdxReportStationDate   = "station_id_1_date_-1"
	IdxReportDate          = "date_-1"
	IdxReportReadingTime   = "readings.timestamp_-1"
	IdxReportOwnerType     = "owner_type_1_date_1"
	IdxReportOwnerModified = "user_id_1_last_modified_-1"
	IdxBalloonStationDate  = "station_id_1_launch_date_-1"
	IdxMaintenanceStation  = "station_id_1_timestamp_-1"
	IdxUserType            = "user_type_1"
)

var indexDefs = []indexDef{
	{ColStations, IdxStationLocation, stationLocationKeys},
	{ColReports, IdxReportLocation, reportLocationKeys},
	{ColReports, IdxReportStation, reportStationKeys},
	{ColReports, IdxReportStationDate, reportStationDateKeys},
	{ColReports, IdxReportDate, reportDateKeys},
	{ColReports, IdxReportReadingTime, reportReadingTimeKeys},
	{ColReports, IdxReportOwnerType, reportOwnerTypeKeys},
	{ColReports, IdxReportOwnerModified, reportOwnerModifiedKeys},
	{ColBalloons, IdxBalloonStationDate, balloonStationDateKeys},
	{ColMaintenance, IdxMaintenanceStation, maintenanceStationKeys},
	{ColUsers, IdxUserType, userTypeKeys},
}

func defsFor(collection string) []indexDef {
	var defs []indexDef
	for _, def := range indexDefs {
		if def.Collection == collection {
			defs = append(defs, def)
		}
	}
	return defs
}

func stationLocationKeys(id string, doc []byte) ([][]byte, error) {
	var s struct {
		Location domain.Point `json:"location"`
	}
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, err
	}
	if !s.Location.ValidCoordinates() {
		return nil, fmt.Errorf("invalid coordinates (%v, %v)", s.Location.Lon, s.Location.Lat)
	}
	return [][]byte{encGeoCell(s.Location)}, nil
}

func reportLocationKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Location domain.Point `json:"location"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	if !r.Location.ValidCoordinates() {
		return nil, fmt.Errorf("invalid coordinates (%v, %v)", r.Location.Lon, r.Location.Lat)
	}
	return [][]byte{encGeoCell(r.Location)}, nil
}

func reportStationKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Station struct {
			StationID string `json:"station_id"`
		} `json:"station"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	return [][]byte{encString(r.Station.StationID)}, nil
}

func reportStationDateKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Date    time.Time `json:"date"`
		Station struct {
			StationID string `json:"station_id"`
		} `json:"station"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	return [][]byte{compound(encString(r.Station.StationID), encTimeDesc(r.Date))}, nil
}

func reportDateKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Date time.Time `json:"date"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	return [][]byte{encTimeDesc(r.Date)}, nil
}

// reportReadingTimeKeys is multikey: one entry per embedded reading.
func reportReadingTimeKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Readings []struct {
			Timestamp time.Time `json:"timestamp"`
		} `json:"readings"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(r.Readings))
	for _, reading := range r.Readings {
		keys = append(keys, encTimeDesc(reading.Timestamp))
	}
	return keys, nil
}

func reportOwnerTypeKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		Date  time.Time `json:"date"`
		Owner struct {
			OwnerType string `json:"owner_type"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	if r.Owner.OwnerType == "" {
		return nil, nil
	}
	return [][]byte{compound(encString(r.Owner.OwnerType), encTimeAsc(r.Date))}, nil
}

func reportOwnerModifiedKeys(id string, doc []byte) ([][]byte, error) {
	var r struct {
		LastModified time.Time `json:"last_modified"`
		Owner        struct {
			UserID string `json:"user_id"`
		} `json:"owner"`
	}
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, err
	}
	if r.Owner.UserID == "" {
		return nil, nil
	}
	return [][]byte{compound(encString(r.Owner.UserID), encTimeDesc(r.LastModified))}, nil
}

func balloonStationDateKeys(id string, doc []byte) ([][]byte, error) {
	var b struct {
		LaunchDate time.Time `json:"launch_date"`
		Station    struct {
			StationID string `json:"station_id"`
		} `json:"station"`
	}
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, err
	}
	return [][]byte{compound(encString(b.Station.StationID), encTimeDesc(b.LaunchDate))}, nil
}

func maintenanceStationKeys(id string, doc []byte) ([][]byte, error) {
	var m struct {
		StationID string    `json:"station_id"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	return [][]byte{compound(encString(m.StationID), encTimeDesc(m.Timestamp))}, nil
}

func userTypeKeys(id string, doc []byte) ([][]byte, error) {
	var u struct {
		UserType string `json:"user_type"`
	}
	if err := json.Unmarshal(doc, &u); err != nil {
		return nil, err
	}
	if u.UserType == "" {
		return nil, nil
	}
	return [][]byte{encString(u.UserType)}, nil
}

// EnsureIndexes builds every defined index that has not been built yet. The
// call is idempotent: built indexes are detected by their marker key and
// skipped. Documents whose fields cannot produce a valid index key abort the
// build with an IndexError naming them; no partial index is left behind.
//
// Writers are blocked for the duration of a backfill.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range indexDefs {
		if err := ctx.Err(); err != nil {
			return err
		}
		built, err := s.indexBuilt(def)
		if err != nil {
			return err
		}
		if built {
			s.markReady(def)
			continue
		}
		start := time.Now()
		if err := s.buildIndex(ctx, def); err != nil {
			return err
		}
		s.markReady(def)
		s.metrics.IndexBuildDuration.WithLabelValues(def.Collection, def.Name).Observe(time.Since(start).Seconds())
		s.logger.Info("index built",
			slog.String("collection", def.Collection),
			slog.String("index", def.Name),
			slog.Duration("took", time.Since(start)))
	}
	return nil
}

// IndexesReady reports whether every defined index has been built.
func (s *Store) IndexesReady() bool {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	for _, def := range indexDefs {
		if !s.indexes[def.Collection+"/"+def.Name] {
			return false
		}
	}
	return true
}

func (s *Store) markReady(def indexDef) {
	s.indexMu.Lock()
	s.indexes[def.Collection+"/"+def.Name] = true
	s.indexMu.Unlock()
}

func (s *Store) indexBuilt(def indexDef) (bool, error) {
	var built bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(markerKey(def.Collection, def.Name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		built = true
		return nil
	})
	return built, err
}

// buildIndex scans the collection and writes index entries, restarting the
// transaction whenever it grows too big. All violating documents are
// collected before failing so the caller sees the full set at once.
func (s *Store) buildIndex(ctx context.Context, def indexDef) error {
	var violating []string
	var keyErr error

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	setEntry := func(key []byte) error {
		err := txn.Set(key, nil)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return err
			}
			txn = s.db.NewTransaction(true)
			return txn.Set(key, nil)
		}
		return err
	}

	scan := s.db.View(func(viewTxn *badger.Txn) error {
		return forEachDoc(viewTxn, def.Collection, func(id string, val []byte) error {
			keys, err := def.Keys(id, val)
			if err != nil {
				violating = append(violating, id)
				keyErr = err
				return nil
			}
			for _, k := range keys {
				if err := setEntry(indexEntryKey(def.Collection, def.Name, k, id)); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if scan != nil {
		return scan
	}
	if len(violating) > 0 {
		return &IndexError{Collection: def.Collection, Index: def.Name, ViolatingIDs: violating, Err: keyErr}
	}
	if err := setEntry(markerKey(def.Collection, def.Name)); err != nil {
		return err
	}
	return txn.Commit()
}

// reindexDoc removes the index entries of the stored version of the document
// (if any) and writes entries for the new version.
func (s *Store) reindexDoc(txn *badger.Txn, collection, id string, newDoc []byte) error {
	if item, err := txn.Get(docKey(collection, id)); err == nil {
		var old []byte
		if err := item.Value(func(val []byte) error {
			old = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		if err := s.unindexDoc(txn, collection, id, old); err != nil {
			return err
		}
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	for _, def := range defsFor(collection) {
		keys, err := def.Keys(id, newDoc)
		if err != nil {
			return &IndexError{Collection: collection, Index: def.Name, ViolatingIDs: []string{id}, Err: err}
		}
		for _, k := range keys {
			if err := txn.Set(indexEntryKey(collection, def.Name, k, id), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) unindexDoc(txn *badger.Txn, collection, id string, old []byte) error {
	for _, def := range defsFor(collection) {
		keys, err := def.Keys(id, old)
		if err != nil {
			// The stored version predates the geometry check; there is
			// nothing to remove.
			continue
		}
		for _, k := range keys {
			if err := txn.Delete(indexEntryKey(collection, def.Name, k, id)); err != nil &&
				!errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
	}
	return nil
}
