package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

// InsertReport stores a new daily weather report. The document gets version 1,
// a derived day summary, and a last_modified stamp. At most one report may
// exist per station and calendar day.
func (s *Store) InsertReport(ctx context.Context, report *domain.WeatherReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.Date = domain.Day(report.Date)
	report.Version = 1
	report.LastModified = domain.Now()
	summary := domain.DeriveDaySummary(report.Readings)
	report.DaySummary = &summary

	if err := report.Validate(); err != nil {
		return "", err
	}

	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(ColReports, report.ID)); err == nil {
			return &ConflictError{Collection: ColReports, Key: report.ID}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := claimUnique(txn, ColReports, reportUniqueKey(report.Station.StationID, report.Date), report.ID); err != nil {
			return err
		}
		return s.setDoc(txn, ColReports, report.ID, report)
	})
	if err != nil {
		return "", err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColReports).Inc()
	return report.ID, nil
}

// UpdateReport applies mutate to the report under optimistic concurrency
// control. The caller states the version it read; if the stored version
// differs, the update fails with a VersionConflictError and nothing is
// written. A concurrent writer that commits first surfaces the same way: the
// engine's commit-time conflict is reported as a VersionConflictError, never
// as an untyped error. On success the version is incremented, the day summary
// is recomputed, and last_modified is stamped.
func (s *Store) UpdateReport(ctx context.Context, id string, expectedVersion int64, mutate func(*domain.WeatherReport) error) (*domain.WeatherReport, error) {
	var updated domain.WeatherReport
	err := s.update(ctx, func(txn *badger.Txn) error {
		var report domain.WeatherReport
		if err := getDoc(txn, ColReports, id, &report); err != nil {
			return err
		}
		if report.Version != expectedVersion {
			return &VersionConflictError{
				Collection: ColReports,
				ID:         id,
				Expected:   expectedVersion,
				Actual:     report.Version,
			}
		}
		prevStation, prevDate := report.Station.StationID, report.Date

		if err := mutate(&report); err != nil {
			return err
		}
		report.ID = id
		report.Date = domain.Day(report.Date)
		report.Version = expectedVersion + 1
		report.LastModified = domain.Now()
		summary := domain.DeriveDaySummary(report.Readings)
		report.DaySummary = &summary

		if err := report.Validate(); err != nil {
			return err
		}

		if report.Station.StationID != prevStation || !report.Date.Equal(prevDate) {
			if err := releaseUnique(txn, ColReports, reportUniqueKey(prevStation, prevDate)); err != nil {
				return err
			}
			if err := claimUnique(txn, ColReports, reportUniqueKey(report.Station.StationID, report.Date), id); err != nil {
				return err
			}
		}
		if err := s.setDoc(txn, ColReports, id, &report); err != nil {
			return err
		}
		updated = report
		return nil
	})
	if err != nil {
		if errors.Is(err, badger.ErrConflict) {
			vc := &VersionConflictError{Collection: ColReports, ID: id, Expected: expectedVersion}
			if current, readErr := s.GetReport(ctx, id); readErr == nil {
				vc.Actual = current.Version
			}
			err = vc
		}
		var vc *VersionConflictError
		if errors.As(err, &vc) {
			s.metrics.VersionConflicts.WithLabelValues(ColReports).Inc()
		}
		return nil, err
	}
	return &updated, nil
}

const (
	retryAttempts = 3
	retryBackoff  = 25 * time.Millisecond
)

// UpdateReportWithRetry retries UpdateReport after version conflicts,
// re-reading the current version each attempt. mutate must be safe to call
// more than once.
func (s *Store) UpdateReportWithRetry(ctx context.Context, id string, mutate func(*domain.WeatherReport) error) (*domain.WeatherReport, error) {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryBackoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		current, err := s.GetReport(ctx, id)
		if err != nil {
			return nil, err
		}
		report, err := s.UpdateReport(ctx, id, current.Version, mutate)
		if err == nil {
			return report, nil
		}
		var vc *VersionConflictError
		if !errors.As(err, &vc) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("update %s/%s: retries exhausted: %w", ColReports, id, lastErr)
}

// InsertStation stores a new station document keyed by its station id.
func (s *Store) InsertStation(ctx context.Context, station *domain.WeatherStation) error {
	if station.Status == "" {
		station.Status = domain.StatusActive
	}
	if err := station.Validate(); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(ColStations, station.StationID)); err == nil {
			return &ConflictError{Collection: ColStations, Key: station.StationID}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.setDoc(txn, ColStations, station.StationID, station)
	})
	if err != nil {
		return err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColStations).Inc()
	return nil
}

// UpdateStationStatus moves a station through its lifecycle. Decommissioned
// is terminal; any transition out of it is rejected.
func (s *Store) UpdateStationStatus(ctx context.Context, stationID string, status domain.StationStatus) error {
	if !domain.ValidStatus(status) {
		return &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		var station domain.WeatherStation
		if err := getDoc(txn, ColStations, stationID, &station); err != nil {
			return err
		}
		if !station.Status.CanTransitionTo(status) {
			return &domain.ValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("cannot transition from %s to %s", station.Status, status),
			}
		}
		station.Status = status
		return s.setDoc(txn, ColStations, stationID, &station)
	})
}

// RecordMaintenance appends a maintenance log entry and stamps the station's
// latest_maintenance reference in the same transaction.
func (s *Store) RecordMaintenance(ctx context.Context, entry *domain.MaintenanceLog) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = domain.Now()
	}
	if err := entry.Validate(); err != nil {
		return "", err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		var station domain.WeatherStation
		if err := getDoc(txn, ColStations, entry.StationID, &station); err != nil {
			return err
		}
		station.LatestMaintenance = &domain.MaintenanceRef{
			LogID:     entry.ID,
			TechID:    entry.TechID,
			Timestamp: entry.Timestamp,
			Activity:  entry.Activity,
		}
		if err := s.setDoc(txn, ColStations, entry.StationID, &station); err != nil {
			return err
		}
		return s.setDoc(txn, ColMaintenance, entry.ID, entry)
	})
	if err != nil {
		return "", err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColMaintenance).Inc()
	return entry.ID, nil
}

// InsertBalloonReport stores a radiosonde ascent. One launch per station,
// instrument serial, and launch time.
func (s *Store) InsertBalloonReport(ctx context.Context, report *domain.BalloonReport) (string, error) {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	report.Version = 1
	report.LastModified = domain.Now()
	if err := report.Validate(); err != nil {
		return "", err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(ColBalloons, report.ID)); err == nil {
			return &ConflictError{Collection: ColBalloons, Key: report.ID}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		key := balloonUniqueKey(report.Station.StationID, report.Radiosonde.Serial, report.LaunchDate)
		if err := claimUnique(txn, ColBalloons, key, report.ID); err != nil {
			return err
		}
		return s.setDoc(txn, ColBalloons, report.ID, report)
	})
	if err != nil {
		return "", err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColBalloons).Inc()
	return report.ID, nil
}

// InsertUser stores a new user keyed by user id. PII fields must already be
// sealed; Validate rejects cleartext where ciphertext is expected.
func (s *Store) InsertUser(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(ColUsers, user.UserID)); err == nil {
			return &ConflictError{Collection: ColUsers, Key: user.UserID}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.setDoc(txn, ColUsers, user.UserID, user)
	})
	if err != nil {
		return err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColUsers).Inc()
	return nil
}

// InsertTechnician stores a technician keyed by tech id.
func (s *Store) InsertTechnician(ctx context.Context, tech *domain.Technician) error {
	if tech.TechID == "" {
		return &domain.ValidationError{Field: "tech_id", Reason: "must not be empty"}
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(ColTechnicians, tech.TechID)); err == nil {
			return &ConflictError{Collection: ColTechnicians, Key: tech.TechID}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.setDoc(txn, ColTechnicians, tech.TechID, tech)
	})
	if err != nil {
		return err
	}
	s.metrics.DocumentsInserted.WithLabelValues(ColTechnicians).Inc()
	return nil
}

// RenameOwner updates the owner display name on the user document and on
// every weather report and station owned by that user, all in one
// transaction. Report versions are bumped so concurrent readers observe the
// change.
func (s *Store) RenameOwner(ctx context.Context, userID, newName string) (int, error) {
	if newName == "" {
		return 0, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	var updated int
	err := s.update(ctx, func(txn *badger.Txn) error {
		var user domain.User
		if err := getDoc(txn, ColUsers, userID, &user); err != nil {
			return err
		}
		user.DisplayName = newName
		if err := s.setDoc(txn, ColUsers, userID, &user); err != nil {
			return err
		}

		reportIDs, err := ownedDocIDs(txn, ColReports, userID)
		if err != nil {
			return err
		}
		for _, id := range reportIDs {
			var report domain.WeatherReport
			if err := getDoc(txn, ColReports, id, &report); err != nil {
				return err
			}
			report.Owner.Name = newName
			report.Version++
			report.LastModified = domain.Now()
			if err := s.setDoc(txn, ColReports, id, &report); err != nil {
				return err
			}
			updated++
		}

		stationIDs, err := ownedDocIDs(txn, ColStations, userID)
		if err != nil {
			return err
		}
		for _, id := range stationIDs {
			var station domain.WeatherStation
			if err := getDoc(txn, ColStations, id, &station); err != nil {
				return err
			}
			station.Owner.Name = newName
			if err := s.setDoc(txn, ColStations, id, &station); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// ownedDocIDs collects the ids owned by a user. Ids are collected before any
// write; mutating while iterating the same prefix is not safe.
func ownedDocIDs(txn *badger.Txn, collection, userID string) ([]string, error) {
	var ids []string
	err := forEachDoc(txn, collection, func(id string, val []byte) error {
		var d struct {
			Owner struct {
				UserID string `json:"user_id"`
			} `json:"owner"`
		}
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		if d.Owner.UserID == userID {
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// DeleteReport removes a single report and its uniqueness guard.
func (s *Store) DeleteReport(ctx context.Context, id string) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var report domain.WeatherReport
		if err := getDoc(txn, ColReports, id, &report); err != nil {
			return err
		}
		if err := releaseUnique(txn, ColReports, reportUniqueKey(report.Station.StationID, report.Date)); err != nil {
			return err
		}
		return s.deleteDoc(txn, ColReports, id)
	})
}

// DeleteReportsInRange removes every report for a station whose date lies in
// [from, to) and returns the number deleted.
func (s *Store) DeleteReportsInRange(ctx context.Context, stationID string, from, to time.Time) (int, error) {
	if !from.Before(to) {
		return 0, &QueryError{Param: "from", Reason: "must be before to"}
	}
	var deleted int
	err := s.update(ctx, func(txn *badger.Txn) error {
		ids, err := s.reportIDsForStation(txn, stationID, from, to)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var report domain.WeatherReport
			if err := getDoc(txn, ColReports, id, &report); err != nil {
				return err
			}
			if err := releaseUnique(txn, ColReports, reportUniqueKey(report.Station.StationID, report.Date)); err != nil {
				return err
			}
			if err := s.deleteDoc(txn, ColReports, id); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
