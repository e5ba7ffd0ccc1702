package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/weather-data-store/internal/domain"
	"github.com/couchcryptid/weather-data-store/internal/store"
)

// StoreSink routes decoded documents into the store by collection name.
// Duplicate inserts are treated as successful redeliveries, validation
// failures as permanent drops.
type StoreSink struct {
	store *store.Store
}

// NewStoreSink wraps the store as an ingest sink.
func NewStoreSink(s *store.Store) *StoreSink {
	return &StoreSink{store: s}
}

// Store implements Sink.
func (s *StoreSink) Store(ctx context.Context, collection string, doc json.RawMessage) error {
	err := s.route(ctx, collection, doc)
	if err == nil {
		return nil
	}

	// A redelivered message hits the uniqueness guard; the document is
	// already stored, so the message can be acknowledged.
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		return nil
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return &DropError{Reason: "document failed validation", Err: validation}
	}
	return err
}

func (s *StoreSink) route(ctx context.Context, collection string, doc json.RawMessage) error {
	switch collection {
	case store.ColReports:
		var report domain.WeatherReport
		if err := json.Unmarshal(doc, &report); err != nil {
			return &DropError{Reason: "malformed report", Err: err}
		}
		_, err := s.store.InsertReport(ctx, &report)
		return err
	case store.ColStations:
		var station domain.WeatherStation
		if err := json.Unmarshal(doc, &station); err != nil {
			return &DropError{Reason: "malformed station", Err: err}
		}
		return s.store.InsertStation(ctx, &station)
	case store.ColBalloons:
		var report domain.BalloonReport
		if err := json.Unmarshal(doc, &report); err != nil {
			return &DropError{Reason: "malformed balloon report", Err: err}
		}
		_, err := s.store.InsertBalloonReport(ctx, &report)
		return err
	case store.ColUsers:
		var user domain.User
		if err := json.Unmarshal(doc, &user); err != nil {
			return &DropError{Reason: "malformed user", Err: err}
		}
		return s.store.InsertUser(ctx, &user)
	case store.ColTechnicians:
		var tech domain.Technician
		if err := json.Unmarshal(doc, &tech); err != nil {
			return &DropError{Reason: "malformed technician", Err: err}
		}
		return s.store.InsertTechnician(ctx, &tech)
	case store.ColMaintenance:
		var entry domain.MaintenanceLog
		if err := json.Unmarshal(doc, &entry); err != nil {
			return &DropError{Reason: "malformed maintenance log", Err: err}
		}
		_, err := s.store.RecordMaintenance(ctx, &entry)
		return err
	default:
		return &DropError{Reason: fmt.Sprintf("unknown collection %q", collection)}
	}
}
