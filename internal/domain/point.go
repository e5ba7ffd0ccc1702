package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// EarthRadiusMiles is the mean spherical Earth radius used for all
// great-circle distance calculations. Distances throughout the store are
// statute miles.
const EarthRadiusMiles = 3963.2

// Point is a 2D WGS-84 coordinate. It serializes as a GeoJSON Point with
// coordinates ordered [longitude, latitude].
type Point struct {
	Lon float64
	Lat float64
}

// Point3D is a 3D WGS-84 coordinate with altitude in meters. It serializes as
// a GeoJSON Point with coordinates [longitude, latitude, altitude].
type Point3D struct {
	Lon float64
	Lat float64
	Alt float64
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "Point" {
		return fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	if len(g.Coordinates) < 2 {
		return fmt.Errorf("expected [lon, lat] coordinates, got %d values", len(g.Coordinates))
	}
	p.Lon, p.Lat = g.Coordinates[0], g.Coordinates[1]
	return nil
}

func (p Point3D) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: []float64{p.Lon, p.Lat, p.Alt}})
}

func (p *Point3D) UnmarshalJSON(data []byte) error {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return err
	}
	if g.Type != "Point" {
		return fmt.Errorf("unsupported geometry type %q", g.Type)
	}
	if len(g.Coordinates) != 3 {
		return fmt.Errorf("expected [lon, lat, alt] coordinates, got %d values", len(g.Coordinates))
	}
	p.Lon, p.Lat, p.Alt = g.Coordinates[0], g.Coordinates[1], g.Coordinates[2]
	return nil
}

// Surface projects the 3D point onto the surface, dropping altitude.
func (p Point3D) Surface() Point {
	return Point{Lon: p.Lon, Lat: p.Lat}
}

// ValidCoordinates reports whether the point lies within WGS-84 bounds.
func (p Point) ValidCoordinates() bool {
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// DistanceMiles returns the great-circle distance to q in statute miles,
// computed with the haversine formula on a spherical Earth.
func (p Point) DistanceMiles(q Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := q.Lat * math.Pi / 180
	dLat := (q.Lat - p.Lat) * math.Pi / 180
	dLon := (q.Lon - p.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(a)))
}
