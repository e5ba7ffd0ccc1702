package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

// Badger key layout. The single byte prefix splits the keyspace into document
// records, uniqueness guards, index entries, and index-ready markers:
//
//	d/<collection>/<id>                 -> document JSON
//	u/<collection>/<unique key>         -> document id
//	x/<collection>/<index>/<key>/<id>   -> (empty)
//	m/<collection>/<index>              -> index-built marker
//
// Index key components are encoded so that bytewise order equals logical
// order; descending components are bit-inverted.
const (
	prefixDoc    = 'd'
	prefixUnique = 'u'
	prefixIndex  = 'x'
	prefixMarker = 'm'
)

const keySep = '/'

func docKey(collection, id string) []byte {
	return []byte(fmt.Sprintf("%c%c%s%c%s", prefixDoc, keySep, collection, keySep, id))
}

func docPrefix(collection string) []byte {
	return []byte(fmt.Sprintf("%c%c%s%c", prefixDoc, keySep, collection, keySep))
}

func uniqueKey(collection, key string) []byte {
	return []byte(fmt.Sprintf("%c%c%s%c%s", prefixUnique, keySep, collection, keySep, key))
}

func markerKey(collection, index string) []byte {
	return []byte(fmt.Sprintf("%c%c%s%c%s", prefixMarker, keySep, collection, keySep, index))
}

func indexPrefix(collection, index string) []byte {
	return []byte(fmt.Sprintf("%c%c%s%c%s%c", prefixIndex, keySep, collection, keySep, index, keySep))
}

// indexEntryKey appends the encoded component key and the document id to the
// index prefix. The id suffix makes every entry unique and gives a stable
// tie-break within equal component keys.
func indexEntryKey(collection, index string, component []byte, id string) []byte {
	prefix := indexPrefix(collection, index)
	key := make([]byte, 0, len(prefix)+len(component)+1+len(id))
	key = append(key, prefix...)
	key = append(key, component...)
	key = append(key, keySep)
	key = append(key, id...)
	return key
}

// idFromIndexEntry recovers the document id from an index entry key: the id
// is everything after the last separator.
func idFromIndexEntry(key []byte) string {
	s := string(key)
	i := strings.LastIndexByte(s, keySep)
	if i < 0 {
		return ""
	}
	return s[i+1:]
}

// encString terminates a string component so that "WS-1" sorts before
// "WS-10" regardless of what follows in a compound key.
func encString(s string) []byte {
	return append([]byte(s), 0x00)
}

// timeOffset keeps encoded timestamps non-negative for any date after
// year 1678, well clear of meteorological data.
const timeOffset = int64(1) << 62

func encTimeAsc(t time.Time) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()+timeOffset))
	return buf[:]
}

func encTimeDesc(t time.Time) []byte {
	buf := encTimeAsc(t)
	for i := range buf {
		buf[i] = ^buf[i]
	}
	return buf
}

func compound(components ...[]byte) []byte {
	var out []byte
	for _, c := range components {
		out = append(out, c...)
	}
	return out
}

// Geo cells. Coordinates are quantized to 1°x1° cells; a radius query scans
// every cell intersecting the bounding box of the search circle and applies
// the exact great-circle distance afterwards.
const geoCellDegrees = 1.0

// encGeoCell encodes the cell containing p with non-negative fixed-width
// offsets so that cells sort deterministically.
func encGeoCell(p domain.Point) []byte {
	latCell := int(math.Floor((p.Lat + 90) / geoCellDegrees))
	lonCell := int(math.Floor((p.Lon + 180) / geoCellDegrees))
	return []byte(fmt.Sprintf("%03d:%03d", latCell, lonCell))
}

// geoCellsForRadius returns the encoded cells covering the bounding box of a
// radius search. Longitude wraps at the antimeridian; near the poles the full
// longitude band is scanned.
func geoCellsForRadius(center domain.Point, radiusMiles float64) [][]byte {
	angular := radiusMiles / domain.EarthRadiusMiles // radians
	dLat := angular * 180 / math.Pi

	latMin := math.Max(center.Lat-dLat, -90)
	latMax := math.Min(center.Lat+dLat, 90)

	cosLat := math.Cos(center.Lat * math.Pi / 180)
	fullLonBand := cosLat < 1e-6
	var dLon float64
	if !fullLonBand {
		dLon = dLat / cosLat
		if dLon >= 180 {
			fullLonBand = true
		}
	}

	latLo := int(math.Floor((latMin + 90) / geoCellDegrees))
	latHi := int(math.Floor((latMax + 90) / geoCellDegrees))

	var cells [][]byte
	for lat := latLo; lat <= latHi; lat++ {
		if fullLonBand {
			for lon := 0; lon < int(360/geoCellDegrees); lon++ {
				cells = append(cells, []byte(fmt.Sprintf("%03d:%03d", lat, lon)))
			}
			continue
		}
		lonLo := int(math.Floor((center.Lon - dLon + 180) / geoCellDegrees))
		lonHi := int(math.Floor((center.Lon + dLon + 180) / geoCellDegrees))
		for lon := lonLo; lon <= lonHi; lon++ {
			wrapped := ((lon % 360) + 360) % 360
			cells = append(cells, []byte(fmt.Sprintf("%03d:%03d", lat, wrapped)))
		}
	}
	return cells
}

// reportUniqueKey is the station+date uniqueness guard for weather reports.
func reportUniqueKey(stationID string, date time.Time) string {
	return stationID + "|" + date.UTC().Format("20060102")
}

// balloonUniqueKey guards one launch per station, serial, and launch time.
func balloonUniqueKey(stationID, serial string, launch time.Time) string {
	return stationID + "|" + serial + "|" + launch.UTC().Format(time.RFC3339)
}
