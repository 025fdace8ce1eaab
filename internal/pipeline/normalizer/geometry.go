package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Longitude float64
	Latitude  float64
}

// coordinateDepth is how many array levels wrap the first position of each
// GeoJSON geometry type.
var coordinateDepth = map[string]int{
	"Point":           0,
	"LineString":      1,
	"MultiPoint":      1,
	"Polygon":         2,
	"MultiLineString": 2,
	"MultiPolygon":    3,
}

type geoJSON struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometry    *geoJSON        `json:"geometry"`
	Features    []geoJSON       `json:"features"`
}

// NormalizeLocation resolves a raw location encoding to a point. GeoJSON is
// tried first, then a bare "a,b" pair. ok is false when neither yields a
// coordinate in range; that is an expected outcome, not an error.
func NormalizeLocation(raw string) (Point, bool) {
	if p, ok := fromGeoJSON(raw); ok {
		return p, true
	}
	return fromPair(raw)
}

func fromGeoJSON(raw string) (Point, bool) {
	var doc geoJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Point{}, false
	}

	geom := &doc
	switch doc.Type {
	case "Feature":
		geom = doc.Geometry
	case "FeatureCollection":
		if len(doc.Features) == 0 {
			return Point{}, false
		}
		geom = doc.Features[0].Geometry
	}
	if geom == nil {
		return Point{}, false
	}

	depth, known := coordinateDepth[geom.Type]
	if !known {
		return Point{}, false
	}
	lon, lat, ok := firstPosition(geom.Coordinates, depth)
	if !ok || !inRange(lon, lat) {
		return Point{}, false
	}
	return Point{Longitude: lon, Latitude: lat}, true
}

// firstPosition descends depth levels of nested arrays, always taking the
// first element, and reads [lon, lat, alt?] at the bottom.
func firstPosition(coords json.RawMessage, depth int) (float64, float64, bool) {
	for ; depth > 0; depth-- {
		var level []json.RawMessage
		if err := json.Unmarshal(coords, &level); err != nil || len(level) == 0 {
			return 0, 0, false
		}
		coords = level[0]
	}

	var pos []*float64
	if err := json.Unmarshal(coords, &pos); err != nil || len(pos) < 2 {
		return 0, 0, false
	}
	if pos[0] == nil || pos[1] == nil {
		return 0, 0, false
	}
	return *pos[0], *pos[1], true
}

func fromPair(raw string) (Point, bool) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return Point{}, false
	}
	v1, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, false
	}
	v2, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, false
	}

	// "lat,lon" is the common form; "lon,lat" is accepted when only that
	// reading is in range.
	switch {
	case inRange(v2, v1):
		return Point{Longitude: v2, Latitude: v1}, true
	case inRange(v1, v2):
		return Point{Longitude: v1, Latitude: v2}, true
	default:
		return Point{}, false
	}
}

func inRange(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return false
	}
	return math.Abs(lat) <= 90 && math.Abs(lon) <= 180
}
