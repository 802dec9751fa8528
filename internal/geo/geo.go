// Package geo derives flight path geometry from telemetry points.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"
	gjson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"drone_routes/internal/models"
)

// SRID of every stored path (WGS 84).
const SRID = 4326

const earthRadiusMeters = 6371000

// Coords returns the [lon, lat] pairs of the points whose coordinates parse.
// Points with unreadable coordinates are left out of the path.
func Coords(points []models.FlightPoint) []geom.Coord {
	coords := make([]geom.Coord, 0, len(points))
	for _, p := range points {
		lat, err := strconv.ParseFloat(strings.TrimSpace(p.Latitude), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(p.Longitude), 64)
		if err != nil {
			continue
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		coords = append(coords, geom.Coord{lon, lat})
	}
	return coords
}

// PathGeometry encodes the flight path as a little endian EWKB LineString
// carrying SRID.
// It returns nil when fewer than two points carry usable coordinates.
func PathGeometry(points []models.FlightPoint) ([]byte, error) {
	coords := Coords(points)
	if len(coords) < 2 {
		return nil, nil
	}
	line, err := geom.NewLineString(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, err
	}
	line.SetSRID(SRID)
	return ewkb.Marshal(line, ewkb.NDR)
}

// ToGeoJSON converts stored EWKB bytes into a GeoJSON string.
func ToGeoJSON(data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return "", err
	}
	b, err := gjson.Marshal(g)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// distance is the great circle distance in meters between two points.
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// PathLength sums the leg distances along the flight path.
func PathLength(points []models.FlightPoint) float64 {
	coords := Coords(points)
	var total float64
	for i := 1; i < len(coords); i++ {
		prev, curr := coords[i-1], coords[i]
		total += distance(prev[1], prev[0], curr[1], curr[0])
	}
	return total
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
