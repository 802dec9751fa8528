package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"drone_routes/internal/models"
)

func point(lat, lon string) models.FlightPoint {
	return models.FlightPoint{Latitude: lat, Longitude: lon}
}

func TestPathGeometryNeedsTwoCoordinates(t *testing.T) {
	b, err := PathGeometry(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = PathGeometry([]models.FlightPoint{point("55.75", "37.61"), point("bad", "37.62")})
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPathGeometryRoundTrip(t *testing.T) {
	points := []models.FlightPoint{
		point("55.7500", "37.6100"),
		point("55.7510", "37.6120"),
		point("", ""),
		point("55.7520", "37.6140"),
	}

	b, err := PathGeometry(points)
	require.NoError(t, err)
	require.NotEmpty(t, b)

	g, err := ewkb.Unmarshal(b)
	require.NoError(t, err)
	line, ok := g.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, SRID, line.SRID())
	assert.Equal(t, 3, line.NumCoords())
	assert.Equal(t, geom.Coord{37.61, 55.75}, line.Coord(0))

	js, err := ToGeoJSON(b)
	require.NoError(t, err)
	assert.Contains(t, js, `"type":"LineString"`)
	assert.Contains(t, js, "37.61")
}

func TestToGeoJSONEmpty(t *testing.T) {
	js, err := ToGeoJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, js)
}

func TestToGeoJSONRejectsGarbage(t *testing.T) {
	_, err := ToGeoJSON([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDistance(t *testing.T) {
	assert.Zero(t, distance(10, 10, 10, 10))
	// One degree of latitude is roughly 111.2 km.
	assert.InDelta(t, 111195, distance(0, 0, 1, 0), 100)
}

func TestPathLengthSkipsUnreadablePoints(t *testing.T) {
	points := []models.FlightPoint{
		point("0", "0"),
		point("x", "y"),
		point("1", "0"),
		point("2", "0"),
	}
	assert.InDelta(t, 2*111195, PathLength(points), 200)
	assert.Zero(t, PathLength(points[:1]))
}
