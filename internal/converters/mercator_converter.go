package converters

import (
	"fmt"
	"math"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const (
	wgs84SemiMajorAxis = 6378137.0
	wgs84Flattening    = 1 / 298.257223563
)

// mercatorConverter handles the WGS84, spherical mercator and ECEF systems
// without cgo. It backs the converter when the proj library is unavailable
// and in tests.
type mercatorConverter struct{}

func NewMercatorConverter() CoordinateConverter {
	return &mercatorConverter{}
}

func (c *mercatorConverter) Cleanup() {}

func (c *mercatorConverter) ConvertCoordinateSrid(sourceSrid int, targetSrid int, coord geometry.Coordinate) (geometry.Coordinate, error) {
	if sourceSrid == targetSrid {
		return coord, nil
	}

	switch {
	case sourceSrid == SridWGS84 && targetSrid == SridWebMercator:
		p := project.WGS84.ToMercator(orb.Point{coord.X, coord.Y})
		return geometry.Coordinate{X: p[0], Y: p[1], Z: coord.Z}, nil
	case sourceSrid == SridWebMercator && targetSrid == SridWGS84:
		p := project.Mercator.ToWGS84(orb.Point{coord.X, coord.Y})
		return geometry.Coordinate{X: p[0], Y: p[1], Z: coord.Z}, nil
	case sourceSrid == SridECEF && targetSrid == SridWGS84:
		return ecefToGeodetic(coord), nil
	case sourceSrid == SridECEF && targetSrid == SridWebMercator:
		g := ecefToGeodetic(coord)
		return c.ConvertCoordinateSrid(SridWGS84, SridWebMercator, g)
	}
	return coord, fmt.Errorf("unsupported conversion EPSG:%d -> EPSG:%d", sourceSrid, targetSrid)
}

func (c *mercatorConverter) ConvertCoordinatesSrid(sourceSrid int, targetSrid int, xs []float64, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate arrays differ in length: %d != %d", len(xs), len(ys))
	}
	for i := range xs {
		out, err := c.ConvertCoordinateSrid(sourceSrid, targetSrid, geometry.Coordinate{X: xs[i], Y: ys[i]})
		if err != nil {
			return err
		}
		xs[i], ys[i] = out.X, out.Y
	}
	return nil
}

func (c *mercatorConverter) Convert2DBoundingboxToWGS84Region(bbox *geometry.BoundingBox, srid int) (*geometry.BoundingBox, error) {
	region, err := ConvertBoundingBox(c, srid, SridWGS84, *bbox, 2)
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// ecefToGeodetic uses Bowring's method, accurate to well below a millimetre
// near the surface.
func ecefToGeodetic(coord geometry.Coordinate) geometry.Coordinate {
	a := wgs84SemiMajorAxis
	f := wgs84Flattening
	b := a * (1 - f)
	e2 := f * (2 - f)
	ep2 := (a*a - b*b) / (b * b)

	p := math.Hypot(coord.X, coord.Y)
	theta := math.Atan2(coord.Z*a, p*b)
	sin, cos := math.Sincos(theta)

	lon := math.Atan2(coord.Y, coord.X)
	lat := math.Atan2(coord.Z+ep2*b*sin*sin*sin, p-e2*a*cos*cos*cos)
	n := a / math.Sqrt(1-e2*math.Sin(lat)*math.Sin(lat))
	height := p/math.Cos(lat) - n

	return geometry.Coordinate{X: lon * 180 / math.Pi, Y: lat * 180 / math.Pi, Z: height}
}
