package tileset

import (
	"math"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/golang/glog"
)

const metresPerDegree = 111320.0

// BoundsFilter keeps the subtrees whose bounding volume may intersect Bounds,
// a WGS84 box in degrees. Volumes it cannot evaluate are kept.
type BoundsFilter struct {
	Bounds    geometry.BoundingBox
	Converter converters.CoordinateConverter
}

func (f *BoundsFilter) Accepts(volume *BoundingVolume) bool {
	if f == nil || volume == nil {
		return true
	}
	extent, ok := f.extentOf(volume)
	if !ok {
		return true
	}
	return extent.Intersects(f.Bounds)
}

func (f *BoundsFilter) extentOf(volume *BoundingVolume) (geometry.BoundingBox, bool) {
	switch {
	case len(volume.Region) >= 4:
		r := volume.Region
		return geometry.BoundingBox{
			Xmin: r[0] * 180 / math.Pi,
			Ymin: r[1] * 180 / math.Pi,
			Xmax: r[2] * 180 / math.Pi,
			Ymax: r[3] * 180 / math.Pi,
		}, true
	case len(volume.Box) >= 12:
		b := volume.Box
		radius := vectorLength(b[3:6]) + vectorLength(b[6:9]) + vectorLength(b[9:12])
		return f.aroundCentre(geometry.Coordinate{X: b[0], Y: b[1], Z: b[2]}, radius)
	case len(volume.Sphere) >= 4:
		s := volume.Sphere
		return f.aroundCentre(geometry.Coordinate{X: s[0], Y: s[1], Z: s[2]}, s[3])
	}
	return geometry.BoundingBox{}, false
}

// aroundCentre converts an ECEF centre to WGS84 and pads it by radius metres.
func (f *BoundsFilter) aroundCentre(centre geometry.Coordinate, radius float64) (geometry.BoundingBox, bool) {
	if f.Converter == nil {
		return geometry.BoundingBox{}, false
	}
	// volumes centred on the earth's core cover the whole globe
	if math.Abs(centre.X)+math.Abs(centre.Y)+math.Abs(centre.Z) < 1 {
		return geometry.BoundingBox{}, false
	}

	geo, err := f.Converter.ConvertCoordinateSrid(converters.SridECEF, converters.SridWGS84, centre)
	if err != nil {
		glog.V(1).Infof("cannot evaluate bounding volume: %v", err)
		return geometry.BoundingBox{}, false
	}

	padLat := radius / metresPerDegree
	padLon := padLat
	if c := math.Cos(geo.Y * math.Pi / 180); c > 1e-6 {
		padLon = padLat / c
	}
	return geometry.BoundingBox{
		Xmin: geo.X - padLon,
		Xmax: geo.X + padLon,
		Ymin: geo.Y - padLat,
		Ymax: geo.Y + padLat,
	}, true
}

func vectorLength(v []float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
