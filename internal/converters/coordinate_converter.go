package converters

import (
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

type CoordinateConverter interface {
	ConvertCoordinateSrid(sourceSrid int, targetSrid int, coord geometry.Coordinate) (geometry.Coordinate, error)

	// ConvertCoordinatesSrid converts the 2D points (xs[i], ys[i]) in place.
	ConvertCoordinatesSrid(sourceSrid int, targetSrid int, xs []float64, ys []float64) error
	Convert2DBoundingboxToWGS84Region(bbox *geometry.BoundingBox, srid int) (*geometry.BoundingBox, error)
	Cleanup()
}

// ConvertBoundingBox reprojects bbox by sampling samplesPerEdge points along
// each edge, so curved edges in the target system are still enclosed.
func ConvertBoundingBox(cc CoordinateConverter, sourceSrid int, targetSrid int, bbox geometry.BoundingBox, samplesPerEdge int) (geometry.BoundingBox, error) {
	if samplesPerEdge < 2 {
		samplesPerEdge = 2
	}
	xs := make([]float64, 0, 4*samplesPerEdge)
	ys := make([]float64, 0, 4*samplesPerEdge)
	for i := 0; i < samplesPerEdge; i++ {
		f := float64(i) / float64(samplesPerEdge-1)
		x := bbox.Xmin + f*bbox.Width()
		y := bbox.Ymin + f*bbox.Height()
		xs = append(xs, x, x, bbox.Xmin, bbox.Xmax)
		ys = append(ys, bbox.Ymin, bbox.Ymax, y, y)
	}

	if err := cc.ConvertCoordinatesSrid(sourceSrid, targetSrid, xs, ys); err != nil {
		return geometry.BoundingBox{}, err
	}

	out := geometry.BoundingBox{Xmin: xs[0], Xmax: xs[0], Ymin: ys[0], Ymax: ys[0]}
	for i := range xs {
		out = out.Union(geometry.BoundingBox{Xmin: xs[i], Xmax: xs[i], Ymin: ys[i], Ymax: ys[i]})
	}
	return out, nil
}
