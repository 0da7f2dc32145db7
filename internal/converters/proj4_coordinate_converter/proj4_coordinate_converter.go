package proj4_coordinate_converter

import (
	"fmt"
	"math"
	"sync"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/golang/glog"
	proj "github.com/xeonx/proj4"
)

const toRadians = math.Pi / 180
const toDegrees = 180 / math.Pi

type projection struct {
	proj       *proj.Proj
	geographic bool
}

// proj4CoordinateConverter caches one initialized projection per srid. The
// underlying proj handles are not safe for concurrent use, so every
// transformation holds the mutex.
type proj4CoordinateConverter struct {
	definitions converters.Definitions
	projections map[int]*projection
	mu          sync.Mutex
}

func NewProj4CoordinateConverter(definitions converters.Definitions) converters.CoordinateConverter {
	if definitions == nil {
		definitions = converters.NewDefinitions(nil)
	}
	return &proj4CoordinateConverter{
		definitions: definitions,
		projections: make(map[int]*projection),
	}
}

// Releases all projection objects from memory
func (cc *proj4CoordinateConverter) Cleanup() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	for _, p := range cc.projections {
		p.proj.Close()
	}
	cc.projections = make(map[int]*projection)
}

func (cc *proj4CoordinateConverter) ConvertCoordinateSrid(sourceSrid int, targetSrid int, coord geometry.Coordinate) (geometry.Coordinate, error) {
	if sourceSrid == targetSrid {
		return coord, nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	src, err := cc.getProjection(sourceSrid)
	if err != nil {
		return coord, err
	}
	dst, err := cc.getProjection(targetSrid)
	if err != nil {
		return coord, err
	}

	x, y, z := []float64{coord.X}, []float64{coord.Y}, []float64{coord.Z}
	if src.geographic {
		x[0] *= toRadians
		y[0] *= toRadians
	}
	if err := proj.Transform3(src.proj, dst.proj, x, y, z); err != nil {
		return coord, fmt.Errorf("EPSG:%d -> EPSG:%d: %w", sourceSrid, targetSrid, err)
	}
	if dst.geographic {
		x[0] *= toDegrees
		y[0] *= toDegrees
	}
	return geometry.Coordinate{X: x[0], Y: y[0], Z: z[0]}, nil
}

func (cc *proj4CoordinateConverter) ConvertCoordinatesSrid(sourceSrid int, targetSrid int, xs []float64, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate arrays differ in length: %d != %d", len(xs), len(ys))
	}
	if sourceSrid == targetSrid || len(xs) == 0 {
		return nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	src, err := cc.getProjection(sourceSrid)
	if err != nil {
		return err
	}
	dst, err := cc.getProjection(targetSrid)
	if err != nil {
		return err
	}

	if src.geographic {
		scale(xs, ys, toRadians)
	}
	if err := proj.Transform2(src.proj, dst.proj, xs, ys); err != nil {
		return fmt.Errorf("EPSG:%d -> EPSG:%d: %w", sourceSrid, targetSrid, err)
	}
	if dst.geographic {
		scale(xs, ys, toDegrees)
	}
	return nil
}

// Converts the given 2D bounding box from the given srid to a WGS84 lon/lat
// box, in degrees.
func (cc *proj4CoordinateConverter) Convert2DBoundingboxToWGS84Region(bbox *geometry.BoundingBox, srid int) (*geometry.BoundingBox, error) {
	region, err := converters.ConvertBoundingBox(cc, srid, converters.SridWGS84, *bbox, 16)
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// Returns the projection corresponding to the given EPSG code, initializing
// it on first use. Callers hold cc.mu.
func (cc *proj4CoordinateConverter) getProjection(srid int) (*projection, error) {
	if p, ok := cc.projections[srid]; ok {
		return p, nil
	}

	definition, err := cc.definitions.Lookup(srid)
	if err != nil {
		return nil, err
	}
	p, err := proj.InitPlus(definition)
	if err != nil {
		return nil, fmt.Errorf("initializing EPSG:%d: %w", srid, err)
	}
	glog.V(1).Infof("initialized projection EPSG:%d (%s)", srid, definition)

	cached := &projection{proj: p, geographic: converters.IsGeographic(definition)}
	cc.projections[srid] = cached
	return cached, nil
}

func scale(xs []float64, ys []float64, factor float64) {
	for i := range xs {
		xs[i] *= factor
		ys[i] *= factor
	}
}
