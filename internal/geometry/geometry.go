package geometry

import "math"

// Coordinate is a point in whatever reference system its owner declares.
type Coordinate struct {
	X float64
	Y float64
	Z float64
}

// BoundingBox is an axis aligned 2D extent. For geographic systems X is the
// longitude and Y the latitude, both in degrees.
type BoundingBox struct {
	Xmin float64
	Xmax float64
	Ymin float64
	Ymax float64
}

func NewBoundingBox(xmin, xmax, ymin, ymax float64) *BoundingBox {
	return &BoundingBox{Xmin: xmin, Xmax: xmax, Ymin: ymin, Ymax: ymax}
}

func (b BoundingBox) Width() float64 {
	return b.Xmax - b.Xmin
}

func (b BoundingBox) Height() float64 {
	return b.Ymax - b.Ymin
}

func (b BoundingBox) IsEmpty() bool {
	return !(b.Xmax > b.Xmin && b.Ymax > b.Ymin)
}

func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.Xmin <= o.Xmax && o.Xmin <= b.Xmax && b.Ymin <= o.Ymax && o.Ymin <= b.Ymax
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		Xmin: math.Min(b.Xmin, o.Xmin),
		Xmax: math.Max(b.Xmax, o.Xmax),
		Ymin: math.Min(b.Ymin, o.Ymin),
		Ymax: math.Max(b.Ymax, o.Ymax),
	}
}

// Intersection returns the overlap of b and o, which may be empty.
func (b BoundingBox) Intersection(o BoundingBox) BoundingBox {
	return BoundingBox{
		Xmin: math.Max(b.Xmin, o.Xmin),
		Xmax: math.Min(b.Xmax, o.Xmax),
		Ymin: math.Max(b.Ymin, o.Ymin),
		Ymax: math.Min(b.Ymax, o.Ymax),
	}
}

// GetAsArray returns the box as [west, south, east, north].
func (b BoundingBox) GetAsArray() []float64 {
	return []float64{b.Xmin, b.Ymin, b.Xmax, b.Ymax}
}

// GeoTransform maps pixel (col, row) to map coordinates, in GDAL order:
// x = [0] + col*[1] + row*[2], y = [3] + col*[4] + row*[5].
type GeoTransform [6]float64

// NewGeoTransformFromBounds builds a north-up transform covering bbox with
// the given raster size.
func NewGeoTransformFromBounds(bbox BoundingBox, width, height int) GeoTransform {
	return GeoTransform{
		bbox.Xmin, bbox.Width() / float64(width), 0,
		bbox.Ymax, 0, -bbox.Height() / float64(height),
	}
}

func (t GeoTransform) PixelToMap(col, row float64) (float64, float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// MapToPixel inverts PixelToMap. Only north-up transforms (no rotation) are
// supported, which is all this tool ever produces.
func (t GeoTransform) MapToPixel(x, y float64) (float64, float64) {
	return (x - t[0]) / t[1], (y - t[3]) / t[5]
}

func (t GeoTransform) PixelWidth() float64 {
	return t[1]
}

func (t GeoTransform) PixelHeight() float64 {
	return math.Abs(t[5])
}

// Bounds returns the map extent covered by a width x height raster.
func (t GeoTransform) Bounds(width, height int) BoundingBox {
	x0, y0 := t.PixelToMap(0, 0)
	x1, y1 := t.PixelToMap(float64(width), float64(height))
	return BoundingBox{
		Xmin: math.Min(x0, x1),
		Xmax: math.Max(x0, x1),
		Ymin: math.Min(y0, y1),
		Ymax: math.Max(y0, y1),
	}
}
