package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

// Web mercator is undefined at the poles; sources are clipped to this latitude.
const MaxMercatorLatitude = 85.05112877980659

var ErrDegenerateExtent = errors.New("raster: reprojected extent is empty")

// Reproject warps r into targetSrid with bilinear resampling. The output
// keeps roughly the pixel count of the input, with square pixels.
func Reproject(r *Raster, targetSrid int, cc converters.CoordinateConverter) (*Raster, error) {
	if r.Srid == targetSrid {
		return r, nil
	}

	source := r.Bounds()
	if r.Srid == converters.SridWGS84 && (targetSrid == converters.SridWebMercator || targetSrid == converters.SridWorldMercator) {
		source = source.Intersection(geometry.BoundingBox{Xmin: -180, Xmax: 180, Ymin: -MaxMercatorLatitude, Ymax: MaxMercatorLatitude})
		if source.IsEmpty() {
			return nil, ErrDegenerateExtent
		}
	}

	target, err := converters.ConvertBoundingBox(cc, r.Srid, targetSrid, source, 21)
	if err != nil {
		return nil, fmt.Errorf("reprojecting extent: %w", err)
	}
	if target.IsEmpty() || math.IsNaN(target.Width()) || math.IsInf(target.Width(), 0) || math.IsInf(target.Height(), 0) {
		return nil, ErrDegenerateExtent
	}

	res := math.Sqrt(target.Width() * target.Height() / float64(r.Width()*r.Height()))
	width := int(math.Max(1, math.Round(target.Width()/res)))
	height := int(math.Max(1, math.Round(target.Height()/res)))
	transform := geometry.GeoTransform{target.Xmin, target.Width() / float64(width), 0, target.Ymax, 0, -target.Height() / float64(height)}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	xs := make([]float64, width)
	ys := make([]float64, width)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			xs[col], ys[col] = transform.PixelToMap(float64(col)+0.5, float64(row)+0.5)
		}
		if err := cc.ConvertCoordinatesSrid(targetSrid, r.Srid, xs, ys); err != nil {
			return nil, fmt.Errorf("reprojecting row %d: %w", row, err)
		}
		for col := 0; col < width; col++ {
			px, py := r.Transform.MapToPixel(xs[col], ys[col])
			sampleBilinear(r.Image, px-0.5, py-0.5, out.Pix[out.PixOffset(col, row):])
		}
	}

	return &Raster{Image: out, Srid: targetSrid, Transform: transform, HasCRS: true}, nil
}

// sampleBilinear interpolates src at the continuous pixel position (x, y),
// measured between pixel centres, weighting colours by alpha. Positions more
// than half a pixel outside the image stay transparent.
func sampleBilinear(src *image.NRGBA, x float64, y float64, dst []uint8) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if math.IsNaN(x) || math.IsNaN(y) || x < -0.5 || y < -0.5 || x > float64(w)-0.5 || y > float64(h)-0.5 {
		return
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	var r, g, b, a float64
	for _, n := range [4]struct {
		dx, dy int
		weight float64
	}{
		{0, 0, (1 - fx) * (1 - fy)},
		{1, 0, fx * (1 - fy)},
		{0, 1, (1 - fx) * fy},
		{1, 1, fx * fy},
	} {
		if n.weight == 0 {
			continue
		}
		px := clamp(x0+n.dx, 0, w-1)
		py := clamp(y0+n.dy, 0, h-1)
		p := src.Pix[src.PixOffset(src.Rect.Min.X+px, src.Rect.Min.Y+py):]
		alpha := float64(p[3]) * n.weight
		r += float64(p[0]) * alpha
		g += float64(p[1]) * alpha
		b += float64(p[2]) * alpha
		a += alpha
	}
	if a == 0 {
		return
	}
	dst[0] = uint8(math.Round(r / a))
	dst[1] = uint8(math.Round(g / a))
	dst[2] = uint8(math.Round(b / a))
	dst[3] = uint8(math.Round(a))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
