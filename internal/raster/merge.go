package raster

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

// Mosaics larger than this many pixels are refused.
const MaxMosaicPixels = 1 << 28

var ErrNoInputImages = errors.New("raster: no input images")

// Merge composes rasters sharing one reference system into a mosaic covering
// the union of their extents at the resolution of the first raster. Where
// rasters overlap the first one in input order wins; transparent pixels
// never win.
func Merge(rasters []*Raster) (*Raster, error) {
	if len(rasters) == 0 {
		return nil, ErrNoInputImages
	}

	first := rasters[0]
	extent := first.Bounds()
	for _, r := range rasters[1:] {
		if r.Srid != first.Srid {
			return nil, fmt.Errorf("raster: cannot merge EPSG:%d with EPSG:%d", r.Srid, first.Srid)
		}
		extent = extent.Union(r.Bounds())
	}

	resX, resY := first.Transform.PixelWidth(), first.Transform.PixelHeight()
	width := int(math.Ceil(extent.Width()/resX - 1e-9))
	height := int(math.Ceil(extent.Height()/resY - 1e-9))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: empty mosaic extent %v", extent.GetAsArray())
	}
	if int64(width)*int64(height) > MaxMosaicPixels {
		return nil, fmt.Errorf("raster: mosaic of %dx%d pixels exceeds the limit of %d", width, height, MaxMosaicPixels)
	}

	transform := geometry.GeoTransform{extent.Xmin, resX, 0, extent.Ymax, 0, -resY}
	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, r := range rasters {
		paste(out, transform, r)
	}

	return &Raster{Image: out, Srid: first.Srid, Transform: transform, HasCRS: true}, nil
}

// paste copies the opaque pixels of r into the still transparent pixels of
// dst using nearest neighbour sampling.
func paste(dst *image.NRGBA, transform geometry.GeoTransform, r *Raster) {
	b := r.Bounds()
	c0, r0 := transform.MapToPixel(b.Xmin, b.Ymax)
	c1, r1 := transform.MapToPixel(b.Xmax, b.Ymin)
	colMin := clamp(int(math.Floor(c0)), 0, dst.Rect.Dx())
	colMax := clamp(int(math.Ceil(c1)), 0, dst.Rect.Dx())
	rowMin := clamp(int(math.Floor(r0)), 0, dst.Rect.Dy())
	rowMax := clamp(int(math.Ceil(r1)), 0, dst.Rect.Dy())

	w, h := r.Width(), r.Height()
	for row := rowMin; row < rowMax; row++ {
		for col := colMin; col < colMax; col++ {
			d := dst.Pix[dst.PixOffset(col, row):]
			if d[3] != 0 {
				continue
			}
			x, y := transform.PixelToMap(float64(col)+0.5, float64(row)+0.5)
			sx, sy := r.Transform.MapToPixel(x, y)
			if sx < 0 || sy < 0 {
				continue
			}
			ix, iy := int(sx), int(sy)
			if ix >= w || iy >= h {
				continue
			}
			s := r.Image.Pix[r.Image.PixOffset(ix, iy):]
			if s[3] == 0 {
				continue
			}
			copy(d[:4], s[:4])
		}
	}
}
