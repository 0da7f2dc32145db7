// Package raster loads georeferenced images, reprojects them and merges them
// into a single mosaic.
package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geotiff"
	"github.com/golang/glog"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Raster is an RGBA image placed on the map by Transform in the reference
// system Srid. HasCRS is false when the placement was assigned by default
// rather than read from the file.
type Raster struct {
	Image     *image.NRGBA
	Srid      int
	Transform geometry.GeoTransform
	HasCRS    bool
}

func (r *Raster) Width() int {
	return r.Image.Bounds().Dx()
}

func (r *Raster) Height() int {
	return r.Image.Bounds().Dy()
}

func (r *Raster) Bounds() geometry.BoundingBox {
	return r.Transform.Bounds(r.Width(), r.Height())
}

// Defaults places rasters that carry no georeferencing.
type Defaults struct {
	Srid   int
	Bounds geometry.BoundingBox
}

// Load decodes a PNG, JPEG, WebP or (Geo)TIFF file. Files without a usable
// reference system get the defaults instead of being rejected.
func Load(filePath string, defaults Defaults) (*Raster, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data, defaults)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	if !r.HasCRS {
		glog.Warningf("%s has no reference system, assigning EPSG:%d with bounds %v", filePath, r.Srid, defaults.Bounds.GetAsArray())
	}
	return r, nil
}

func Decode(data []byte, defaults Defaults) (*Raster, error) {
	var img image.Image
	var info geotiff.GeoInfo
	var err error

	if isTIFF(data) {
		img, err = tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		info, err = geotiff.ReadGeoInfo(data)
		if err != nil {
			return nil, err
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
	}

	r := &Raster{Image: ToNRGBA(img), Srid: info.EPSG, Transform: info.Transform, HasCRS: info.HasCRS()}
	if r.Width() == 0 || r.Height() == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if !info.HasTransform {
		r.Transform = geometry.NewGeoTransformFromBounds(defaults.Bounds, r.Width(), r.Height())
	}
	if info.EPSG == 0 {
		r.Srid = defaults.Srid
	}
	return r, nil
}

// ToNRGBA returns img as a zero-origin NRGBA image, converting if needed.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Copy(out, image.Point{}, img, b, draw.Src, nil)
	return out
}

func isTIFF(data []byte) bool {
	return len(data) >= 4 && (string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*")
}
