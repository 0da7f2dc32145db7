// Package geotiff reads the georeferencing tags of TIFF files and writes
// 8-bit RGBA GeoTIFFs. Pixel decoding is left to golang.org/x/image/tiff.
package geotiff

import (
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagPlanarConfiguration       = 284
	tagExtraSamples              = 338

	TagModelPixelScale     = 33550
	TagModelTiepoint       = 33922
	TagModelTransformation = 34264
	TagGeoKeyDirectory     = 34735
)

const (
	dtByte   = 1
	dtASCII  = 2
	dtShort  = 3
	dtLong   = 4
	dtDouble = 12
)

const (
	KeyModelType        = 1024
	KeyRasterType       = 1025
	KeyGeographicType   = 2048
	KeyProjectedCSType  = 3072
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	rasterPixelIsPoint  = 2
	userDefined         = 32767
)

// GeoInfo is the georeferencing carried by a GeoTIFF. EPSG is zero when the
// file declares no usable code; HasTransform is false when it carries no
// pixel-to-model mapping.
type GeoInfo struct {
	EPSG         int
	Geographic   bool
	Transform    geometry.GeoTransform
	HasTransform bool
}

// HasCRS reports whether info is complete enough to place the raster.
func (g GeoInfo) HasCRS() bool {
	return g.EPSG != 0 && g.HasTransform
}
