package pkg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geotiff"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
)

const (
	FixtureCount = 3
	FixtureSize  = 100
)

var fixtureColors = []color.NRGBA{
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
}

type TilerFixtures struct{}

func NewTilerFixtures() tiler.ITiler {
	return &TilerFixtures{}
}

// Writes overlapping georeferenced test images near London into the mosaic input folder, so that the rest of the
// pipeline can run without network access
func (tilerFixtures *TilerFixtures) RunTiler(ctx context.Context, opts *tiler.TilerOptions) error {
	if opts.MosaicOptions == nil {
		return errors.New("mosaic options missing")
	}
	dir := opts.MosaicOptions.Input
	if err := tools.CreateDirectoryIfDoesNotExist(dir); err != nil {
		return err
	}

	for i := 0; i < FixtureCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		bounds := FixtureBounds(i)
		info := geotiff.GeoInfo{
			EPSG:         converters.SridWGS84,
			Geographic:   true,
			Transform:    geometry.NewGeoTransformFromBounds(bounds, FixtureSize, FixtureSize),
			HasTransform: true,
		}
		imgPath := filepath.Join(dir, fmt.Sprintf("test_image_%d.tif", i))
		if err := geotiff.WriteFile(imgPath, FixtureImage(i), info); err != nil {
			return err
		}
		tools.LogOutput("Created georeferenced test image:", imgPath)
	}
	return nil
}

// FixtureBounds is the 0.1 degree square of the i-th test image, shifted by
// 0.02 degrees per image.
func FixtureBounds(i int) geometry.BoundingBox {
	offset := float64(i) * 0.02
	return geometry.BoundingBox{
		Xmin: -0.15 + offset,
		Xmax: -0.05 + offset,
		Ymin: 51.45 + offset,
		Ymax: 51.55 + offset,
	}
}

// FixtureImage is white with diagonal lines in the i-th primary colour.
func FixtureImage(i int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, FixtureSize, FixtureSize))
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	line := fixtureColors[i%len(fixtureColors)]
	for y := 0; y < FixtureSize; y++ {
		for x := 0; x < FixtureSize; x++ {
			if (x+y+i*10)%20 == 0 {
				img.SetNRGBA(x, y, line)
			} else {
				img.SetNRGBA(x, y, white)
			}
		}
	}
	return img
}
