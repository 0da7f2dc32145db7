package io

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"path"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ecopia-map/cesium_texture_tiler/internal/raster"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
	"github.com/nfnt/resize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

const TileSize = 256

type StandardConsumer struct {
	tileSize int
	written  *int64
	empty    *int64
}

// NewStandardConsumer renders tiles of tileSize pixels. The counters are
// shared between consumers and may be nil.
func NewStandardConsumer(tileSize int, written *int64, empty *int64) *StandardConsumer {
	if tileSize <= 0 {
		tileSize = TileSize
	}
	if written == nil {
		written = new(int64)
	}
	if empty == nil {
		empty = new(int64)
	}
	return &StandardConsumer{
		tileSize: tileSize,
		written:  written,
		empty:    empty,
	}
}

// Continually consumes WorkUnits submitted to a work channel producing the corresponding png tiles and writing them
// under <BasePath>/<z>/<x>/<y>.png. Tiles without a single opaque pixel are not written
func (c *StandardConsumer) Consume(workchan chan *WorkUnit, errchan chan error, wg *sync.WaitGroup) {
	// signal waitgroup finished work
	defer wg.Done()
	for {
		// get work from channel
		work, ok := <-workchan
		if !ok {
			// channel was closed by producer, quit infinite loop
			break
		}

		// do work
		err := c.doWork(work)

		// if there were errors during work send in error channel
		if err != nil {
			errchan <- err
		}
	}
}

func (c *StandardConsumer) doWork(workUnit *WorkUnit) error {
	img, err := RenderTile(workUnit.Source, workUnit.Tile.X, workUnit.Tile.Y, uint32(workUnit.Tile.Z), c.tileSize)
	if err != nil {
		return fmt.Errorf("tile %d/%d/%d: %w", workUnit.Tile.Z, workUnit.Tile.X, workUnit.Tile.Y, err)
	}
	if img == nil {
		atomic.AddInt64(c.empty, 1)
		return nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}

	dir := path.Join(workUnit.BasePath, strconv.Itoa(int(workUnit.Tile.Z)), strconv.Itoa(int(workUnit.Tile.X)))
	if err := tools.CreateDirectoryIfDoesNotExist(dir); err != nil {
		return err
	}
	if err := tools.WriteFileAtomic(path.Join(dir, strconv.Itoa(int(workUnit.Tile.Y))+".png"), buf.Bytes()); err != nil {
		return err
	}
	atomic.AddInt64(c.written, 1)
	glog.V(1).Infof("tile %d/%d/%d written", workUnit.Tile.Z, workUnit.Tile.X, workUnit.Tile.Y)
	return nil
}

// RenderTile cuts the XYZ tile z/x/y out of an EPSG:3857 raster. It returns a
// nil image when the tile holds no opaque pixel.
func RenderTile(source *raster.Raster, x, y, z uint32, tileSize int) (*image.NRGBA, error) {
	if source.Srid != 3857 {
		return nil, fmt.Errorf("tiles are cut from EPSG:3857 rasters, got EPSG:%d", source.Srid)
	}

	// tile corners in mercator meters
	n := math.Exp2(float64(z))
	west := project.WGS84.ToMercator(orb.Point{float64(x)/n*360 - 180, 0})[0]
	east := project.WGS84.ToMercator(orb.Point{float64(x+1)/n*360 - 180, 0})[0]
	north := mercatorY(float64(y), n)
	south := mercatorY(float64(y+1), n)

	// tile window in source pixels
	c0, r0 := source.Transform.MapToPixel(west, north)
	c1, r1 := source.Transform.MapToPixel(east, south)
	if c1 <= c0 || r1 <= r0 {
		return nil, fmt.Errorf("degenerate tile window")
	}
	scaleX := float64(tileSize) / (c1 - c0)
	scaleY := float64(tileSize) / (r1 - r0)

	// intersect with the source, snapping outwards to whole pixels
	sx0 := int(math.Floor(math.Max(c0, 0)))
	sy0 := int(math.Floor(math.Max(r0, 0)))
	sx1 := int(math.Ceil(math.Min(c1, float64(source.Width()))))
	sy1 := int(math.Ceil(math.Min(r1, float64(source.Height()))))
	if sx1 <= sx0 || sy1 <= sy0 {
		return nil, nil
	}

	// where that source window lands in the tile
	dx0 := int(math.Round((float64(sx0) - c0) * scaleX))
	dy0 := int(math.Round((float64(sy0) - r0) * scaleY))
	dx1 := int(math.Round((float64(sx1) - c0) * scaleX))
	dy1 := int(math.Round((float64(sy1) - r0) * scaleY))
	if dx1 <= dx0 || dy1 <= dy0 {
		return nil, nil
	}

	window := raster.ToNRGBA(source.Image.SubImage(image.Rect(sx0, sy0, sx1, sy1)))
	resized := resize.Resize(uint(dx1-dx0), uint(dy1-dy0), window, resize.MitchellNetravali)

	tile := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	draw.Draw(tile, image.Rect(dx0, dy0, dx1, dy1), resized, resized.Bounds().Min, draw.Src)

	if isTransparent(tile) {
		return nil, nil
	}
	return tile, nil
}

// mercatorY returns the northern edge of tile row y at n tiles per axis.
func mercatorY(y float64, n float64) float64 {
	lat := math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
	return project.WGS84.ToMercator(orb.Point{0, lat})[1]
}

func isTransparent(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 {
			return false
		}
	}
	return true
}
