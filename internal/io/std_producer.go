package io

import (
	"math"
	"sync"

	"github.com/ecopia-map/cesium_texture_tiler/internal/raster"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

type StandardProducer struct {
	basePath string
	source   *raster.Raster
	bounds   orb.Bound
	minZoom  maptile.Zoom
	maxZoom  maptile.Zoom
}

// NewStandardProducer submits every tile of zoom levels minZoom..maxZoom that
// touches bounds, given in WGS84 degrees.
func NewStandardProducer(basePath string, source *raster.Raster, bounds orb.Bound, minZoom, maxZoom int) Producer {
	return &StandardProducer{
		basePath: basePath,
		source:   source,
		bounds:   bounds,
		minZoom:  maptile.Zoom(minZoom),
		maxZoom:  maptile.Zoom(maxZoom),
	}
}

// Submits a WorkUnit per tile to the provided workchannel.
// Closes the channel when all work is submitted.
func (p *StandardProducer) Produce(work chan *WorkUnit, wg *sync.WaitGroup) {
	for z := p.minZoom; z <= p.maxZoom; z++ {
		for _, tile := range TilesCovering(p.bounds, z) {
			work <- &WorkUnit{
				Tile:     tile,
				Source:   p.source,
				BasePath: p.basePath,
			}
		}
	}
	close(work)
	wg.Done()
}

// TilesCovering lists the tiles of zoom z touching bounds, row by row.
func TilesCovering(bounds orb.Bound, z maptile.Zoom) []maptile.Tile {
	clamped := orb.Bound{
		Min: orb.Point{math.Max(bounds.Min[0], -180), math.Max(bounds.Min[1], -raster.MaxMercatorLatitude)},
		Max: orb.Point{math.Min(bounds.Max[0], 180), math.Min(bounds.Max[1], raster.MaxMercatorLatitude)},
	}
	if clamped.Min[0] > clamped.Max[0] || clamped.Min[1] > clamped.Max[1] {
		return nil
	}

	minTile := maptile.At(clamped.Min, z)
	maxTile := maptile.At(clamped.Max, z)

	// XYZ rows grow southwards
	minTile.Y, maxTile.Y = maxTile.Y, minTile.Y

	last := uint32(1)<<uint32(z) - 1
	if maxTile.X > last {
		maxTile.X = last
	}
	if maxTile.Y > last {
		maxTile.Y = last
	}

	var tiles []maptile.Tile
	for y := minTile.Y; y <= maxTile.Y; y++ {
		for x := minTile.X; x <= maxTile.X; x++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}
