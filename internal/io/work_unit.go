package io

import (
	"github.com/ecopia-map/cesium_texture_tiler/internal/raster"
	"github.com/paulmach/orb/maptile"
)

// Contains the minimal data needed to render a single XYZ tile, i.e. the tile address and the mosaic it is cut from
type WorkUnit struct {
	Tile     maptile.Tile
	Source   *raster.Raster
	BasePath string
}
