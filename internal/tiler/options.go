package tiler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

type TileEngine string

const (

	// Runs the external gdal2tiles utility. When it cannot be found a static page noting the missing dependency is
	// written in place of the tiles.
	Gdal2Tiles TileEngine = "GDAL2TILES"

	// Cuts the tiles in process from the EPSG:3857 mosaic, one consumer goroutine per CPU.
	Native TileEngine = "NATIVE"

	// gdal2tiles when found on the PATH, native otherwise.
	Auto TileEngine = "AUTO"
)

const (
	CommandDownload = "download"
	CommandProcess  = "process"
	CommandTest     = "test"
)

var (
	// No image could be extracted or found, so there is nothing to mosaic.
	ErrNoImages = errors.New("no images available")

	// The external tiling utility is missing; a degraded viewer page was written instead of tiles.
	ErrTilerUnavailable = errors.New("tiling utility unavailable")
)

func (e TileEngine) String() string {
	if e == Gdal2Tiles {
		return "GDAL2TILES"
	} else if e == Native {
		return "NATIVE"
	} else if e == Auto {
		return "AUTO"
	}
	return ""
}

func ParseTileEngine(value string) TileEngine {
	normalizedValue := strings.Trim(strings.ToUpper(value), " ")
	if normalizedValue == "GDAL2TILES" {
		return Gdal2Tiles
	} else if normalizedValue == "NATIVE" {
		return Native
	} else if normalizedValue == "AUTO" {
		return Auto
	}
	return ""
}

// A runnable stage of the pipeline
type ITiler interface {
	RunTiler(ctx context.Context, opts *TilerOptions) error
}

// Contains the options of a single run. Built once by main and never modified afterwards
type TilerOptions struct {
	Command        string         // download, process or test
	WorkDir        string         // Root of downloaded_tiles/ and tiles/
	Region         string         // Region label, only used to derive output paths and the optional bounds filter
	APIKey         string         // API key sent with every tile service request
	CrsDefinitions map[int]string // Extra EPSG code -> proj4 definitions

	DownloadOptions *DownloadOptions
	MosaicOptions   *MosaicOptions
	PyramidOptions  *PyramidOptions
}

type DownloadOptions struct {
	EntryURL            string                // Root tileset URL, without credentials
	Output              string                // Flat folder receiving leaf payloads and extracted images
	MaxDepth            int                   // Maximum traversal depth, 0 for unlimited
	Bounds              *geometry.BoundingBox // WGS84 region filter, nil to walk the whole tree
	FetchExternalImages bool                  // Downloads images referenced by URI next to the extracted ones
	Timeout             time.Duration         // Per request timeout
	Retries             int                   // Retries on 429 and 5xx responses
	UserAgent           string
}

type MosaicOptions struct {
	Input         string               // Folder holding the rasters to merge
	Output        string               // Mosaic GeoTIFF path
	TargetSrid    int                  // EPSG code of the mosaic
	DefaultSrid   int                  // EPSG code assigned to rasters without one
	DefaultBounds geometry.BoundingBox // Placement of rasters without a geotransform
	Workers       int                  // Parallel reprojections, 0 for one per CPU
	Recursive     bool                 // Looks for rasters in subfolders too
}

type PyramidOptions struct {
	Input          string     // Mosaic GeoTIFF path
	Output         string     // Tile folder
	MinZoom        int        // First zoom level
	MaxZoom        int        // Last zoom level
	Engine         TileEngine // Tiling engine to use
	Gdal2TilesPath string     // gdal2tiles executable, looked up on the PATH when empty
}

func (opt *TilerOptions) Copy() *TilerOptions {
	newOpt := &TilerOptions{
		Command:         opt.Command,
		WorkDir:         opt.WorkDir,
		Region:          opt.Region,
		APIKey:          opt.APIKey,
		CrsDefinitions:  nil,
		DownloadOptions: nil,
		MosaicOptions:   nil,
		PyramidOptions:  nil,
	}

	if opt.CrsDefinitions != nil {
		newOpt.CrsDefinitions = make(map[int]string, len(opt.CrsDefinitions))
		for code, def := range opt.CrsDefinitions {
			newOpt.CrsDefinitions[code] = def
		}
	}

	if opt.DownloadOptions != nil {
		downloadOpt := *opt.DownloadOptions
		if downloadOpt.Bounds != nil {
			bounds := *downloadOpt.Bounds
			downloadOpt.Bounds = &bounds
		}
		newOpt.DownloadOptions = &downloadOpt
	}

	if opt.MosaicOptions != nil {
		mosaicOpt := *opt.MosaicOptions
		newOpt.MosaicOptions = &mosaicOpt
	}

	if opt.PyramidOptions != nil {
		pyramidOpt := *opt.PyramidOptions
		newOpt.PyramidOptions = &pyramidOpt
	}

	return newOpt
}
