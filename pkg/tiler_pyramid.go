package pkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geotiff"
	"github.com/ecopia-map/cesium_texture_tiler/internal/io"
	"github.com/ecopia-map/cesium_texture_tiler/internal/raster"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff"
)

const Gdal2TilesExecutable = "gdal2tiles.py"

type TilerPyramid struct {
	algorithmManager algorithm_manager.AlgorithmManager
	lookPath         func(file string) (string, error)
}

func NewTilerPyramid(algorithmManager algorithm_manager.AlgorithmManager) tiler.ITiler {
	return &TilerPyramid{
		algorithmManager: algorithmManager,
		lookPath:         exec.LookPath,
	}
}

// Cuts the mosaic into an XYZ tile pyramid and writes a viewer page next to the tiles. When gdal2tiles is requested
// but missing, only a page noting the missing dependency is written and ErrTilerUnavailable is returned
func (tilerPyramid *TilerPyramid) RunTiler(ctx context.Context, opts *tiler.TilerOptions) error {
	pyramidOpts := opts.PyramidOptions
	if pyramidOpts == nil {
		return errors.New("pyramid options missing")
	}
	if _, err := os.Stat(pyramidOpts.Input); err != nil {
		return fmt.Errorf("mosaic file %s does not exist: %w", pyramidOpts.Input, err)
	}
	if err := tools.CreateDirectoryIfDoesNotExist(pyramidOpts.Output); err != nil {
		return err
	}

	bounds, err := tilerPyramid.mosaicBounds(pyramidOpts.Input)
	if err != nil {
		return err
	}
	page := newViewerPage(opts.Region, bounds)
	page.MinZoom, page.MaxZoom = pyramidOpts.MinZoom, pyramidOpts.MaxZoom

	gdal2tilesPath := tilerPyramid.findGdal2Tiles(pyramidOpts)

	engine := pyramidOpts.Engine
	if engine == tiler.Auto {
		engine = tiler.Native
		if gdal2tilesPath != "" {
			engine = tiler.Gdal2Tiles
		}
	}
	glog.Infof("tiling %s with engine %s, zoom %d-%d", pyramidOpts.Input, engine, pyramidOpts.MinZoom, pyramidOpts.MaxZoom)

	switch engine {
	case tiler.Gdal2Tiles:
		if gdal2tilesPath == "" {
			page.Missing = Gdal2TilesExecutable
			page.MosaicPath = pyramidOpts.Input
			page.Command = "cesium_texture_tiler process " + opts.Region
			if err := writeViewer(pyramidOpts.Output, page); err != nil {
				return err
			}
			tools.LogOutput("Warning: XYZ tiles not created as", Gdal2TilesExecutable, "is not available")
			tools.LogOutput("Mosaic file is located at:", pyramidOpts.Input)
			return tiler.ErrTilerUnavailable
		}
		if err := invokeGdal2Tiles(ctx, gdal2tilesPath, pyramidOpts); err != nil {
			return err
		}
		// gdal2tiles writes TMS rows unless asked for --xyz, which older releases lack
		page.TMS = true
	case tiler.Native:
		if err := tilerPyramid.buildNative(pyramidOpts, bounds); err != nil {
			return err
		}
		if err := writeTileJSON(pyramidOpts.Output, opts.Region, bounds, pyramidOpts.MinZoom, pyramidOpts.MaxZoom); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown tiling engine %q", pyramidOpts.Engine)
	}

	if err := writeViewer(pyramidOpts.Output, page); err != nil {
		return err
	}
	tools.LogOutput("Created viewer HTML at", pyramidOpts.Output)
	return nil
}

func (tilerPyramid *TilerPyramid) findGdal2Tiles(pyramidOpts *tiler.PyramidOptions) string {
	name := pyramidOpts.Gdal2TilesPath
	if name == "" {
		name = Gdal2TilesExecutable
	}
	path, err := tilerPyramid.lookPath(name)
	if err != nil {
		glog.V(1).Infof("%s not found: %v", name, err)
		return ""
	}
	return path
}

// Returns the WGS84 extent of the mosaic, reading only the tiff header and geo tags
func (tilerPyramid *TilerPyramid) mosaicBounds(mosaicPath string) (geometry.BoundingBox, error) {
	data, err := os.ReadFile(mosaicPath)
	if err != nil {
		return geometry.BoundingBox{}, err
	}
	config, err := tiff.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return geometry.BoundingBox{}, fmt.Errorf("reading %s: %w", mosaicPath, err)
	}
	info, err := geotiff.ReadGeoInfo(data)
	if err != nil {
		return geometry.BoundingBox{}, fmt.Errorf("reading %s: %w", mosaicPath, err)
	}
	if !info.HasCRS() {
		return geometry.BoundingBox{}, fmt.Errorf("mosaic %s is not georeferenced", mosaicPath)
	}

	extent := info.Transform.Bounds(config.Width, config.Height)
	wgs84, err := tilerPyramid.algorithmManager.GetCoordinateConverterAlgorithm().Convert2DBoundingboxToWGS84Region(&extent, info.EPSG)
	if err != nil {
		return geometry.BoundingBox{}, err
	}
	return *wgs84, nil
}

func invokeGdal2Tiles(ctx context.Context, programLocation string, pyramidOpts *tiler.PyramidOptions) error {
	cmdParams := []string{
		"-z", fmt.Sprintf("%d-%d", pyramidOpts.MinZoom, pyramidOpts.MaxZoom),
		pyramidOpts.Input,
		pyramidOpts.Output,
	}

	runCmd := exec.CommandContext(ctx, programLocation, cmdParams...)
	tools.LogOutput("Running:", runCmd.String())

	var cmdStdout, cmdStderr bytes.Buffer
	runCmd.Stdout = &cmdStdout
	runCmd.Stderr = &cmdStderr

	if err := runCmd.Run(); err != nil {
		glog.Errorln("run failed", runCmd.String(), "cmd-stdout", cmdStdout.String(), "cmd-stderr", cmdStderr.String(), err.Error())
		return fmt.Errorf("running %s: %w", programLocation, err)
	}
	glog.V(1).Infoln(cmdStdout.String())
	return nil
}

// Renders the pyramid in process with a producer goroutine and a consumer goroutine per CPU
func (tilerPyramid *TilerPyramid) buildNative(pyramidOpts *tiler.PyramidOptions, bounds geometry.BoundingBox) error {
	mosaic, err := raster.Load(pyramidOpts.Input, raster.Defaults{})
	if err != nil {
		return err
	}
	if mosaic.Srid != 3857 {
		mosaic, err = raster.Reproject(mosaic, 3857, tilerPyramid.algorithmManager.GetCoordinateConverterAlgorithm())
		if err != nil {
			return err
		}
	}

	// a consumer goroutine per CPU
	numConsumers := runtime.NumCPU()

	// init channel where to submit work with a buffer 5 times greater than the number of consumer
	workChannel := make(chan *io.WorkUnit, numConsumers*5)

	// init channel where consumers can eventually submit errors that prevented them to finish the job
	errorChannel := make(chan error, numConsumers)

	var waitGroup sync.WaitGroup
	var written, empty int64

	// add producer to waitgroup and launch producer goroutine
	waitGroup.Add(1)
	wgs84 := orb.Bound{Min: orb.Point{bounds.Xmin, bounds.Ymin}, Max: orb.Point{bounds.Xmax, bounds.Ymax}}
	producer := io.NewStandardProducer(pyramidOpts.Output, mosaic, wgs84, pyramidOpts.MinZoom, pyramidOpts.MaxZoom)
	go producer.Produce(workChannel, &waitGroup)

	// add consumers to waitgroup and launch them
	for i := 0; i < numConsumers; i++ {
		waitGroup.Add(1)
		consumer := io.NewStandardConsumer(io.TileSize, &written, &empty)
		go consumer.Consume(workChannel, errorChannel, &waitGroup)
	}

	// collect errors while the workers run, the channel is closed once they are done
	var errs []error
	collected := make(chan struct{})
	go func() {
		for err := range errorChannel {
			glog.Errorln(err)
			errs = append(errs, err)
		}
		close(collected)
	}()

	waitGroup.Wait()
	close(errorChannel)
	<-collected

	tools.LogOutput(fmt.Sprintf("%d tiles written, %d empty tiles skipped", atomic.LoadInt64(&written), atomic.LoadInt64(&empty)))
	if len(errs) > 0 {
		return fmt.Errorf("%d tiles failed, first error: %w", len(errs), errs[0])
	}
	if written == 0 {
		return fmt.Errorf("no tile was written for zoom %d-%d", pyramidOpts.MinZoom, pyramidOpts.MaxZoom)
	}
	return nil
}
