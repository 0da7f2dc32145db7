package pkg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geotiff"
	"github.com/ecopia-map/cesium_texture_tiler/internal/raster"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
	"golang.org/x/sync/semaphore"
)

type TilerMosaic struct {
	fileFinder       tools.FileFinder
	algorithmManager algorithm_manager.AlgorithmManager
}

func NewTilerMosaic(fileFinder tools.FileFinder, algorithmManager algorithm_manager.AlgorithmManager) tiler.ITiler {
	return &TilerMosaic{
		fileFinder:       fileFinder,
		algorithmManager: algorithmManager,
	}
}

// Reprojects every raster of the input folder to the target system and merges them into a single GeoTIFF
func (tilerMosaic *TilerMosaic) RunTiler(ctx context.Context, opts *tiler.TilerOptions) error {
	mosaicOpts := opts.MosaicOptions
	if mosaicOpts == nil {
		return errors.New("mosaic options missing")
	}

	glog.Infoln("Preparing list of files to process...")
	rasterFiles, err := tilerMosaic.fileFinder.GetRasterFilesToProcess(mosaicOpts)
	if err != nil {
		return fmt.Errorf("listing %s: %w", mosaicOpts.Input, err)
	}
	if len(rasterFiles) == 0 {
		return fmt.Errorf("%w: no image files found in %s", tiler.ErrNoImages, mosaicOpts.Input)
	}
	tools.LogOutput(fmt.Sprintf("Found %d images to process", len(rasterFiles)))

	if err := tools.CreateDirectoryIfDoesNotExist(filepath.Dir(mosaicOpts.Output)); err != nil {
		return err
	}
	tmpDir, err := os.MkdirTemp(filepath.Dir(mosaicOpts.Output), ".reproject-")
	if err != nil {
		return err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			glog.Warningf("cannot remove %s: %v", tmpDir, err)
		}
	}()

	reprojected, err := tilerMosaic.reprojectAll(ctx, rasterFiles, opts, tmpDir)
	if err != nil {
		return err
	}
	if len(reprojected) == 0 {
		return fmt.Errorf("%w: none of the %d files could be reprojected", tiler.ErrNoImages, len(rasterFiles))
	}

	return tilerMosaic.merge(reprojected, opts)
}

// Reprojects the files with bounded parallelism and returns the reprojected temporary files in input order. Files
// that cannot be read or reprojected are logged and left out
func (tilerMosaic *TilerMosaic) reprojectAll(ctx context.Context, rasterFiles []string, opts *tiler.TilerOptions, tmpDir string) ([]string, error) {
	mosaicOpts := opts.MosaicOptions
	workers := mosaicOpts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	sem := semaphore.NewWeighted(int64(workers))
	converter := tilerMosaic.algorithmManager.GetCoordinateConverterAlgorithm()
	defaults := raster.Defaults{Srid: mosaicOpts.DefaultSrid, Bounds: mosaicOpts.DefaultBounds}
	geographic := isGeographic(mosaicOpts.TargetSrid, opts.CrsDefinitions)

	outputs := make([]string, len(rasterFiles))
	var waitGroup sync.WaitGroup
	for i, filePath := range rasterFiles {
		if err := sem.Acquire(ctx, 1); err != nil {
			waitGroup.Wait()
			return nil, err
		}
		waitGroup.Add(1)
		go func(i int, filePath string) {
			defer waitGroup.Done()
			defer sem.Release(1)

			tmpPath := filepath.Join(tmpDir, fmt.Sprintf("reprojected_%d.tif", i))
			if err := reprojectFile(filePath, tmpPath, defaults, mosaicOpts.TargetSrid, geographic, converter); err != nil {
				glog.Errorf("Error processing %s: %v", filepath.Base(filePath), err)
				return
			}
			glog.Infof("Reprojected %s to EPSG:%d", filepath.Base(filePath), mosaicOpts.TargetSrid)
			outputs[i] = tmpPath
		}(i, filePath)
	}
	waitGroup.Wait()

	reprojected := make([]string, 0, len(outputs))
	for _, tmpPath := range outputs {
		if tmpPath != "" {
			reprojected = append(reprojected, tmpPath)
		}
	}
	return reprojected, nil
}

func reprojectFile(filePath string, tmpPath string, defaults raster.Defaults, targetSrid int, geographic bool, converter converters.CoordinateConverter) error {
	source, err := raster.Load(filePath, defaults)
	if err != nil {
		return err
	}
	out, err := raster.Reproject(source, targetSrid, converter)
	if err != nil {
		return err
	}
	return geotiff.WriteFile(tmpPath, out.Image, geotiff.GeoInfo{
		EPSG:         out.Srid,
		Geographic:   geographic,
		Transform:    out.Transform,
		HasTransform: true,
	})
}

func (tilerMosaic *TilerMosaic) merge(reprojected []string, opts *tiler.TilerOptions) error {
	mosaicOpts := opts.MosaicOptions

	tools.LogOutput(fmt.Sprintf("Merging %d reprojected files...", len(reprojected)))
	rasters := make([]*raster.Raster, 0, len(reprojected))
	for _, tmpPath := range reprojected {
		r, err := raster.Load(tmpPath, raster.Defaults{})
		if err != nil {
			return fmt.Errorf("reading back %s: %w", tmpPath, err)
		}
		rasters = append(rasters, r)
	}

	mosaic, err := raster.Merge(rasters)
	if err != nil {
		return fmt.Errorf("creating mosaic: %w", err)
	}

	info := geotiff.GeoInfo{
		EPSG:         mosaic.Srid,
		Geographic:   isGeographic(mosaic.Srid, opts.CrsDefinitions),
		Transform:    mosaic.Transform,
		HasTransform: true,
	}
	if err := geotiff.WriteFile(mosaicOpts.Output, mosaic.Image, info); err != nil {
		return fmt.Errorf("writing mosaic: %w", err)
	}

	tools.LogOutput(fmt.Sprintf("Mosaic of %dx%d pixels written to %s", mosaic.Width(), mosaic.Height(), mosaicOpts.Output))
	return nil
}

func isGeographic(srid int, extra map[int]string) bool {
	definition, err := converters.NewDefinitions(extra).Lookup(srid)
	if err != nil {
		return false
	}
	return converters.IsGeographic(definition)
}
