package pkg

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
)

// Tiler runs the stages a command needs: download or test fixtures first, then mosaic and pyramid
type Tiler struct {
	fileFinder       tools.FileFinder
	algorithmManager algorithm_manager.AlgorithmManager
	fetcher          tileset.Fetcher
}

func NewTiler(fileFinder tools.FileFinder, algorithmManager algorithm_manager.AlgorithmManager, fetcher tileset.Fetcher) tiler.ITiler {
	return &Tiler{
		fileFinder:       fileFinder,
		algorithmManager: algorithmManager,
		fetcher:          fetcher,
	}
}

// Starts the pipeline. A missing tiling utility is returned as ErrTilerUnavailable once everything else succeeded
func (t *Tiler) RunTiler(ctx context.Context, opts *tiler.TilerOptions) error {
	defer t.algorithmManager.GetCoordinateConverterAlgorithm().Cleanup()

	switch opts.Command {
	case tiler.CommandDownload:
		tools.LogOutput("Downloading 3D tiles for", opts.Region+"...")
		if err := NewTilerDownload(t.fetcher, t.algorithmManager).RunTiler(ctx, opts); err != nil {
			return err
		}
	case tiler.CommandTest:
		tools.LogOutput("Creating test images...")
		if err := NewTilerFixtures().RunTiler(ctx, opts); err != nil {
			return err
		}
	case tiler.CommandProcess:
		tools.LogOutput("Processing existing files for", opts.Region)
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}

	tools.LogOutput("Creating mosaic...")
	if err := NewTilerMosaic(t.fileFinder, t.algorithmManager).RunTiler(ctx, opts); err != nil {
		glog.Errorf("mosaic failed, tiling skipped: %v", err)
		return err
	}

	tools.LogOutput("Creating XYZ tiles...")
	err := NewTilerPyramid(t.algorithmManager).RunTiler(ctx, opts)
	if err != nil && !errors.Is(err, tiler.ErrTilerUnavailable) {
		glog.Errorf("tiling failed, the mosaic is kept at %s: %v", opts.MosaicOptions.Output, err)
		return err
	}

	if rel, relErr := filepath.Rel(opts.WorkDir, opts.PyramidOptions.Output); relErr == nil {
		tools.LogOutput("To view the tiles serve", opts.WorkDir, "with any web server, e.g.: python3 -m http.server --directory", opts.WorkDir)
		tools.LogOutput("and open http://localhost:8000/" + filepath.ToSlash(rel) + "/")
	}
	return err
}
