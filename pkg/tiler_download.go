package pkg

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
)

var ErrMissingAPIKey = errors.New("no API key provided, set the GOOGLE_API_KEY environment variable")

type TilerDownload struct {
	fetcher          tileset.Fetcher
	algorithmManager algorithm_manager.AlgorithmManager
}

func NewTilerDownload(fetcher tileset.Fetcher, algorithmManager algorithm_manager.AlgorithmManager) tiler.ITiler {
	return &TilerDownload{
		fetcher:          fetcher,
		algorithmManager: algorithmManager,
	}
}

// Checks the connection to the tile service, then walks the tileset extracting every texture into the download folder
func (tilerDownload *TilerDownload) RunTiler(ctx context.Context, opts *tiler.TilerOptions) error {
	if opts.APIKey == "" {
		return ErrMissingAPIKey
	}
	downloadOpts := opts.DownloadOptions
	if downloadOpts == nil {
		return errors.New("download options missing")
	}

	reqCtx := tileset.NewRequestContext(opts.APIKey)

	tools.LogOutput("> testing connection to", downloadOpts.EntryURL)
	result, err := tileset.CheckConnection(ctx, tilerDownload.fetcher, reqCtx.RewriteURI(downloadOpts.EntryURL))
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	if result.SessionToken != "" {
		reqCtx = reqCtx.WithSession(result.SessionToken)
	}

	var filter *tileset.BoundsFilter
	if downloadOpts.Bounds != nil {
		glog.Infof("restricting the walk to %v", downloadOpts.Bounds.GetAsArray())
		filter = &tileset.BoundsFilter{
			Bounds:    *downloadOpts.Bounds,
			Converter: tilerDownload.algorithmManager.GetCoordinateConverterAlgorithm(),
		}
	}

	walker := tileset.NewWalker(tilerDownload.fetcher, tilerDownload.algorithmManager.GetExtractorAlgorithm(), tileset.WalkerOptions{
		OutputDir:           downloadOpts.Output,
		MaxDepth:            downloadOpts.MaxDepth,
		Filter:              filter,
		FetchExternalImages: downloadOpts.FetchExternalImages,
	})

	tools.LogOutput("> downloading tiles of", opts.Region, "into", downloadOpts.Output)
	summary, err := walker.Walk(ctx, downloadOpts.EntryURL, reqCtx)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}

	if summary.ImagesExtracted == 0 {
		return fmt.Errorf("%w: the walk visited %d nodes", tiler.ErrNoImages, summary.NodesVisited)
	}
	return nil
}

func printSummary(summary *tileset.Summary) {
	tools.LogOutput("Download summary:")
	tools.LogOutput(fmt.Sprintf("  nodes visited:     %d", summary.NodesVisited))
	tools.LogOutput(fmt.Sprintf("  leaves:            %d", summary.Leaves))
	tools.LogOutput(fmt.Sprintf("  images extracted:  %d (%s)", summary.ImagesExtracted, humanize.Bytes(uint64(summary.BytesWritten))))
	tools.LogOutput(fmt.Sprintf("  images skipped:    %d", summary.ImagesSkipped))
	tools.LogOutput(fmt.Sprintf("  external images:   %d", summary.ExternalImages))
	tools.LogOutput(fmt.Sprintf("  subtrees skipped:  %d", summary.Count(tileset.Skipped)))
	tools.LogOutput(fmt.Sprintf("  subtrees failed:   %d", summary.Count(tileset.Failed)))
	for _, outcome := range summary.Outcomes {
		if outcome.Status == tileset.Failed {
			glog.Warningf("failed: %s: %s", outcome.URI, outcome.Reason)
		}
	}
}
