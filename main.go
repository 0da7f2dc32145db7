/*
 * This file is part of the Go Cesium Point Cloud Tiler distribution (https://github.com/mfbonfigli/gocesiumtiler).
 * Copyright (c) 2019 Massimo Federico Bonfigli - m.federico.bonfigli@gmail.com
 *
 * This program is free software; you can redistribute it and/or modify it
 * under the terms of the GNU Lesser General Public License Version 3 as
 * published by the Free Software Foundation;
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
 * Lesser General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General Public License
 * along with this program. If not, see <http://www.gnu.org/licenses/>.
 *
 * This software also uses third party components. You can find information
 * on their credits and licensing in the file LICENSE-3RD-PARTIES.md that
 * you should have received togheter with the source code.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
	"github.com/ecopia-map/cesium_texture_tiler/pkg"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager/std_algorithm_manager"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
)

const VERSION = "0.3.0"

const (
	apiKeyEnv      = "GOOGLE_API_KEY"
	defaultRegion  = "london"
	testRegion     = "test"
	downloadFolder = "downloaded_tiles"
	tilesFolder    = "tiles"
)

const logo = `
  ___ ___  ___(_)_   _ _ __ ___   | |_ _____  _| |_ _   _ _ __ ___
 / __/ _ \/ __| | | | | '_   _ \  | __/ _ \ \/ / __| | | | '__/ _ \
| (_|  __/\__ \ | |_| | | | | | | | ||  __/>  <| |_| |_| | | |  __/
 \___\___||___/_|\__,_|_| |_| |_|  \__\___/_/\_\\__|\__,_|_|  \___|
  Textures of photorealistic 3D tiles as XYZ map tiles
  Copyright YYYY
`

func main() {
	log.SetPrefix("[texture-tiler] ")
	log.SetFlags(log.LUTC | log.Ldate | log.Lmicroseconds | log.Lshortfile)

	// glog writes to files unless told otherwise
	flag.Set("logtostderr", "true")

	flagsGlobal := tools.ParseFlagsGlobal()
	if *flagsGlobal.Help {
		showHelp()
		return
	}
	if *flagsGlobal.Version {
		printVersion()
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		showHelp()
		log.Fatal("Please specify a subcommand [download|process|test].")
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case tools.CommandDownload, tools.CommandProcess, tools.CommandTest:
		os.Exit(mainCommand(cmd, args))
	default:
		log.Fatalf("Unrecognized command [%q]. Command must be one of [download|process|test]", cmd)
	}
}

func mainCommand(cmd string, args []string) int {
	flags := tools.ParseFlagsForCommand(cmd, args)

	if *flags.Help {
		showHelp()
		return 0
	}

	if *flags.Silent {
		tools.DisableLogger()
	} else {
		printLogo()
	}
	if !*flags.LogTimestamp {
		tools.DisableLoggerTimestamp()
	}

	region := flags.Region
	switch cmd {
	case tools.CommandDownload:
		if region == "" {
			log.Println("Please specify the region to download, e.g. download \"new york\"")
			return 1
		}
	case tools.CommandProcess:
		if region == "" {
			region = defaultRegion
		}
	case tools.CommandTest:
		region = testRegion
	}

	config, err := tiler.LoadConfig(*flags.Config)
	if err != nil {
		log.Println("Error loading configuration:", err)
		return 1
	}

	opts, err := buildOptions(cmd, region, config, &flags)
	if err != nil {
		log.Println("Error parsing input parameters:", err)
		return 1
	}

	// Validate TilerOptions
	if msg, res := validateOptions(opts); !res {
		log.Println("Error parsing input parameters: " + msg)
		return 1
	}

	fetcher, err := newFetcher(config, &flags)
	if err != nil {
		log.Println("Error parsing input parameters:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer timeTrack(time.Now(), cmd)
	err = pkg.NewTiler(tools.NewStandardFileFinder(), std_algorithm_manager.NewAlgorithmManager(opts), fetcher).RunTiler(ctx, opts)

	switch {
	case err == nil:
		tools.LogOutput("Processing Completed")
		return 0
	case errors.Is(err, tiler.ErrTilerUnavailable):
		log.Println("Warning:", err)
		return 0
	default:
		log.Println("Error while tiling:", err)
		return 1
	}
}

// Merges the configuration file and the command line flags into a TilerOptions struct, flags winning
func buildOptions(cmd string, region string, config *tiler.Config, flags *tools.FlagsForCommand) (*tiler.TilerOptions, error) {
	workDir := *flags.WorkDir
	if workDir == "" {
		workDir = tools.GetRootFolder()
	}
	regionDir := tools.RegionDir(region)
	downloadDir := filepath.Join(workDir, downloadFolder, regionDir)
	mosaicPath := filepath.Join(workDir, downloadFolder, regionDir+"_mosaic_"+strconv.Itoa(config.Mosaic.TargetEPSG)+".tif")

	timeout, err := config.ServiceTimeout()
	if err != nil {
		return nil, err
	}

	downloadOpts := &tiler.DownloadOptions{
		EntryURL:            config.Service.EntryURL,
		Output:              downloadDir,
		MaxDepth:            config.Service.MaxDepth,
		FetchExternalImages: config.Service.FetchExternalImages || *flags.FetchExternal,
		Timeout:             timeout,
		Retries:             config.Service.Retries,
		UserAgent:           config.Service.UserAgent,
	}
	if *flags.EntryURL != "" {
		downloadOpts.EntryURL = *flags.EntryURL
	}
	if *flags.MaxDepth >= 0 {
		downloadOpts.MaxDepth = *flags.MaxDepth
	}
	if *flags.Retries >= 0 {
		downloadOpts.Retries = *flags.Retries
	}
	if *flags.BBox != "" {
		bbox, err := tools.ParseBBox(*flags.BBox)
		if err != nil {
			return nil, err
		}
		downloadOpts.Bounds = &geometry.BoundingBox{Xmin: bbox[0], Ymin: bbox[1], Xmax: bbox[2], Ymax: bbox[3]}
	} else if bounds, ok := config.RegionBounds(region); ok {
		downloadOpts.Bounds = bounds
	}

	d := config.Mosaic.DefaultBounds
	mosaicOpts := &tiler.MosaicOptions{
		Input:         downloadDir,
		Output:        mosaicPath,
		TargetSrid:    config.Mosaic.TargetEPSG,
		DefaultSrid:   config.Mosaic.DefaultEPSG,
		DefaultBounds: geometry.BoundingBox{Xmin: d[0], Ymin: d[1], Xmax: d[2], Ymax: d[3]},
		Workers:       config.Mosaic.Workers,
		Recursive:     *flags.Recursive,
	}
	if *flags.TargetSrid != 0 {
		mosaicOpts.TargetSrid = *flags.TargetSrid
		mosaicOpts.Output = filepath.Join(workDir, downloadFolder, regionDir+"_mosaic_"+strconv.Itoa(*flags.TargetSrid)+".tif")
	}
	if *flags.DefaultSrid != 0 {
		mosaicOpts.DefaultSrid = *flags.DefaultSrid
	}
	if *flags.Workers > 0 {
		mosaicOpts.Workers = *flags.Workers
	}

	pyramidOpts := &tiler.PyramidOptions{
		Input:          mosaicOpts.Output,
		Output:         filepath.Join(workDir, tilesFolder, regionDir),
		MinZoom:        config.Pyramid.MinZoom,
		MaxZoom:        config.Pyramid.MaxZoom,
		Engine:         tiler.ParseTileEngine(config.Pyramid.Engine),
		Gdal2TilesPath: config.Pyramid.Gdal2TilesPath,
	}
	if *flags.Zoom != "" {
		minZoom, maxZoom, err := tools.ParseZoomRange(*flags.Zoom)
		if err != nil {
			return nil, err
		}
		pyramidOpts.MinZoom, pyramidOpts.MaxZoom = minZoom, maxZoom
	}
	if *flags.Engine != "" {
		pyramidOpts.Engine = tiler.ParseTileEngine(*flags.Engine)
		if pyramidOpts.Engine == "" {
			return nil, fmt.Errorf("unknown engine %q", *flags.Engine)
		}
	}
	if *flags.Gdal2TilesPath != "" {
		pyramidOpts.Gdal2TilesPath = *flags.Gdal2TilesPath
	}

	return &tiler.TilerOptions{
		Command:         cmd,
		WorkDir:         workDir,
		Region:          region,
		APIKey:          os.Getenv(apiKeyEnv),
		CrsDefinitions:  config.CrsDefinitions,
		DownloadOptions: downloadOpts,
		MosaicOptions:   mosaicOpts,
		PyramidOptions:  pyramidOpts,
	}, nil
}

// Validates the options before any work starts: the API key for downloads and the download folder for processing
func validateOptions(opts *tiler.TilerOptions) (string, bool) {
	switch opts.Command {
	case tools.CommandDownload:
		if opts.APIKey == "" {
			return "the " + apiKeyEnv + " environment variable is not set", false
		}
	case tools.CommandProcess:
		entries, err := os.ReadDir(opts.MosaicOptions.Input)
		if os.IsNotExist(err) {
			return "download folder " + opts.MosaicOptions.Input + " not found, run the download command first", false
		}
		if err != nil {
			return err.Error(), false
		}
		if len(entries) == 0 {
			return "download folder " + opts.MosaicOptions.Input + " is empty", false
		}
	}
	return "", true
}

func newFetcher(config *tiler.Config, flags *tools.FlagsForCommand) (tileset.Fetcher, error) {
	timeout, err := config.ServiceTimeout()
	if err != nil {
		return nil, err
	}
	retries := config.Service.Retries
	if *flags.Retries >= 0 {
		retries = *flags.Retries
	}
	return tileset.NewHTTPFetcher(tileset.HTTPFetcherOptions{
		Timeout:   timeout,
		Retries:   retries,
		UserAgent: config.Service.UserAgent,
	}), nil
}

func timeTrack(start time.Time, name string) {
	elapsed := time.Since(start)
	tools.LogOutput(fmt.Sprintf("%s took %s", name, elapsed))
}

func printLogo() {
	fmt.Println(strings.ReplaceAll(logo, "YYYY", strconv.Itoa(time.Now().Year())))
}

func showHelp() {
	printLogo()
	fmt.Println("***")
	fmt.Println("cesium_texture_tiler downloads photorealistic 3D tiles, extracts their textures and turns them into a web map tile pyramid")
	printVersion()
	fmt.Println("***")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  cesium_texture_tiler download <region> [flags]   walks the tileset and extracts the textures, needs " + apiKeyEnv)
	fmt.Println("  cesium_texture_tiler process [region] [flags]    mosaics the downloaded textures and builds the tiles (default region: " + defaultRegion + ")")
	fmt.Println("  cesium_texture_tiler test [flags]                runs the mosaic and tile stages on generated test images")
	fmt.Println("")
	fmt.Println("Global flags: ")
	flag.CommandLine.SetOutput(os.Stdout)
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Println("Command flags: ")
	tools.PrintCommandDefaults()
}

func printVersion() {
	fmt.Println("v." + VERSION)
}
