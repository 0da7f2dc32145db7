package tools

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
)

const (
	CommandDownload = "download"
	CommandProcess  = "process"
	CommandTest     = "test"
)

type FlagsGlobal struct {
	Help    *bool `json:"help"`
	Version *bool `json:"version"`
}

type PipelineFlags struct {
	Config         *string `json:"config"`
	WorkDir        *string `json:"work_dir"`
	Zoom           *string `json:"zoom"`
	Engine         *string `json:"engine"`
	Gdal2TilesPath *string `json:"gdal2tiles"`
	TargetSrid     *int    `json:"target_srid"`
	DefaultSrid    *int    `json:"default_srid"`
	Workers        *int    `json:"workers"`
	Recursive      *bool   `json:"recursive"`
}

type DownloadFlags struct {
	EntryURL      *string `json:"entry_url"`
	MaxDepth      *int    `json:"max_depth"`
	BBox          *string `json:"bbox"`
	FetchExternal *bool   `json:"fetch_external"`
	Retries       *int    `json:"retries"`
}

type FlagsForCommand struct {
	PipelineFlags
	DownloadFlags
	Region       string `json:"region"`
	Silent       *bool  `json:"silent"`
	LogTimestamp *bool  `json:"timestamp"`
	Help         *bool  `json:"help"`
}

func ParseFlagsGlobal() FlagsGlobal {
	help := defineBoolFlag("help", "h", false, "Displays this help.")
	version := defineBoolFlag("version", "", false, "Displays the version of cesium_texture_tiler.")

	flag.Parse()

	return FlagsGlobal{
		Help:    help,
		Version: version,
	}
}

// ParseFlagsForCommand parses the flags of a subcommand. The region label may be given before or after the flags.
func ParseFlagsForCommand(command string, args []string) FlagsForCommand {
	glog.V(1).Infoln(FmtJSONString(args))

	var region string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		region, args = args[0], args[1:]
	}

	flagCommand := flag.NewFlagSet("command-"+command, flag.ExitOnError)
	flags := defineCommandFlags(flagCommand)
	flagCommand.Parse(args)

	if region == "" && flagCommand.NArg() > 0 {
		region = flagCommand.Arg(0)
	}
	flags.Region = region

	return flags
}

// PrintCommandDefaults prints the flags shared by the subcommands.
func PrintCommandDefaults() {
	flagCommand := flag.NewFlagSet("command", flag.ContinueOnError)
	defineCommandFlags(flagCommand)
	flagCommand.SetOutput(os.Stdout)
	flagCommand.PrintDefaults()
}

func defineCommandFlags(flagCommand *flag.FlagSet) FlagsForCommand {
	config := defineStringFlagCommand(flagCommand, "config", "c", "", "YAML configuration file. Flags override its values.")
	workDir := defineStringFlagCommand(flagCommand, "workdir", "w", "", "Folder holding downloaded_tiles/ and tiles/. Defaults to $"+WorkDirEnv+" or the current folder.")
	zoom := defineStringFlagCommand(flagCommand, "zoom", "z", "", "Zoom range of the tile pyramid, as min-max. Default is 6-18.")
	engine := defineStringFlagCommand(flagCommand, "engine", "e", "", "Tiling engine, can be 'gdal2tiles', 'native' or 'auto'. 'auto' uses gdal2tiles when found on the PATH.")
	gdal2tiles := defineStringFlagCommand(flagCommand, "gdal2tiles", "", "", "Path of the gdal2tiles executable.")
	targetSrid := defineIntFlagCommand(flagCommand, "srid", "", 0, "EPSG srid code of the mosaic. Default is 3857.")
	defaultSrid := defineIntFlagCommand(flagCommand, "default-srid", "", 0, "EPSG srid code assigned to images without reference system. Default is 4326.")
	workers := defineIntFlagCommand(flagCommand, "workers", "j", 0, "Number of parallel reprojections. Default is one per CPU.")
	recursive := defineBoolFlagCommand(flagCommand, "recursive", "r", false, "Looks for images in the subfolders of the download folder too.")

	entryURL := defineStringFlagCommand(flagCommand, "url", "u", "", "Root tileset URL, without credentials.")
	maxDepth := defineIntFlagCommand(flagCommand, "max-depth", "d", -1, "Maximum depth of the tileset walk, 0 for unlimited.")
	bbox := defineStringFlagCommand(flagCommand, "bbox", "b", "", "Only walks tiles intersecting west,south,east,north (degrees). Overrides the region bounds of the config file.")
	fetchExternal := defineBoolFlagCommand(flagCommand, "fetch-external", "x", false, "Downloads images referenced by URI from glTF documents.")
	retries := defineIntFlagCommand(flagCommand, "retries", "", -1, "Retries on 429 and 5xx responses.")

	silent := defineBoolFlagCommand(flagCommand, "silent", "s", false, "Use to suppress all the non-error messages.")
	logTimestamp := defineBoolFlagCommand(flagCommand, "timestamp", "t", false, "Adds timestamp to log messages.")
	help := defineBoolFlagCommand(flagCommand, "help", "h", false, "Displays this help.")

	return FlagsForCommand{
		PipelineFlags: PipelineFlags{
			Config:         config,
			WorkDir:        workDir,
			Zoom:           zoom,
			Engine:         engine,
			Gdal2TilesPath: gdal2tiles,
			TargetSrid:     targetSrid,
			DefaultSrid:    defaultSrid,
			Workers:        workers,
			Recursive:      recursive,
		},
		DownloadFlags: DownloadFlags{
			EntryURL:      entryURL,
			MaxDepth:      maxDepth,
			BBox:          bbox,
			FetchExternal: fetchExternal,
			Retries:       retries,
		},
		Silent:       silent,
		LogTimestamp: logTimestamp,
		Help:         help,
	}
}

// ParseZoomRange parses "min-max" or a single zoom level.
func ParseZoomRange(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), "-", 2)
	minZoom, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid zoom range %q", value)
	}
	maxZoom := minZoom
	if len(parts) == 2 {
		if maxZoom, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, fmt.Errorf("invalid zoom range %q", value)
		}
	}
	if minZoom < 0 || maxZoom > 24 || minZoom > maxZoom {
		return 0, 0, fmt.Errorf("invalid zoom range %q", value)
	}
	return minZoom, maxZoom, nil
}

// ParseBBox parses "west,south,east,north".
func ParseBBox(value string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("bbox must be west,south,east,north, got %q", value)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("bbox must be west,south,east,north, got %q", value)
		}
		out[i] = v
	}
	if out[0] >= out[2] || out[1] >= out[3] {
		return out, fmt.Errorf("bbox %q is empty", value)
	}
	return out, nil
}

func defineBoolFlag(name string, shortHand string, defaultValue bool, usage string) *bool {
	var output bool
	flag.BoolVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flag.BoolVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}
	return &output
}

func defineStringFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue string, usage string) *string {
	var output string
	flagCommand.StringVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.StringVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}

	return &output
}

func defineIntFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue int, usage string) *int {
	var output int
	flagCommand.IntVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.IntVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}

	return &output
}

func defineBoolFlagCommand(flagCommand *flag.FlagSet, name string, shortHand string, defaultValue bool, usage string) *bool {
	var output bool
	flagCommand.BoolVar(&output, name, defaultValue, usage)
	if shortHand != name && shortHand != "" {
		flagCommand.BoolVar(&output, shortHand, defaultValue, usage+" (shorthand for "+name+")")
	}
	return &output
}
