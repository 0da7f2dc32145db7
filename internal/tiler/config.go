package tiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"gopkg.in/yaml.v3"
)

const DefaultEntryURL = "https://tile.googleapis.com/v1/3dtiles/root.json"

// Config is the optional YAML file given with -config. Flags override it.
type Config struct {
	Service ServiceConfig `yaml:"service"`

	Mosaic MosaicConfig `yaml:"mosaic"`

	Pyramid PyramidConfig `yaml:"pyramid"`

	// EPSG code -> proj4 definition, added to the built-in table.
	CrsDefinitions map[int]string `yaml:"crs_definitions"`

	// Region label -> WGS84 bounds used to prune the tileset walk. Labels
	// without an entry walk the whole tree.
	Regions map[string]RegionConfig `yaml:"regions"`
}

type ServiceConfig struct {
	EntryURL string `yaml:"entry_url"`

	// Go duration string, e.g. "60s".
	Timeout string `yaml:"timeout"`

	Retries int `yaml:"retries"`

	UserAgent string `yaml:"user_agent"`

	MaxDepth int `yaml:"max_depth"`

	FetchExternalImages bool `yaml:"fetch_external_images"`
}

type MosaicConfig struct {
	TargetEPSG int `yaml:"target_epsg"`

	DefaultEPSG int `yaml:"default_epsg"`

	// west, south, east, north
	DefaultBounds [4]float64 `yaml:"default_bounds"`

	Workers int `yaml:"workers"`
}

type PyramidConfig struct {
	MinZoom int `yaml:"min_zoom"`

	MaxZoom int `yaml:"max_zoom"`

	Engine string `yaml:"engine"`

	Gdal2TilesPath string `yaml:"gdal2tiles_path"`
}

type RegionConfig struct {
	West  float64 `yaml:"west"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	North float64 `yaml:"north"`
}

func (r RegionConfig) BoundingBox() geometry.BoundingBox {
	return geometry.BoundingBox{Xmin: r.West, Xmax: r.East, Ymin: r.South, Ymax: r.North}
}

func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			EntryURL:  DefaultEntryURL,
			Timeout:   "60s",
			Retries:   2,
			UserAgent: "cesium_texture_tiler",
		},
		Mosaic: MosaicConfig{
			TargetEPSG:    3857,
			DefaultEPSG:   4326,
			DefaultBounds: [4]float64{0, 0, 1, 1},
		},
		Pyramid: PyramidConfig{
			MinZoom: 6,
			MaxZoom: 18,
			Engine:  string(Gdal2Tiles),
		},
	}
}

// LoadConfig reads filePath over the defaults. An empty path returns the
// defaults unchanged.
func LoadConfig(filePath string) (*Config, error) {
	cfg := DefaultConfig()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", filePath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filePath, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.ServiceTimeout(); err != nil {
		return err
	}
	if c.Service.Retries < 0 {
		return fmt.Errorf("service.retries must not be negative")
	}
	if c.Pyramid.MinZoom < 0 || c.Pyramid.MaxZoom > 24 || c.Pyramid.MinZoom > c.Pyramid.MaxZoom {
		return fmt.Errorf("invalid zoom range %d-%d", c.Pyramid.MinZoom, c.Pyramid.MaxZoom)
	}
	if ParseTileEngine(c.Pyramid.Engine) == "" {
		return fmt.Errorf("pyramid.engine should be one of gdal2tiles, native or auto, got %q", c.Pyramid.Engine)
	}
	b := c.Mosaic.DefaultBounds
	if b[0] >= b[2] || b[1] >= b[3] {
		return fmt.Errorf("mosaic.default_bounds must be west, south, east, north")
	}
	for label, r := range c.Regions {
		if r.West >= r.East || r.South >= r.North {
			return fmt.Errorf("region %q has empty bounds", label)
		}
	}
	return nil
}

func (c *Config) ServiceTimeout() (time.Duration, error) {
	if c.Service.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Service.Timeout)
	if err != nil {
		return 0, fmt.Errorf("service.timeout: %w", err)
	}
	return d, nil
}

// RegionBounds looks up a region label, ignoring case and treating spaces and
// underscores alike.
func (c *Config) RegionBounds(label string) (*geometry.BoundingBox, bool) {
	key := normalizeRegion(label)
	for name, r := range c.Regions {
		if normalizeRegion(name) == key {
			bounds := r.BoundingBox()
			return &bounds, true
		}
	}
	return nil, false
}

func normalizeRegion(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_")
}
