package tiler_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiler.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := tiler.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(tiler.DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
service:
  timeout: 5s
  retries: 4
  max_depth: 7
pyramid:
  min_zoom: 10
  max_zoom: 14
  engine: native
crs_definitions:
  2056: "+proj=somerc +lat_0=46.9524055555556 +lon_0=7.43958333333333 +k_0=1 +x_0=2600000 +y_0=1200000 +ellps=bessel +units=m +no_defs"
regions:
  Greater London:
    west: -0.51
    south: 51.28
    east: 0.33
    north: 51.69
`)

	cfg, err := tiler.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	timeout, err := cfg.ServiceTimeout()
	if err != nil || timeout != 5*time.Second {
		t.Errorf("got timeout %v (%v), want 5s", timeout, err)
	}
	if cfg.Service.EntryURL != tiler.DefaultEntryURL {
		t.Errorf("entry URL not defaulted, got %q", cfg.Service.EntryURL)
	}
	if cfg.Service.Retries != 4 || cfg.Service.MaxDepth != 7 {
		t.Errorf("got retries=%d max_depth=%d, want 4 and 7", cfg.Service.Retries, cfg.Service.MaxDepth)
	}
	if tiler.ParseTileEngine(cfg.Pyramid.Engine) != tiler.Native || cfg.Pyramid.MinZoom != 10 || cfg.Pyramid.MaxZoom != 14 {
		t.Errorf("pyramid section not applied: %+v", cfg.Pyramid)
	}
	if _, ok := cfg.CrsDefinitions[2056]; !ok {
		t.Errorf("missing crs definition for EPSG:2056")
	}

	bounds, ok := cfg.RegionBounds("greater_london")
	if !ok {
		t.Fatalf("region lookup failed")
	}
	want := geometry.BoundingBox{Xmin: -0.51, Xmax: 0.33, Ymin: 51.28, Ymax: 51.69}
	if diff := cmp.Diff(&want, bounds); diff != "" {
		t.Errorf("region bounds mismatch (-want +got):\n%s", diff)
	}
	if _, ok := cfg.RegionBounds("paris"); ok {
		t.Errorf("unknown region resolved")
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"UnknownField": "service:\n  entry: x\n",
		"BadTimeout":   "service:\n  timeout: soon\n",
		"ZoomRange":    "pyramid:\n  min_zoom: 12\n  max_zoom: 3\n",
		"Engine":       "pyramid:\n  engine: mapnik\n",
		"EmptyRegion":  "regions:\n  nowhere:\n    west: 1\n    east: 1\n    south: 0\n    north: 1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := tiler.LoadConfig(writeConfig(t, content)); err == nil {
				t.Errorf("LoadConfig accepted %q", content)
			}
		})
	}

	if _, err := tiler.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("LoadConfig accepted a missing file")
	}
}

func TestParseTileEngine(t *testing.T) {
	for value, want := range map[string]tiler.TileEngine{
		"gdal2tiles": tiler.Gdal2Tiles,
		" Native ":   tiler.Native,
		"AUTO":       tiler.Auto,
		"mapnik":     "",
	} {
		if got := tiler.ParseTileEngine(value); got != want {
			t.Errorf("ParseTileEngine(%q) = %q, want %q", value, got, want)
		}
	}
}

func TestTilerOptions_Copy(t *testing.T) {
	bounds := geometry.BoundingBox{Xmin: -1, Xmax: 1, Ymin: 50, Ymax: 52}
	opts := &tiler.TilerOptions{
		Command:         tiler.CommandDownload,
		Region:          "london",
		CrsDefinitions:  map[int]string{2056: "+proj=somerc"},
		DownloadOptions: &tiler.DownloadOptions{Bounds: &bounds, MaxDepth: 3},
		PyramidOptions:  &tiler.PyramidOptions{MinZoom: 6, MaxZoom: 18},
	}

	copied := opts.Copy()
	if diff := cmp.Diff(opts, copied); diff != "" {
		t.Errorf("copy mismatch (-want +got):\n%s", diff)
	}

	copied.DownloadOptions.Bounds.Xmin = -10
	copied.CrsDefinitions[3035] = "+proj=laea"
	copied.PyramidOptions.MaxZoom = 20
	if opts.DownloadOptions.Bounds.Xmin != -1 || len(opts.CrsDefinitions) != 1 || opts.PyramidOptions.MaxZoom != 18 {
		t.Errorf("modifying the copy changed the original")
	}
}
