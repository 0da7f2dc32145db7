package converters_test

import (
	"math"
	"testing"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

func near(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestMercatorConverter(t *testing.T) {
	cc := converters.NewMercatorConverter()
	defer cc.Cleanup()

	cases := []struct {
		Name      string
		Src, Dst  int
		In, Want  geometry.Coordinate
		Tolerance float64
	}{
		{
			Name: "WGS84ToMercator", Src: 4326, Dst: 3857,
			In:   geometry.Coordinate{X: 180, Y: 0},
			Want: geometry.Coordinate{X: 20037508.342789244, Y: 0}, Tolerance: 1e-3,
		},
		{
			Name: "MercatorToWGS84", Src: 3857, Dst: 4326,
			In:   geometry.Coordinate{X: -20037508.342789244 / 2, Y: 0},
			Want: geometry.Coordinate{X: -90, Y: 0}, Tolerance: 1e-9,
		},
		{
			Name: "ECEFEquator", Src: 4978, Dst: 4326,
			In:   geometry.Coordinate{X: 6378137, Y: 0, Z: 0},
			Want: geometry.Coordinate{X: 0, Y: 0, Z: 0}, Tolerance: 1e-6,
		},
		{
			Name: "ECEFPrimeVertical", Src: 4978, Dst: 4326,
			In:   geometry.Coordinate{X: 0, Y: 6378137 + 100, Z: 0},
			Want: geometry.Coordinate{X: 90, Y: 0, Z: 100}, Tolerance: 1e-6,
		},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			got, err := cc.ConvertCoordinateSrid(c.Src, c.Dst, c.In)
			if err != nil {
				t.Fatalf("ConvertCoordinateSrid failed: %v", err)
			}
			if !near(got.X, c.Want.X, c.Tolerance) || !near(got.Y, c.Want.Y, c.Tolerance) || !near(got.Z, c.Want.Z, c.Tolerance) {
				t.Errorf("got %+v, want %+v", got, c.Want)
			}
		})
	}

	if _, err := cc.ConvertCoordinateSrid(4326, 27700, geometry.Coordinate{}); err == nil {
		t.Errorf("conversion to EPSG:27700 succeeded, want error")
	}
}

func TestConvertBoundingBox(t *testing.T) {
	cc := converters.NewMercatorConverter()
	got, err := converters.ConvertBoundingBox(cc, 4326, 3857, geometry.BoundingBox{Xmin: -180, Xmax: 180, Ymin: 0, Ymax: 0.001}, 5)
	if err != nil {
		t.Fatalf("ConvertBoundingBox failed: %v", err)
	}
	if !near(got.Xmin, -20037508.342789244, 1e-3) || !near(got.Xmax, 20037508.342789244, 1e-3) {
		t.Errorf("got x range [%f, %f], want the full mercator width", got.Xmin, got.Xmax)
	}
	if got.Ymin != 0 || got.Ymax <= 0 {
		t.Errorf("got y range [%f, %f]", got.Ymin, got.Ymax)
	}

	region, err := cc.Convert2DBoundingboxToWGS84Region(&got, 3857)
	if err != nil {
		t.Fatalf("Convert2DBoundingboxToWGS84Region failed: %v", err)
	}
	if !near(region.Xmin, -180, 1e-9) || !near(region.Ymax, 0.001, 1e-9) {
		t.Errorf("got region %+v, want the original box back", region)
	}
}

func TestDefinitions(t *testing.T) {
	defs := converters.NewDefinitions(map[int]string{2056: "+proj=somerc +lat_0=46.9524055555556 +lon_0=7.43958333333333 +k_0=1 +x_0=2600000 +y_0=1200000 +ellps=bessel +units=m +no_defs"})

	for _, srid := range []int{4326, 3857, 4978, 2056, 32632, 32733} {
		if _, err := defs.Lookup(srid); err != nil {
			t.Errorf("Lookup(%d) failed: %v", srid, err)
		}
	}
	if _, err := defs.Lookup(99999); err == nil {
		t.Errorf("Lookup(99999) succeeded, want error")
	}

	wgs84, _ := defs.Lookup(4326)
	mercator, _ := defs.Lookup(3857)
	if !converters.IsGeographic(wgs84) {
		t.Errorf("IsGeographic(%q) = false, want true", wgs84)
	}
	if converters.IsGeographic(mercator) {
		t.Errorf("IsGeographic(%q) = true, want false", mercator)
	}
}
