package geotiff_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geotiff"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/image/tiff"
)

func testImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x + y), A: 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{})
	return img
}

func TestEncode_RoundTrip(t *testing.T) {
	cases := []struct {
		Name string
		Info geotiff.GeoInfo
	}{
		{
			Name: "Geographic",
			Info: geotiff.GeoInfo{
				EPSG: 4326, Geographic: true, HasTransform: true,
				Transform: geometry.GeoTransform{-0.15, 0.001, 0, 51.55, 0, -0.001},
			},
		},
		{
			Name: "Projected",
			Info: geotiff.GeoInfo{
				EPSG: 3857, HasTransform: true,
				Transform: geometry.GeoTransform{-16697.72, 4.77, 0, 6711542.47, 0, -4.77},
			},
		},
		{Name: "Plain"},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			img := testImage(23, 17)
			var buf bytes.Buffer
			if err := geotiff.Encode(&buf, img, c.Info); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := geotiff.ReadGeoInfo(buf.Bytes())
			if err != nil {
				t.Fatalf("ReadGeoInfo failed: %v", err)
			}
			if diff := cmp.Diff(c.Info, got); diff != "" {
				t.Errorf("GeoInfo mismatch (-want +got):\n%s", diff)
			}

			decoded, err := tiff.Decode(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatalf("tiff.Decode failed: %v", err)
			}
			if decoded.Bounds() != img.Bounds() {
				t.Fatalf("got bounds %v, want %v", decoded.Bounds(), img.Bounds())
			}
			for _, p := range []image.Point{{0, 0}, {5, 3}, {22, 16}} {
				want := img.NRGBAAt(p.X, p.Y)
				if got := color.NRGBAModel.Convert(decoded.At(p.X, p.Y)).(color.NRGBA); got != want {
					t.Errorf("pixel %v: got %v, want %v", p, got, want)
				}
			}
		})
	}
}

func TestEncode_RejectsRotation(t *testing.T) {
	info := geotiff.GeoInfo{EPSG: 4326, HasTransform: true, Transform: geometry.GeoTransform{0, 1, 0.5, 0, 0.5, -1}}
	if err := geotiff.Encode(&bytes.Buffer{}, testImage(2, 2), info); err == nil {
		t.Errorf("Encode accepted a rotated transform")
	}
}

// bigEndianGeoTIFF builds a minimal MM tiff carrying a model transformation
// and a PixelIsPoint raster type.
func bigEndianGeoTIFF() []byte {
	be := binary.BigEndian
	var buf bytes.Buffer
	buf.WriteString("MM")
	binary.Write(&buf, be, uint16(42))
	binary.Write(&buf, be, uint32(8))

	transform := []float64{2, 0, 0, 100, 0, -2, 0, 200, 0, 0, 0, 0, 0, 0, 0, 1}
	keys := []uint16{1, 1, 0, 3, 1024, 0, 1, 1, 1025, 0, 1, 2, 3072, 0, 1, 32633}
	ifdSize := 2 + 12*2 + 4
	transformOffset := uint32(8 + ifdSize)
	keysOffset := transformOffset + uint32(8*len(transform))

	binary.Write(&buf, be, uint16(2))
	binary.Write(&buf, be, []uint16{34264, 12})
	binary.Write(&buf, be, []uint32{uint32(len(transform)), transformOffset})
	binary.Write(&buf, be, []uint16{34735, 3})
	binary.Write(&buf, be, []uint32{uint32(len(keys)), keysOffset})
	binary.Write(&buf, be, uint32(0))
	for _, v := range transform {
		binary.Write(&buf, be, math.Float64bits(v))
	}
	binary.Write(&buf, be, keys)
	return buf.Bytes()
}

func TestReadGeoInfo_BigEndianTransform(t *testing.T) {
	got, err := geotiff.ReadGeoInfo(bigEndianGeoTIFF())
	if err != nil {
		t.Fatalf("ReadGeoInfo failed: %v", err)
	}
	want := geotiff.GeoInfo{
		EPSG:         32633,
		HasTransform: true,
		Transform:    geometry.GeoTransform{99, 2, 0, 201, 0, -2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("GeoInfo mismatch (-want +got):\n%s", diff)
	}
	if !got.HasCRS() {
		t.Errorf("HasCRS() = false, want true")
	}
}

func TestReadGeoInfo_NotTIFF(t *testing.T) {
	if _, err := geotiff.ReadGeoInfo([]byte("\x89PNG\r\n\x1a\n")); !errors.Is(err, geotiff.ErrNotTIFF) {
		t.Errorf("got %v, want ErrNotTIFF", err)
	}
}
