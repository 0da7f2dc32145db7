package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"sort"

	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/klauspost/compress/zlib"
)

const compressionDeflate = 8

type outEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode writes img as a single-strip, Deflate compressed, 8-bit RGBA
// GeoTIFF. Only north-up transforms can be expressed.
func Encode(w io.Writer, img *image.NRGBA, info GeoInfo) error {
	if info.HasTransform && (info.Transform[2] != 0 || info.Transform[4] != 0) {
		return fmt.Errorf("geotiff: rotated transforms are not supported")
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("geotiff: empty image")
	}

	var strip bytes.Buffer
	zw, err := zlib.NewWriterLevel(&strip, zlib.DefaultCompression)
	if err != nil {
		return err
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		start := img.PixOffset(bounds.Min.X, y)
		if _, err := zw.Write(img.Pix[start : start+4*width]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}

	entries := []outEntry{
		longEntry(tagImageWidth, uint32(width)),
		longEntry(tagImageLength, uint32(height)),
		shortEntry(tagBitsPerSample, 8, 8, 8, 8),
		shortEntry(tagCompression, compressionDeflate),
		shortEntry(tagPhotometricInterpretation, 2),
		longEntry(tagStripOffsets, 0),
		shortEntry(tagSamplesPerPixel, 4),
		longEntry(tagRowsPerStrip, uint32(height)),
		longEntry(tagStripByteCounts, uint32(strip.Len())),
		shortEntry(tagPlanarConfiguration, 1),
		shortEntry(tagExtraSamples, 2),
	}
	if info.HasTransform {
		t := info.Transform
		entries = append(entries,
			doubleEntry(TagModelPixelScale, t[1], math.Abs(t[5]), 0),
			doubleEntry(TagModelTiepoint, 0, 0, 0, t[0], t[3], 0),
		)
	}
	if info.EPSG != 0 {
		entries = append(entries, shortEntry(TagGeoKeyDirectory, geoKeys(info)...))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdSize := 2 + 12*len(entries) + 4
	extraOffset := 8 + ifdSize
	var extra bytes.Buffer
	offsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			offsets[i] = uint32(extraOffset + extra.Len())
			extra.Write(e.data)
			if extra.Len()%2 == 1 {
				extra.WriteByte(0)
			}
		}
	}
	stripOffset := uint32(extraOffset + extra.Len())
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			binary.LittleEndian.PutUint32(entries[i].data, stripOffset)
		}
	}

	var out bytes.Buffer
	out.WriteString("II")
	binary.Write(&out, binary.LittleEndian, uint16(42))
	binary.Write(&out, binary.LittleEndian, uint32(8))
	binary.Write(&out, binary.LittleEndian, uint16(len(entries)))
	for i, e := range entries {
		binary.Write(&out, binary.LittleEndian, e.tag)
		binary.Write(&out, binary.LittleEndian, e.typ)
		binary.Write(&out, binary.LittleEndian, e.count)
		var value [4]byte
		if len(e.data) > 4 {
			binary.LittleEndian.PutUint32(value[:], offsets[i])
		} else {
			copy(value[:], e.data)
		}
		out.Write(value[:])
	}
	binary.Write(&out, binary.LittleEndian, uint32(0))
	out.Write(extra.Bytes())
	out.Write(strip.Bytes())

	_, err = w.Write(out.Bytes())
	return err
}

// WriteFile encodes img and moves it into place at filePath atomically.
func WriteFile(filePath string, img *image.NRGBA, info GeoInfo) error {
	var buf bytes.Buffer
	if err := Encode(&buf, img, info); err != nil {
		return err
	}
	return tools.WriteFileAtomic(filePath, buf.Bytes())
}

func geoKeys(info GeoInfo) []uint16 {
	model, csKey := uint16(modelTypeProjected), uint16(KeyProjectedCSType)
	if info.Geographic {
		model, csKey = modelTypeGeographic, KeyGeographicType
	}
	return []uint16{
		1, 1, 0, 3,
		KeyModelType, 0, 1, model,
		KeyRasterType, 0, 1, rasterPixelIsArea,
		csKey, 0, 1, uint16(info.EPSG),
	}
}

func shortEntry(tag uint16, values ...uint16) outEntry {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], v)
	}
	return outEntry{tag: tag, typ: dtShort, count: uint32(len(values)), data: data}
}

func longEntry(tag uint16, value uint32) outEntry {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, value)
	return outEntry{tag: tag, typ: dtLong, count: 1, data: data}
}

func doubleEntry(tag uint16, values ...float64) outEntry {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return outEntry{tag: tag, typ: dtDouble, count: uint32(len(values)), data: data}
}
