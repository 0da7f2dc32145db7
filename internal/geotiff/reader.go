package geotiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
)

var ErrNotTIFF = errors.New("geotiff: not a TIFF file")

type entry struct {
	typ   uint16
	count uint32
	raw   []byte
}

type ifdReader struct {
	data  []byte
	order binary.ByteOrder
}

// ReadGeoInfo extracts the georeferencing of the first image of a classic
// TIFF file. A TIFF without geo tags yields an empty GeoInfo and no error.
func ReadGeoInfo(data []byte) (GeoInfo, error) {
	r, ifdOffset, err := newIFDReader(data)
	if err != nil {
		return GeoInfo{}, err
	}
	entries, err := r.readIFD(ifdOffset)
	if err != nil {
		return GeoInfo{}, err
	}

	var info GeoInfo
	rasterType := rasterPixelIsArea
	if e, ok := entries[TagGeoKeyDirectory]; ok {
		keys := r.shorts(e)
		info.EPSG, info.Geographic, rasterType = parseGeoKeys(keys)
	}

	if e, ok := entries[TagModelTransformation]; ok {
		m := r.doubles(e)
		if len(m) >= 8 {
			info.Transform = geometry.GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
			info.HasTransform = true
		}
	} else {
		scale, hasScale := entries[TagModelPixelScale]
		tie, hasTie := entries[TagModelTiepoint]
		if hasScale && hasTie {
			s := r.doubles(scale)
			tp := r.doubles(tie)
			if len(s) >= 2 && len(tp) >= 6 && s[0] != 0 && s[1] != 0 {
				info.Transform = geometry.GeoTransform{
					tp[3] - tp[0]*s[0], s[0], 0,
					tp[4] + tp[1]*s[1], 0, -s[1],
				}
				info.HasTransform = true
			}
		}
	}

	// PixelIsPoint anchors the tiepoint on the pixel centre
	if info.HasTransform && rasterType == rasterPixelIsPoint {
		info.Transform[0] -= info.Transform[1] / 2
		info.Transform[3] -= info.Transform[5] / 2
	}
	return info, nil
}

func parseGeoKeys(keys []uint16) (epsg int, geographic bool, rasterType int) {
	rasterType = rasterPixelIsArea
	if len(keys) < 4 {
		return 0, false, rasterType
	}

	values := make(map[uint16]uint16)
	n := int(keys[3])
	for i := 0; i < n && 4+4*i+3 < len(keys); i++ {
		k := keys[4+4*i : 8+4*i]
		// only keys stored inline in the directory are of interest
		if k[1] == 0 {
			values[k[0]] = k[3]
		}
	}

	if v, ok := values[KeyRasterType]; ok {
		rasterType = int(v)
	}
	model := values[KeyModelType]
	projected, hasProjected := values[KeyProjectedCSType]
	geographicCode, hasGeographic := values[KeyGeographicType]

	switch {
	case model != modelTypeGeographic && hasProjected && projected != userDefined:
		return int(projected), false, rasterType
	case hasGeographic && geographicCode != userDefined:
		return int(geographicCode), true, rasterType
	}
	return 0, model == modelTypeGeographic, rasterType
}

func newIFDReader(data []byte) (*ifdReader, uint32, error) {
	if len(data) < 8 {
		return nil, 0, ErrNotTIFF
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, ErrNotTIFF
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrNotTIFF, order.Uint16(data[2:4]))
	}
	return &ifdReader{data: data, order: order}, order.Uint32(data[4:8]), nil
}

func (r *ifdReader) readIFD(offset uint32) (map[uint16]entry, error) {
	if uint64(offset)+2 > uint64(len(r.data)) {
		return nil, fmt.Errorf("geotiff: IFD offset %d out of range", offset)
	}
	n := int(r.order.Uint16(r.data[offset:]))
	start := int(offset) + 2
	if start+12*n > len(r.data) {
		return nil, fmt.Errorf("geotiff: truncated IFD")
	}

	entries := make(map[uint16]entry, n)
	for i := 0; i < n; i++ {
		p := r.data[start+12*i : start+12*i+12]
		tag := r.order.Uint16(p[0:2])
		typ := r.order.Uint16(p[2:4])
		count := r.order.Uint32(p[4:8])

		size := uint64(typeSize(typ)) * uint64(count)
		if size == 0 {
			continue
		}
		raw := p[8:12]
		if size > 4 {
			valueOffset := uint64(r.order.Uint32(p[8:12]))
			if valueOffset+size > uint64(len(r.data)) {
				return nil, fmt.Errorf("geotiff: tag %d overruns the file", tag)
			}
			raw = r.data[valueOffset : valueOffset+size]
		}
		entries[tag] = entry{typ: typ, count: count, raw: raw[:size]}
	}
	return entries, nil
}

func (r *ifdReader) shorts(e entry) []uint16 {
	if e.typ != dtShort {
		return nil
	}
	out := make([]uint16, e.count)
	for i := range out {
		out[i] = r.order.Uint16(e.raw[2*i:])
	}
	return out
}

func (r *ifdReader) doubles(e entry) []float64 {
	if e.typ != dtDouble {
		return nil
	}
	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(r.order.Uint64(e.raw[8*i:]))
	}
	return out
}

func typeSize(typ uint16) int {
	switch typ {
	case dtByte, dtASCII, 6, 7:
		return 1
	case dtShort, 8:
		return 2
	case dtLong, 9, 11:
		return 4
	case 5, 10, dtDouble:
		return 8
	}
	return 0
}
