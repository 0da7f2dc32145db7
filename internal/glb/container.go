// Package glb reads the binary containers delivered as 3D Tiles leaf payloads:
// an optional legacy b3dm wrapper around a glTF document, either binary (GLB)
// or plain JSON.
package glb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	LegacyMagic        = "b3dm"
	LegacyHeaderLength = 28

	// Documents shorter than this cannot carry a usable glTF payload.
	MinDocumentSize = 100
)

var (
	ErrMalformedContainer = errors.New("glb: malformed container")
	ErrCorruptDocument    = errors.New("glb: corrupt document")
)

// LegacyHeader is the fixed b3dm header preceding the glTF payload.
type LegacyHeader struct {
	Magic                        [4]byte
	Version                      uint32
	ByteLength                   uint32
	FeatureTableJSONByteLength   uint32
	FeatureTableBinaryByteLength uint32
	BatchTableJSONByteLength     uint32
	BatchTableBinaryByteLength   uint32
}

func (h LegacyHeader) tablesLength() uint64 {
	return uint64(h.FeatureTableJSONByteLength) + uint64(h.FeatureTableBinaryByteLength) +
		uint64(h.BatchTableJSONByteLength) + uint64(h.BatchTableBinaryByteLength)
}

// IsLegacy reports whether data starts with the b3dm magic.
func IsLegacy(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == LegacyMagic
}

// StripLegacyHeader returns the structured document carried by data. When the
// b3dm magic is present the 28-byte header is dropped, together with any
// feature and batch tables it declares if the remainder does not already
// start with the glTF magic. The returned slice aliases data.
func StripLegacyHeader(data []byte) ([]byte, error) {
	doc := data
	if IsLegacy(data) {
		if len(data) < LegacyHeaderLength {
			return nil, fmt.Errorf("%w: %d bytes is shorter than the legacy header", ErrMalformedContainer, len(data))
		}
		var header LegacyHeader
		if err := binary.Read(bytes.NewReader(data[:LegacyHeaderLength]), binary.LittleEndian, &header); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
		}
		doc = data[LegacyHeaderLength:]
		if !isBinaryGltf(doc) {
			if tables := header.tablesLength(); tables > 0 && tables <= uint64(len(doc)) && isBinaryGltf(doc[tables:]) {
				doc = doc[tables:]
			}
		}
	}

	if len(doc) < MinDocumentSize {
		return nil, fmt.Errorf("%w: document is %d bytes, need at least %d", ErrMalformedContainer, len(doc), MinDocumentSize)
	}
	return doc, nil
}

// Read strips an optional legacy header and parses the structured document.
func Read(data []byte) (*Document, error) {
	doc, err := StripLegacyHeader(data)
	if err != nil {
		return nil, err
	}
	return Parse(doc)
}
