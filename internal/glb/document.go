package glb

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	binaryMagic      = "glTF"
	binaryHeaderSize = 12
	chunkHeaderSize  = 8

	ChunkJSON uint32 = 0x4E4F534A
	ChunkBIN  uint32 = 0x004E4942
)

var ErrExternalBuffer = errors.New("glb: buffer refers to an external resource")

type Asset struct {
	Version   string `json:"version"`
	Generator string `json:"generator,omitempty"`
}

type Buffer struct {
	ByteLength int    `json:"byteLength"`
	URI        string `json:"uri,omitempty"`
}

type BufferView struct {
	Buffer     int `json:"buffer"`
	ByteOffset int `json:"byteOffset,omitempty"`
	ByteLength int `json:"byteLength"`
	ByteStride int `json:"byteStride,omitempty"`
}

// Image is one entry of the image table. Exactly one of BufferView and URI is
// expected to be set.
type Image struct {
	Name       string `json:"name,omitempty"`
	URI        string `json:"uri,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	BufferView *int   `json:"bufferView,omitempty"`
}

// Gltf is the subset of the glTF 2.0 JSON needed to locate images.
type Gltf struct {
	Asset       Asset             `json:"asset"`
	Buffers     []Buffer          `json:"buffers,omitempty"`
	BufferViews []BufferView      `json:"bufferViews,omitempty"`
	Images      []Image           `json:"images,omitempty"`
	Textures    []json.RawMessage `json:"textures,omitempty"`
	Materials   []json.RawMessage `json:"materials,omitempty"`
	Meshes      []json.RawMessage `json:"meshes,omitempty"`
}

// Document is a parsed glTF document together with its binary chunk.
type Document struct {
	Gltf     Gltf
	BinChunk []byte
	Binary   bool

	decoded map[int][]byte
}

func isBinaryGltf(data []byte) bool {
	return len(data) >= 4 && string(data[:4]) == binaryMagic
}

// Parse decodes a GLB container or, when data starts with '{', a plain JSON
// glTF document.
func Parse(data []byte) (*Document, error) {
	if isBinaryGltf(data) {
		return parseBinary(data)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		doc := &Document{}
		if err := json.Unmarshal(trimmed, &doc.Gltf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
		}
		return doc, nil
	}

	n := 4
	if len(data) < n {
		n = len(data)
	}
	return nil, fmt.Errorf("%w: unknown magic %q", ErrCorruptDocument, data[:n])
}

func parseBinary(data []byte) (*Document, error) {
	if len(data) < binaryHeaderSize+chunkHeaderSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptDocument)
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	if version != 2 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptDocument, version)
	}

	// the declared length may be shorter than the payload (padding) but never longer
	total := int(binary.LittleEndian.Uint32(data[8:12]))
	if total > len(data) || total < binaryHeaderSize {
		return nil, fmt.Errorf("%w: declared length %d, have %d bytes", ErrCorruptDocument, total, len(data))
	}

	doc := &Document{Binary: true}
	offset := binaryHeaderSize
	jsonSeen := false
	for offset+chunkHeaderSize <= total {
		chunkLength := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		chunkType := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		start := offset + chunkHeaderSize
		end := start + chunkLength
		if chunkLength < 0 || end > total {
			return nil, fmt.Errorf("%w: chunk at %d overruns the container", ErrCorruptDocument, offset)
		}

		switch chunkType {
		case ChunkJSON:
			if err := json.Unmarshal(data[start:end], &doc.Gltf); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
			}
			jsonSeen = true
		case ChunkBIN:
			if doc.BinChunk == nil {
				doc.BinChunk = data[start:end]
			}
		}
		offset = end
	}

	if !jsonSeen {
		return nil, fmt.Errorf("%w: missing JSON chunk", ErrCorruptDocument)
	}
	return doc, nil
}

// BufferData returns the bytes of buffer i. A buffer without URI is the GLB
// binary chunk; a data URI is decoded once and cached.
func (d *Document) BufferData(i int) ([]byte, error) {
	if i < 0 || i >= len(d.Gltf.Buffers) {
		return nil, fmt.Errorf("buffer index %d out of range [0,%d)", i, len(d.Gltf.Buffers))
	}

	buffer := d.Gltf.Buffers[i]
	if buffer.URI == "" {
		if d.BinChunk == nil {
			return nil, fmt.Errorf("buffer %d has no uri and the document has no binary chunk", i)
		}
		return d.BinChunk, nil
	}

	if cached, ok := d.decoded[i]; ok {
		return cached, nil
	}
	if !IsDataURI(buffer.URI) {
		return nil, fmt.Errorf("%w: %s", ErrExternalBuffer, buffer.URI)
	}

	_, payload, err := DecodeDataURI(buffer.URI)
	if err != nil {
		return nil, fmt.Errorf("buffer %d: %w", i, err)
	}
	if d.decoded == nil {
		d.decoded = make(map[int][]byte)
	}
	d.decoded[i] = payload
	return payload, nil
}

func IsDataURI(uri string) bool {
	return strings.HasPrefix(uri, "data:")
}

// DecodeDataURI splits a data URI at its first comma and decodes the payload,
// returning the media type found in the header.
func DecodeDataURI(uri string) (string, []byte, error) {
	if !IsDataURI(uri) {
		return "", nil, fmt.Errorf("not a data uri")
	}

	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return "", nil, fmt.Errorf("data uri has no payload separator")
	}
	header, payload := uri[len("data:"):comma], uri[comma+1:]

	params := strings.Split(header, ";")
	mediaType := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return mediaType, nil, fmt.Errorf("data uri: %w", err)
		}
		return mediaType, []byte(decoded), nil
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some encoders drop the padding
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
			return mediaType, raw, nil
		}
		return mediaType, nil, fmt.Errorf("data uri: %w", err)
	}
	return mediaType, decoded, nil
}
