// Package testutil builds binary container fixtures for tests.
package testutil

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
)

const minJSONChunk = 128

// BuildGLB encodes gltf as the JSON chunk of a GLB v2 container followed by
// an optional BIN chunk. The JSON chunk is space padded so every fixture
// clears the minimum document size.
func BuildGLB(gltf interface{}, bin []byte) []byte {
	jsonBytes, err := json.Marshal(gltf)
	if err != nil {
		panic(err)
	}
	for len(jsonBytes) < minJSONChunk || len(jsonBytes)%4 != 0 {
		jsonBytes = append(jsonBytes, ' ')
	}
	binPadded := append([]byte(nil), bin...)
	for len(binPadded)%4 != 0 {
		binPadded = append(binPadded, 0)
	}

	total := 12 + 8 + len(jsonBytes)
	if len(bin) > 0 {
		total += 8 + len(binPadded)
	}

	var buf bytes.Buffer
	buf.WriteString("glTF")
	writeUint32(&buf, 2)
	writeUint32(&buf, uint32(total))
	writeUint32(&buf, uint32(len(jsonBytes)))
	writeUint32(&buf, 0x4E4F534A)
	buf.Write(jsonBytes)
	if len(bin) > 0 {
		writeUint32(&buf, uint32(len(binPadded)))
		writeUint32(&buf, 0x004E4942)
		buf.Write(binPadded)
	}
	return buf.Bytes()
}

// WrapLegacy prefixes doc with a b3dm header declaring featureTable as the
// feature table JSON.
func WrapLegacy(doc []byte, featureTable []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("b3dm")
	writeUint32(&buf, 1)
	writeUint32(&buf, uint32(28+len(featureTable)+len(doc)))
	writeUint32(&buf, uint32(len(featureTable)))
	writeUint32(&buf, 0)
	writeUint32(&buf, 0)
	writeUint32(&buf, 0)
	buf.Write(featureTable)
	buf.Write(doc)
	return buf.Bytes()
}

// ImageSpec describes one buffer-backed image of a fixture document.
type ImageSpec struct {
	Data     []byte
	MimeType string

	// ByteLength overrides the declared length when non-zero, which allows
	// building views that overrun the buffer.
	ByteLength int
}

// BuildTexturedGLB lays the images out back to back in a single BIN buffer
// with one buffer view per image.
func BuildTexturedGLB(images []ImageSpec) []byte {
	var bin []byte
	var views, imgs []map[string]interface{}
	for i, img := range images {
		length := len(img.Data)
		if img.ByteLength != 0 {
			length = img.ByteLength
		}
		views = append(views, map[string]interface{}{
			"buffer":     0,
			"byteOffset": len(bin),
			"byteLength": length,
		})
		imgs = append(imgs, map[string]interface{}{
			"bufferView": i,
			"mimeType":   img.MimeType,
		})
		bin = append(bin, img.Data...)
	}

	gltf := map[string]interface{}{
		"asset":       map[string]interface{}{"version": "2.0"},
		"buffers":     []map[string]interface{}{{"byteLength": len(bin)}},
		"bufferViews": views,
		"images":      imgs,
	}
	return BuildGLB(gltf, bin)
}

// FakeImage returns n deterministic bytes tagged with seed.
func FakeImage(seed byte, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = seed ^ byte(i)
	}
	return data
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
