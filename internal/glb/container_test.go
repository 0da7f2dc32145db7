package glb_test

import (
	"errors"
	"testing"

	"github.com/ecopia-map/cesium_texture_tiler/internal/glb"
	"github.com/ecopia-map/cesium_texture_tiler/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

func TestStripLegacyHeader(t *testing.T) {
	doc := testutil.BuildTexturedGLB([]testutil.ImageSpec{
		{Data: testutil.FakeImage(1, 64), MimeType: "image/png"},
	})

	cases := []struct {
		Name    string
		Payload []byte
	}{
		{Name: "Plain", Payload: doc},
		{Name: "Legacy", Payload: testutil.WrapLegacy(doc, nil)},
		{Name: "LegacyWithFeatureTable", Payload: testutil.WrapLegacy(doc, []byte(`{"BATCH_LENGTH":0}  `))},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			got, err := glb.StripLegacyHeader(c.Payload)
			if err != nil {
				t.Fatalf("StripLegacyHeader failed: %v", err)
			}
			if !cmp.Equal(got, doc) {
				t.Errorf("StripLegacyHeader(%s) differs from the unwrapped document", c.Name)
			}
		})
	}
}

func TestStripLegacyHeader_TooSmall(t *testing.T) {
	for _, payload := range [][]byte{
		[]byte("b3dm"),
		testutil.WrapLegacy(make([]byte, 40), nil),
		make([]byte, glb.MinDocumentSize-1),
	} {
		if _, err := glb.StripLegacyHeader(payload); !errors.Is(err, glb.ErrMalformedContainer) {
			t.Errorf("StripLegacyHeader(%d bytes): got %v, want ErrMalformedContainer", len(payload), err)
		}
	}
}

func TestRead(t *testing.T) {
	first := testutil.FakeImage(1, 40)
	second := testutil.FakeImage(2, 24)
	doc, err := glb.Read(testutil.WrapLegacy(testutil.BuildTexturedGLB([]testutil.ImageSpec{
		{Data: first, MimeType: "image/jpeg"},
		{Data: second, MimeType: "image/png"},
	}), nil))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !doc.Binary {
		t.Errorf("got Binary=false, want true")
	}
	if got, want := len(doc.Gltf.Images), 2; got != want {
		t.Fatalf("got %d images, want %d", got, want)
	}
	wantViews := []glb.BufferView{
		{Buffer: 0, ByteOffset: 0, ByteLength: 40},
		{Buffer: 0, ByteOffset: 40, ByteLength: 24},
	}
	if diff := cmp.Diff(wantViews, doc.Gltf.BufferViews); diff != "" {
		t.Errorf("buffer views mismatch (-want +got):\n%s", diff)
	}

	data, err := doc.BufferData(0)
	if err != nil {
		t.Fatalf("BufferData failed: %v", err)
	}
	if !cmp.Equal(data[40:64], second) {
		t.Errorf("BufferData(0)[40:64] does not hold the second image")
	}
}

func TestParse_Corrupt(t *testing.T) {
	valid := testutil.BuildTexturedGLB([]testutil.ImageSpec{{Data: testutil.FakeImage(3, 8), MimeType: "image/png"}})

	badMagic := append([]byte("gLTF"), valid[4:]...)
	truncated := append([]byte(nil), valid[:len(valid)-20]...)

	for name, payload := range map[string][]byte{
		"BadMagic":  badMagic,
		"Truncated": truncated,
		"BadJSON":   []byte(`{"asset": `),
	} {
		if _, err := glb.Parse(payload); !errors.Is(err, glb.ErrCorruptDocument) {
			t.Errorf("Parse(%s): got %v, want ErrCorruptDocument", name, err)
		}
	}
}

func TestParse_JSONDocument(t *testing.T) {
	doc, err := glb.Parse([]byte(`{"asset":{"version":"2.0"},"buffers":[{"byteLength":3,"uri":"data:application/octet-stream;base64,AQID"}]}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	data, err := doc.BufferData(0)
	if err != nil {
		t.Fatalf("BufferData failed: %v", err)
	}
	if !cmp.Equal(data, []byte{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", data)
	}
}

func TestBufferData_External(t *testing.T) {
	doc, err := glb.Parse([]byte(`{"asset":{"version":"2.0"},"buffers":[{"byteLength":3,"uri":"mesh.bin"}]}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := doc.BufferData(0); !errors.Is(err, glb.ErrExternalBuffer) {
		t.Errorf("got %v, want ErrExternalBuffer", err)
	}
	if _, err := doc.BufferData(1); err == nil {
		t.Errorf("BufferData(1) succeeded on a one-buffer document")
	}
}

func TestDecodeDataURI(t *testing.T) {
	cases := []struct {
		URI       string
		MediaType string
		Data      []byte
	}{
		{URI: "data:image/png;base64,iVBORw==", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		{URI: "data:image/png;base64,iVBORw", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		{URI: "data:text/plain,a%20b", MediaType: "text/plain", Data: []byte("a b")},
	}
	for _, c := range cases {
		mediaType, data, err := glb.DecodeDataURI(c.URI)
		if err != nil {
			t.Errorf("DecodeDataURI(%q) failed: %v", c.URI, err)
			continue
		}
		if mediaType != c.MediaType {
			t.Errorf("DecodeDataURI(%q): got media type %q, want %q", c.URI, mediaType, c.MediaType)
		}
		if !cmp.Equal(data, c.Data) {
			t.Errorf("DecodeDataURI(%q): got %v, want %v", c.URI, data, c.Data)
		}
	}

	if _, _, err := glb.DecodeDataURI("data:image/png;base64"); err == nil {
		t.Errorf("DecodeDataURI without comma succeeded")
	}
	if _, _, err := glb.DecodeDataURI("data:image/png;base64,!!!!"); err == nil {
		t.Errorf("DecodeDataURI with invalid base64 succeeded")
	}
}
