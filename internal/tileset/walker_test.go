package tileset_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/internal/testutil"
	"github.com/ecopia-map/cesium_texture_tiler/internal/texture"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
	"github.com/google/go-cmp/cmp"
)

const entryURL = "https://tiles.example.com/v1/root.json"

// A fake tile service answering from a map keyed by URL without credentials.
type fakeFetcher struct {
	bodies   map[string][]byte
	session  string
	requests []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*tileset.FetchResult, error) {
	f.requests = append(f.requests, rawURL)
	body, ok := f.bodies[tileset.StripCredentials(rawURL)]
	if !ok {
		return nil, &tileset.StatusError{URL: rawURL, StatusCode: 404}
	}
	return &tileset.FetchResult{URL: rawURL, Body: body, SessionToken: f.session}, nil
}

func newWalker(fetcher tileset.Fetcher, outDir string) *tileset.Walker {
	return tileset.NewWalker(fetcher, texture.NewExtractor(), tileset.WalkerOptions{OutputDir: outDir})
}

func imageFiles(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestWalk_ThreeNodeTree(t *testing.T) {
	outDir := t.TempDir()
	fetcher := &fakeFetcher{
		session: "s1",
		bodies: map[string][]byte{
			entryURL: []byte(`{"asset":{"version":"1.0"},"root":{"children":[
				{"content":{"uri":"tiles/a.b3dm"}},
				{"content":{"uri":"tiles/b.glb"}}
			]}}`),
			"https://tiles.example.com/v1/tiles/a.b3dm": testutil.WrapLegacy(testutil.BuildTexturedGLB([]testutil.ImageSpec{
				{Data: testutil.FakeImage(1, 40), MimeType: "image/jpeg"},
				{Data: testutil.FakeImage(2, 40), MimeType: "image/png"},
			}), nil),
			"https://tiles.example.com/v1/tiles/b.glb": testutil.BuildTexturedGLB([]testutil.ImageSpec{
				{Data: testutil.FakeImage(3, 40), MimeType: "image/jpeg"},
				{Data: testutil.FakeImage(4, 40), MimeType: "image/jpeg", ByteLength: 1 << 20},
			}),
		},
	}

	summary, err := newWalker(fetcher, outDir).Walk(context.Background(), entryURL, tileset.NewRequestContext("secret"))
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	want := []string{"a_image_0_0_0.jpg", "a_image_1_0_40.png", "b_image_0_0_0.jpg"}
	if diff := cmp.Diff(want, imageFiles(t, outDir)); diff != "" {
		t.Errorf("extracted files mismatch (-want +got):\n%s", diff)
	}
	if summary.ImagesExtracted != 3 || summary.ImagesSkipped != 1 {
		t.Errorf("got %d extracted and %d skipped, want 3 and 1", summary.ImagesExtracted, summary.ImagesSkipped)
	}
	if summary.Leaves != 2 || summary.NodesVisited != 3 || summary.Count(tileset.Failed) != 0 {
		t.Errorf("unexpected summary: %s", summary)
	}

	wantRequests := []string{
		entryURL + "?key=secret",
		"https://tiles.example.com/v1/tiles/a.b3dm?key=secret&session=s1",
		"https://tiles.example.com/v1/tiles/b.glb?key=secret&session=s1",
	}
	if diff := cmp.Diff(wantRequests, fetcher.requests); diff != "" {
		t.Errorf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestWalk_FailuresDoNotAbort(t *testing.T) {
	outDir := t.TempDir()
	fetcher := &fakeFetcher{
		bodies: map[string][]byte{
			entryURL: []byte(`{"asset":{"version":"1.0"},"root":{"children":[
				{"content":{"uri":"missing.glb"}},
				{"content":{"uri":"garbage.bin"}},
				{"content":{"uri":"root.json"}},
				{"content":{"uri":"sub/tileset.json"}}
			]}}`),
			"https://tiles.example.com/v1/garbage.bin":      []byte("this is not json and not a container"),
			"https://tiles.example.com/v1/sub/tileset.json": []byte(`{"root":{"content":{"url":"leaf.glb"}}}`),
			"https://tiles.example.com/v1/sub/leaf.glb": testutil.BuildTexturedGLB([]testutil.ImageSpec{
				{Data: testutil.FakeImage(5, 32), MimeType: "image/png"},
			}),
		},
	}

	summary, err := newWalker(fetcher, outDir).Walk(context.Background(), entryURL, tileset.NewRequestContext("secret"))
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if diff := cmp.Diff([]string{"leaf_image_0_0_0.png"}, imageFiles(t, outDir)); diff != "" {
		t.Errorf("extracted files mismatch (-want +got):\n%s", diff)
	}
	if got := summary.Count(tileset.Failed); got != 2 {
		t.Errorf("got %d failed outcomes, want 2 (missing and garbage): %+v", got, summary.Outcomes)
	}
	if got := summary.Count(tileset.Skipped); got != 1 {
		t.Errorf("got %d skipped outcomes, want 1 (cycle): %+v", got, summary.Outcomes)
	}
	if _, err := os.Stat(filepath.Join(outDir, "garbage.bin")); err != nil {
		t.Errorf("undecodable payload was not kept as a leaf: %v", err)
	}
}

func TestWalk_SameLeafNameInDifferentFolders(t *testing.T) {
	outDir := t.TempDir()
	first, second := testutil.FakeImage(1, 40), testutil.FakeImage(2, 40)
	fetcher := &fakeFetcher{
		bodies: map[string][]byte{
			entryURL: []byte(`{"asset":{"version":"1.0"},"root":{"children":[
				{"content":{"uri":"0/0.glb"}},
				{"content":{"uri":"1/0.glb"}}
			]}}`),
			"https://tiles.example.com/v1/0/0.glb": testutil.BuildTexturedGLB([]testutil.ImageSpec{{Data: first, MimeType: "image/jpeg"}}),
			"https://tiles.example.com/v1/1/0.glb": testutil.BuildTexturedGLB([]testutil.ImageSpec{{Data: second, MimeType: "image/jpeg"}}),
		},
	}

	summary, err := newWalker(fetcher, outDir).Walk(context.Background(), entryURL, tileset.NewRequestContext("secret"))
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	files := imageFiles(t, outDir)
	if len(files) != summary.ImagesExtracted || len(files) != 2 {
		t.Fatalf("got files %v for %d extracted images, want 2 of each", files, summary.ImagesExtracted)
	}
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatal(err)
		}
		want := second
		if name == "0_image_0_0_0.jpg" {
			want = first
		}
		if !cmp.Equal(data, want) {
			t.Errorf("%s holds the image of the other leaf", name)
		}
	}
}

func TestWalk_RootFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{bodies: map[string][]byte{}}
	_, err := newWalker(fetcher, t.TempDir()).Walk(context.Background(), entryURL, tileset.NewRequestContext("secret"))
	if err == nil || !strings.Contains(err.Error(), "root") {
		t.Errorf("got %v, want root fetch error", err)
	}
}

func TestWalk_DepthAndBounds(t *testing.T) {
	leaf := testutil.BuildTexturedGLB([]testutil.ImageSpec{{Data: testutil.FakeImage(6, 16), MimeType: "image/png"}})
	fetcher := &fakeFetcher{
		bodies: map[string][]byte{
			// near london (first child) and near sydney (second child), in radians
			entryURL: []byte(`{"asset":{"version":"1.0"},"root":{"children":[
				{"boundingVolume":{"region":[-0.0030,0.8970,0.0010,0.8990,0,100]},"content":{"uri":"london.glb"},
				 "children":[{"content":{"uri":"deep.glb"}}]},
				{"boundingVolume":{"region":[2.6370,-0.5920,2.6400,-0.5900,0,100]},"content":{"uri":"sydney.glb"}}
			]}}`),
			"https://tiles.example.com/v1/london.glb": leaf,
			"https://tiles.example.com/v1/sydney.glb": leaf,
			"https://tiles.example.com/v1/deep.glb":   leaf,
		},
	}

	walker := tileset.NewWalker(fetcher, texture.NewExtractor(), tileset.WalkerOptions{
		OutputDir: t.TempDir(),
		MaxDepth:  1,
		Filter: &tileset.BoundsFilter{
			Bounds:    geometry.BoundingBox{Xmin: -0.5, Xmax: 0.5, Ymin: 51, Ymax: 52},
			Converter: converters.NewMercatorConverter(),
		},
	})
	summary, err := walker.Walk(context.Background(), entryURL, tileset.NewRequestContext("secret"))
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if summary.Leaves != 1 || summary.ImagesExtracted != 1 {
		t.Errorf("got %d leaves and %d images, want only london: %s", summary.Leaves, summary.ImagesExtracted, summary)
	}
}

func TestBoundsFilter(t *testing.T) {
	filter := &tileset.BoundsFilter{
		Bounds:    geometry.BoundingBox{Xmin: -1, Xmax: 1, Ymin: -1, Ymax: 1},
		Converter: converters.NewMercatorConverter(),
	}
	cases := []struct {
		Name   string
		Volume *tileset.BoundingVolume
		Want   bool
	}{
		{Name: "None", Volume: nil, Want: true},
		{Name: "SphereInside", Volume: &tileset.BoundingVolume{Sphere: []float64{6378137, 0, 0, 1000}}, Want: true},
		{Name: "SphereOutside", Volume: &tileset.BoundingVolume{Sphere: []float64{0, 6378137, 0, 1000}}, Want: false},
		{Name: "BoxInside", Volume: &tileset.BoundingVolume{Box: []float64{6378137, 0, 0, 10, 0, 0, 0, 10, 0, 0, 0, 10}}, Want: true},
		{Name: "GlobeSphere", Volume: &tileset.BoundingVolume{Sphere: []float64{0, 0, 0, 7e6}}, Want: true},
		{Name: "RegionOutside", Volume: &tileset.BoundingVolume{Region: []float64{1, 1, 1.1, 1.1, 0, 0}}, Want: false},
	}
	for _, c := range cases {
		if got := filter.Accepts(c.Volume); got != c.Want {
			t.Errorf("Accepts(%s): got %v, want %v", c.Name, got, c.Want)
		}
	}

	var nilFilter *tileset.BoundsFilter
	if !nilFilter.Accepts(&tileset.BoundingVolume{Region: []float64{1, 1, 1.1, 1.1, 0, 0}}) {
		t.Errorf("nil filter rejected a volume")
	}
}
