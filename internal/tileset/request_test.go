package tileset_test

import (
	"testing"

	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
)

func TestRewriteURI(t *testing.T) {
	reqCtx := tileset.NewRequestContext("K").WithSession("S")
	cases := []struct {
		In   string
		Want string
	}{
		{In: "https://h/a.glb", Want: "https://h/a.glb?key=K&session=S"},
		{In: "https://h/a.glb?v=1", Want: "https://h/a.glb?v=1&key=K&session=S"},
		{In: "https://h/a.glb?key=K", Want: "https://h/a.glb?key=K&session=S"},
		{In: "https://h/a.glb?session=OLD", Want: "https://h/a.glb?session=OLD&key=K"},
		{In: "https://h/a.glb?", Want: "https://h/a.glb?key=K&session=S"},
		{In: "tiles/a.glb#part", Want: "tiles/a.glb?key=K&session=S#part"},
		{In: "data:image/png;base64,AAAA", Want: "data:image/png;base64,AAAA"},
		{In: "", Want: ""},
	}
	for _, c := range cases {
		once := reqCtx.RewriteURI(c.In)
		if once != c.Want {
			t.Errorf("RewriteURI(%q): got %q, want %q", c.In, once, c.Want)
		}
		if twice := reqCtx.RewriteURI(once); twice != once {
			t.Errorf("RewriteURI is not idempotent on %q: got %q after %q", c.In, twice, once)
		}
	}
}

func TestRewriteURI_WithoutSession(t *testing.T) {
	reqCtx := tileset.NewRequestContext("K")
	if got, want := reqCtx.RewriteURI("https://h/root.json"), "https://h/root.json?key=K"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := reqCtx.WithSession("S").RewriteURI("https://h/root.json?key=K"), "https://h/root.json?key=K&session=S"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if reqCtx.SessionToken != "" {
		t.Errorf("WithSession modified the receiver")
	}
}

func TestStripCredentials(t *testing.T) {
	cases := map[string]string{
		"https://h/a.glb?key=K&session=S":     "https://h/a.glb",
		"https://h/a.glb?session=S&v=2&key=K": "https://h/a.glb?v=2",
		"https://h/a.glb?v=2":                 "https://h/a.glb?v=2",
	}
	for in, want := range cases {
		if got := tileset.StripCredentials(in); got != want {
			t.Errorf("StripCredentials(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestResolveReference(t *testing.T) {
	cases := []struct {
		Base, Ref, Want string
	}{
		{Base: "https://h/v1/root.json?key=K", Ref: "tiles/a.glb", Want: "https://h/v1/tiles/a.glb"},
		{Base: "https://h/v1/root.json", Ref: "/v1/3dtiles/b.json?session=S", Want: "https://h/v1/3dtiles/b.json?session=S"},
		{Base: "https://h/v1/root.json", Ref: "https://other/c.glb", Want: "https://other/c.glb"},
	}
	for _, c := range cases {
		got, err := tileset.ResolveReference(c.Base, c.Ref)
		if err != nil {
			t.Errorf("ResolveReference(%q, %q) failed: %v", c.Base, c.Ref, err)
			continue
		}
		if got != c.Want {
			t.Errorf("ResolveReference(%q, %q): got %q, want %q", c.Base, c.Ref, got, c.Want)
		}
	}

	if got := tileset.SessionFromURI("/v1/3dtiles/b.json?session=S"); got != "S" {
		t.Errorf("SessionFromURI: got %q, want S", got)
	}
}
