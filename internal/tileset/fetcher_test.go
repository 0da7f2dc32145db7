package tileset_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecopia-map/cesium_texture_tiler/internal/tileset"
)

func newTileServer(t *testing.T) (*httptest.Server, *int32) {
	var flakyHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/root.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "secret" {
			http.Error(w, "missing key", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		fmt.Fprint(w, `{"asset":{"version":"1.0"},"root":{"children":[]}}`)
	})
	mux.HandleFunc("/echo-session", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "no session", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, c.Value)
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&flakyHits, 1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/not-a-tileset", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hello":"world"}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &flakyHits
}

func TestHTTPFetcher(t *testing.T) {
	server, flakyHits := newTileServer(t)
	fetcher := tileset.NewHTTPFetcher(tileset.HTTPFetcherOptions{Retries: 2, Backoff: time.Millisecond, UserAgent: "test"})
	ctx := context.Background()

	result, err := fetcher.Fetch(ctx, server.URL+"/root.json?key=secret")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.SessionToken != "abc" {
		t.Errorf("got session %q, want abc", result.SessionToken)
	}

	echo, err := fetcher.Fetch(ctx, server.URL+"/echo-session")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := string(echo.Body); got != "abc" {
		t.Errorf("server saw session %q, want abc", got)
	}

	flaky, err := fetcher.Fetch(ctx, server.URL+"/flaky")
	if err != nil {
		t.Fatalf("Fetch with retry failed: %v", err)
	}
	if string(flaky.Body) != "ok" || atomic.LoadInt32(flakyHits) != 2 {
		t.Errorf("got body %q after %d hits, want ok after 2", flaky.Body, atomic.LoadInt32(flakyHits))
	}

	_, err = fetcher.Fetch(ctx, server.URL+"/missing")
	var statusErr *tileset.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("got %v, want a 404 StatusError", err)
	}
}

func TestCheckConnection(t *testing.T) {
	server, _ := newTileServer(t)
	fetcher := tileset.NewHTTPFetcher(tileset.HTTPFetcherOptions{})
	ctx := context.Background()

	if _, err := tileset.CheckConnection(ctx, fetcher, server.URL+"/root.json?key=secret"); err != nil {
		t.Errorf("CheckConnection failed: %v", err)
	}

	_, err := tileset.CheckConnection(ctx, fetcher, server.URL+"/root.json?key=wrong")
	var statusErr *tileset.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("got %v, want a 403 StatusError", err)
	}
	if !strings.Contains(err.Error(), "API key") {
		t.Errorf("got %q, want a hint about the API key", err)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Errorf("error %q leaks the API key", err)
	}

	if _, err := tileset.CheckConnection(ctx, fetcher, server.URL+"/not-a-tileset"); err == nil {
		t.Errorf("CheckConnection accepted a document without asset and root")
	}
}
