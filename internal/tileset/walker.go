package tileset

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ecopia-map/cesium_texture_tiler/internal/texture"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
	"github.com/zeebo/blake3"
)

type Status int

const (
	Succeeded Status = iota
	Skipped
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Outcome records what happened to one content reference.
type Outcome struct {
	URI    string
	Status Status
	Reason string
	Images int
}

type Summary struct {
	Outcomes        []Outcome
	NodesVisited    int
	Leaves          int
	ImagesExtracted int
	ImagesSkipped   int
	ExternalImages  int
	BytesWritten    int64
}

func (s *Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

func (s *Summary) String() string {
	return fmt.Sprintf(
		"%d nodes visited, %d leaves, %d images extracted (%s), %d images skipped, %d external images, %d contents failed, %d skipped",
		s.NodesVisited, s.Leaves, s.ImagesExtracted, humanize.Bytes(uint64(s.BytesWritten)),
		s.ImagesSkipped, s.ExternalImages, s.Count(Failed), s.Count(Skipped),
	)
}

type WalkerOptions struct {
	OutputDir           string        // Flat directory receiving leaf payloads and extracted images
	MaxDepth            int           // Levels of children to descend, 0 for no limit
	Filter              *BoundsFilter // Optional spatial filter on bounding volumes
	FetchExternalImages bool          // Fetch images that leaf documents reference by external URI
}

// Walker performs a depth-first, single threaded traversal of a tileset.
type Walker struct {
	fetcher   Fetcher
	extractor texture.IExtractor
	options   WalkerOptions
}

func NewWalker(fetcher Fetcher, extractor texture.IExtractor, options WalkerOptions) *Walker {
	return &Walker{
		fetcher:   fetcher,
		extractor: extractor,
		options:   options,
	}
}

// walk holds the state of a single traversal.
type walk struct {
	*Walker
	summary *Summary
	visited map[string]bool
	names   map[string]bool // leaf file names taken in the output directory
}

// Walk fetches the tileset at entryURL and everything below it. Only a
// failure to fetch the entry point is returned as an error; every other
// failure is recorded in the summary and the walk carries on.
func (w *Walker) Walk(ctx context.Context, entryURL string, reqCtx RequestContext) (*Summary, error) {
	if err := tools.CreateDirectoryIfDoesNotExist(w.options.OutputDir); err != nil {
		return nil, err
	}

	rootURL := reqCtx.RewriteURI(entryURL)
	glog.Infof("fetching root tileset from %s", hostOf(rootURL))
	result, err := w.fetcher.Fetch(ctx, rootURL)
	if err != nil {
		return nil, fmt.Errorf("fetching root tileset: %w", err)
	}
	if reqCtx.SessionToken == "" && result.SessionToken != "" {
		reqCtx = reqCtx.WithSession(result.SessionToken)
	}

	run := &walk{
		Walker:  w,
		summary: &Summary{},
		visited: map[string]bool{StripCredentials(rootURL): true},
		names:   map[string]bool{},
	}
	run.handle(ctx, rootURL, result.Body, reqCtx, 0)

	glog.Infof("walk finished: %s", run.summary)
	return run.summary, ctx.Err()
}

func (run *walk) handle(ctx context.Context, docURL string, body []byte, reqCtx RequestContext, depth int) {
	switch resp := Decode(body).(type) {
	case Parsed:
		run.record(Outcome{URI: StripCredentials(docURL), Status: Succeeded})
		run.visitNode(ctx, &resp.Node, docURL, reqCtx, depth)
	case Raw:
		run.leaf(ctx, docURL, resp.Data, reqCtx)
	}
}

func (run *walk) visitNode(ctx context.Context, node *Node, docURL string, reqCtx RequestContext, depth int) {
	if ctx.Err() != nil {
		return
	}
	run.summary.NodesVisited++

	if !run.options.Filter.Accepts(node.BoundingVolume) {
		glog.V(1).Infof("node %q at depth %d is outside the requested bounds", node.Content.Ref(), depth)
		run.record(Outcome{URI: node.Content.Ref(), Status: Skipped, Reason: "outside bounds"})
		return
	}
	if node.IsDeadEnd() {
		return
	}

	if ref := node.Content.Ref(); ref != "" {
		run.followContent(ctx, ref, docURL, reqCtx, depth)
	}

	if run.options.MaxDepth > 0 && depth >= run.options.MaxDepth {
		if len(node.Children) > 0 {
			run.record(Outcome{URI: node.Content.Ref(), Status: Skipped, Reason: fmt.Sprintf("depth limit %d", run.options.MaxDepth)})
		}
		return
	}
	for i := range node.Children {
		run.visitNode(ctx, &node.Children[i], docURL, reqCtx, depth+1)
	}
}

func (run *walk) followContent(ctx context.Context, ref string, docURL string, reqCtx RequestContext, depth int) {
	resolved, err := ResolveReference(docURL, ref)
	if err != nil {
		glog.Warningf("invalid content uri %q: %v", ref, err)
		run.record(Outcome{URI: ref, Status: Failed, Reason: err.Error()})
		return
	}
	if reqCtx.SessionToken == "" {
		if session := SessionFromURI(resolved); session != "" {
			reqCtx = reqCtx.WithSession(session)
		}
	}

	target := reqCtx.RewriteURI(resolved)
	identity := StripCredentials(target)
	if run.visited[identity] {
		run.record(Outcome{URI: identity, Status: Skipped, Reason: "already visited"})
		return
	}
	run.visited[identity] = true

	result, err := run.fetcher.Fetch(ctx, target)
	if err != nil {
		glog.Warningf("skipping subtree %s: %v", identity, err)
		run.record(Outcome{URI: identity, Status: Failed, Reason: err.Error()})
		return
	}
	run.handle(ctx, target, result.Body, reqCtx, depth)
}

func (run *walk) leaf(ctx context.Context, leafURL string, data []byte, reqCtx RequestContext) {
	run.summary.Leaves++
	identity := StripCredentials(leafURL)
	leafPath := filepath.Join(run.options.OutputDir, run.uniqueName(leafFileName(identity), identity))

	if err := tools.WriteFileAtomic(leafPath, data); err != nil {
		glog.Errorf("cannot store leaf %s: %v", identity, err)
		run.record(Outcome{URI: identity, Status: Failed, Reason: err.Error()})
		return
	}

	report, err := run.extractor.ExtractFile(leafPath, run.options.OutputDir)
	if report != nil {
		run.summary.ImagesExtracted += len(report.Extracted)
		run.summary.ImagesSkipped += len(report.Skipped)
		run.summary.ExternalImages += len(report.External)
		run.summary.BytesWritten += report.BytesWritten()
	}
	if err != nil {
		glog.Errorf("%v", err)
		run.record(Outcome{URI: identity, Status: Failed, Reason: err.Error()})
		return
	}

	images := len(report.Extracted)
	if run.options.FetchExternalImages {
		stem := strings.TrimSuffix(filepath.Base(leafPath), filepath.Ext(leafPath))
		for _, ext := range report.External {
			if run.fetchExternalImage(ctx, leafURL, stem, ext, reqCtx) {
				images++
			}
		}
	}

	tools.LogOutput(fmt.Sprintf("extracted %d images from %s", images, filepath.Base(leafPath)))
	run.record(Outcome{URI: identity, Status: Succeeded, Images: images})
}

func (run *walk) fetchExternalImage(ctx context.Context, leafURL string, stem string, ext texture.ExternalImage, reqCtx RequestContext) bool {
	resolved, err := ResolveReference(leafURL, ext.URI)
	if err != nil {
		glog.Warningf("invalid image uri %q: %v", ext.URI, err)
		return false
	}
	target := reqCtx.RewriteURI(resolved)
	identity := StripCredentials(target)
	if run.visited[identity] {
		return false
	}
	run.visited[identity] = true

	result, err := run.fetcher.Fetch(ctx, target)
	if err != nil {
		glog.Warningf("cannot fetch external image %s: %v", identity, err)
		run.summary.ImagesSkipped++
		return false
	}

	imagePath := filepath.Join(run.options.OutputDir, stem+"_"+leafFileName(identity))
	if err := tools.WriteFileAtomic(imagePath, result.Body); err != nil {
		glog.Warningf("cannot store external image %s: %v", identity, err)
		run.summary.ImagesSkipped++
		return false
	}
	run.summary.ImagesExtracted++
	run.summary.BytesWritten += int64(len(result.Body))
	return true
}

func (run *walk) record(outcome Outcome) {
	run.summary.Outcomes = append(run.summary.Outcomes, outcome)
}

// uniqueName suffixes name with a hash of identity when an earlier leaf of
// this walk already stored a payload under the same name, so 0/0.glb and
// 1/0.glb do not overwrite each other and their images.
func (run *walk) uniqueName(name string, identity string) string {
	if run.names[name] {
		ext := path.Ext(name)
		sum := blake3.Sum256([]byte(identity))
		name = strings.TrimSuffix(name, ext) + "_" + hex.EncodeToString(sum[:4]) + ext
	}
	run.names[name] = true
	return name
}

// leafFileName names a stored payload after the last path segment of its
// URL, or after a hash of the URL when there is no usable segment.
func leafFileName(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, ".") {
		sum := blake3.Sum256([]byte(rawURL))
		return "tile_" + hex.EncodeToString(sum[:4]) + ".bin"
	}
	return name
}
