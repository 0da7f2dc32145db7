// Package texture resolves the image table of a glTF document to raw image
// files on disk.
package texture

import "github.com/golang/glog"

type ExtractedImage struct {
	Index int
	Path  string
	Bytes int64
}

type SkippedImage struct {
	Index  int
	Reason string
}

type ExternalImage struct {
	Index int
	URI   string
}

// Report lists what happened to every image of one payload.
type Report struct {
	Source    string
	Extracted []ExtractedImage
	Skipped   []SkippedImage
	External  []ExternalImage
}

func (r *Report) skip(idx int, reason string) {
	glog.Warningf("%s: skipping image %d: %s", r.Source, idx, reason)
	r.Skipped = append(r.Skipped, SkippedImage{Index: idx, Reason: reason})
}

func (r *Report) BytesWritten() int64 {
	var total int64
	for _, img := range r.Extracted {
		total += img.Bytes
	}
	return total
}
