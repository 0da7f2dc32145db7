package texture

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ecopia-map/cesium_texture_tiler/internal/glb"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/golang/glog"
	"github.com/zeebo/blake3"
)

// IExtractor writes the images embedded in a leaf payload to a directory.
type IExtractor interface {
	ExtractFile(filePath string, outDir string) (*Report, error)
	Extract(payload []byte, name string, outDir string) (*Report, error)
}

type StandardExtractor struct{}

func NewExtractor() IExtractor {
	return &StandardExtractor{}
}

// ExtractionError is returned when a payload cannot be parsed at all. Image
// level failures never produce it; they are recorded in the Report instead.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func (e *StandardExtractor) ExtractFile(filePath string, outDir string) (*Report, error) {
	payload, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ExtractionError{Path: filePath, Err: err}
	}
	return e.Extract(payload, filePath, outDir)
}

// Extract parses payload and writes every resolvable image to outDir. name is
// only used to derive output file names and for logging.
func (e *StandardExtractor) Extract(payload []byte, name string, outDir string) (*Report, error) {
	report := &Report{Source: name}

	doc, err := glb.Read(payload)
	if err != nil {
		return report, &ExtractionError{Path: name, Err: err}
	}
	if len(doc.Gltf.Images) == 0 {
		glog.V(1).Infof("%s: no images", name)
		return report, nil
	}
	if err := tools.CreateDirectoryIfDoesNotExist(outDir); err != nil {
		return report, &ExtractionError{Path: name, Err: err}
	}

	stem := fileStem(name)
	for idx, img := range doc.Gltf.Images {
		switch {
		case img.BufferView != nil:
			e.extractFromBufferView(doc, idx, img, stem, outDir, report)
		case glb.IsDataURI(img.URI):
			e.extractInline(idx, img, stem, outDir, report)
		case img.URI != "":
			glog.Infof("%s: image %d references external resource %s", name, idx, img.URI)
			report.External = append(report.External, ExternalImage{Index: idx, URI: img.URI})
		default:
			report.skip(idx, "image has neither bufferView nor uri")
		}
	}

	return report, nil
}

func (e *StandardExtractor) extractFromBufferView(doc *glb.Document, idx int, img glb.Image, stem string, outDir string, report *Report) {
	viewIndex := *img.BufferView
	if viewIndex < 0 || viewIndex >= len(doc.Gltf.BufferViews) {
		report.skip(idx, fmt.Sprintf("bufferView %d out of range [0,%d)", viewIndex, len(doc.Gltf.BufferViews)))
		return
	}
	view := doc.Gltf.BufferViews[viewIndex]
	if view.Buffer < 0 || view.Buffer >= len(doc.Gltf.Buffers) {
		report.skip(idx, fmt.Sprintf("buffer %d out of range [0,%d)", view.Buffer, len(doc.Gltf.Buffers)))
		return
	}

	data, err := doc.BufferData(view.Buffer)
	if err != nil {
		report.skip(idx, err.Error())
		return
	}
	// compared without adding offset and length, which may overflow
	if view.ByteOffset < 0 || view.ByteLength <= 0 || view.ByteOffset > len(data) || view.ByteLength > len(data)-view.ByteOffset {
		report.skip(idx, fmt.Sprintf("byte range %d+%d exceeds buffer of %d bytes", view.ByteOffset, view.ByteLength, len(data)))
		return
	}
	end := view.ByteOffset + view.ByteLength

	fileName := fmt.Sprintf("%s_image_%d_%d_%d%s", stem, idx, view.Buffer, view.ByteOffset, ExtensionForMimeType(img.MimeType))
	e.write(idx, filepath.Join(outDir, fileName), data[view.ByteOffset:end], report)
}

func (e *StandardExtractor) extractInline(idx int, img glb.Image, stem string, outDir string, report *Report) {
	mediaType, data, err := glb.DecodeDataURI(img.URI)
	if err != nil {
		report.skip(idx, err.Error())
		return
	}
	if len(data) == 0 {
		report.skip(idx, "inline image is empty")
		return
	}

	mimeType := img.MimeType
	if mimeType == "" {
		mimeType = mediaType
	}
	var fileName string
	if base := inlineFileName(img.URI); base != "" {
		fileName = stem + "_" + base
	} else {
		sum := blake3.Sum256(data)
		fileName = fmt.Sprintf("%s_inline_%d_%s%s", stem, idx, hex.EncodeToString(sum[:4]), ExtensionForMimeType(mimeType))
	}
	e.write(idx, filepath.Join(outDir, fileName), data, report)
}

func (e *StandardExtractor) write(idx int, filePath string, data []byte, report *Report) {
	if err := tools.WriteFileAtomic(filePath, data); err != nil {
		report.skip(idx, err.Error())
		return
	}
	glog.V(1).Infof("wrote image %d to %s (%d bytes)", idx, filePath, len(data))
	report.Extracted = append(report.Extracted, ExtractedImage{Index: idx, Path: filePath, Bytes: int64(len(data))})
}

// ExtensionForMimeType maps the declared MIME type to a file extension,
// falling back to .jpg.
func ExtensionForMimeType(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/ktx2":
		return ".ktx2"
	default:
		return ".jpg"
	}
}

// inlineFileName derives a file name from the part of a data URI after its
// last slash, when that part looks like a file name. Base64 payloads almost
// never do, so synthesized names are the common case.
func inlineFileName(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	if comma := strings.IndexByte(uri, ','); comma >= 0 {
		uri = uri[comma+1:]
	}
	base := path.Base(uri)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	ext := strings.ToLower(path.Ext(base))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".ktx2":
	default:
		return ""
	}
	if strings.ContainsAny(base, `/\:*?"<>|`) || strings.HasPrefix(base, ".") {
		return ""
	}
	return base
}

func fileStem(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "payload"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
