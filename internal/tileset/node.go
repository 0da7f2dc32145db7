// Package tileset walks a remote 3D Tiles tree and extracts the textures of
// every leaf payload into a flat directory.
package tileset

import (
	"bytes"
	"encoding/json"
)

type Asset struct {
	Version string `json:"version"`
}

// Content references either a nested tileset document or a leaf payload.
// Legacy tilesets use url instead of uri.
type Content struct {
	URI string `json:"uri,omitempty"`
	URL string `json:"url,omitempty"`
}

func (c *Content) Ref() string {
	if c == nil {
		return ""
	}
	if c.URI != "" {
		return c.URI
	}
	return c.URL
}

type BoundingVolume struct {
	Region []float64 `json:"region,omitempty"` // west, south, east, north (radians), min and max height
	Box    []float64 `json:"box,omitempty"`    // center followed by three half-axis vectors, ECEF metres
	Sphere []float64 `json:"sphere,omitempty"` // center and radius, ECEF metres
}

type Node struct {
	BoundingVolume *BoundingVolume `json:"boundingVolume,omitempty"`
	GeometricError float64         `json:"geometricError,omitempty"`
	Content        *Content        `json:"content,omitempty"`
	Children       []Node          `json:"children,omitempty"`
}

// IsDeadEnd reports whether traversal stops at this node.
func (n *Node) IsDeadEnd() bool {
	return n.Content.Ref() == "" && len(n.Children) == 0
}

type Tileset struct {
	Asset *Asset `json:"asset,omitempty"`
	Root  *Node  `json:"root,omitempty"`
}

// Response is the tagged result of decoding a fetched body: either a Parsed
// metadata node or a Raw leaf payload.
type Response interface {
	isResponse()
}

type Parsed struct {
	Node Node
}

type Raw struct {
	Data []byte
}

func (Parsed) isResponse() {}
func (Raw) isResponse()    {}

// probe holds the keys that tell tileset documents apart from glTF JSON.
type probe struct {
	Root        json.RawMessage `json:"root"`
	Children    json.RawMessage `json:"children"`
	Content     json.RawMessage `json:"content"`
	Buffers     json.RawMessage `json:"buffers"`
	Images      json.RawMessage `json:"images"`
	Meshes      json.RawMessage `json:"meshes"`
	BufferViews json.RawMessage `json:"bufferViews"`
}

// Decode classifies body. Anything that does not decode as a JSON object is
// a leaf payload, and so is a glTF document delivered as JSON.
func Decode(body []byte) Response {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Raw{Data: body}
	}

	var p probe
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return Raw{Data: body}
	}

	isNode := p.Root != nil || p.Children != nil || p.Content != nil
	isGltf := p.Buffers != nil || p.Images != nil || p.Meshes != nil || p.BufferViews != nil
	if isGltf && !isNode {
		return Raw{Data: body}
	}

	if p.Root != nil {
		var ts Tileset
		if err := json.Unmarshal(trimmed, &ts); err != nil || ts.Root == nil {
			return Raw{Data: body}
		}
		return Parsed{Node: *ts.Root}
	}

	var node Node
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return Raw{Data: body}
	}
	return Parsed{Node: node}
}
