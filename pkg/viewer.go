package pkg

import (
	"bytes"
	"encoding/json"
	"html/template"
	"path/filepath"

	"github.com/ecopia-map/cesium_texture_tiler/internal/geometry"
	"github.com/ecopia-map/cesium_texture_tiler/tools"
	"github.com/shopspring/decimal"
)

const (
	ViewerFileName   = "index.html"
	TileJSONFileName = "tile.json"
)

// Coordinates in the viewer page and tile.json keep 6 decimals, about 10cm.
const coordinatePlaces = 6

type TileJSON struct {
	TileJSON    string     `json:"tilejson"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Scheme      string     `json:"scheme"`
	Tiles       []string   `json:"tiles"`
	Minzoom     int        `json:"minzoom"`
	Maxzoom     int        `json:"maxzoom"`
	Bounds      [4]float64 `json:"bounds"`
	Center      [3]float64 `json:"center"`
}

type viewerPage struct {
	Title      string
	Region     string
	West       float64
	South      float64
	East       float64
	North      float64
	CenterLat  float64
	CenterLon  float64
	MinZoom    int
	MaxZoom    int
	TMS        bool
	Missing    string // name of the missing tiling utility, empty when tiles exist
	MosaicPath string
	Command    string
}

var viewerTemplate = template.Must(template.New("viewer").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css" />
    <script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
    <style>
{{- if .Missing}}
        body { margin: 0; padding: 0; font-family: Arial, sans-serif; }
        #map { height: 400px; width: 100%; margin-bottom: 20px; }
        .container { padding: 20px; max-width: 800px; margin: 0 auto; }
        .alert { background-color: #f8d7da; color: #721c24; padding: 15px; border-radius: 4px; margin-bottom: 20px; }
        code { background: #f5f5f5; padding: 2px 5px; border-radius: 3px; }
{{- else}}
        body { margin: 0; padding: 0; }
        #map { position: absolute; top: 0; bottom: 0; width: 100%; height: 100%; }
        .leaflet-container { background: #f0f0f0; }
{{- end}}
    </style>
</head>
<body>
{{- if .Missing}}
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="alert">
            <strong>Note:</strong> XYZ tiles could not be generated because {{.Missing}} is not installed.
        </div>
        <h2>Mosaic extent</h2>
        <div id="map"></div>
        <h2>Instructions to fix:</h2>
        <ol>
            <li>Install GDAL so that <code>{{.Missing}}</code> is on the PATH, or rerun with <code>-engine native</code></li>
            <li>Run the process command again: <code>{{.Command}}</code></li>
        </ol>
        <p>Mosaic file location: <code>{{.MosaicPath}}</code></p>
    </div>
{{- else}}
    <div id="map"></div>
{{- end}}
    <script>
        var map = L.map('map');
        var baseLayer = L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
            attribution: '&copy; OpenStreetMap contributors',
            maxZoom: 19
        }).addTo(map);
        var bounds = [[{{.South}}, {{.West}}], [{{.North}}, {{.East}}]];
{{- if .Missing}}
        L.rectangle(bounds, {color: '#721c24', weight: 1}).addTo(map)
            .bindPopup({{.Region}});
        L.marker([{{.CenterLat}}, {{.CenterLon}}]).addTo(map);
{{- else}}
        var imageryLayer = L.tileLayer('./{z}/{x}/{y}.png', {
            attribution: '3D Tiles',
            minZoom: {{.MinZoom}},
            maxZoom: {{.MaxZoom}},
            tms: {{.TMS}},
            opacity: 0.7,
            bounds: bounds
        }).addTo(map);
        L.control.layers({"OpenStreetMap": baseLayer}, {"Imagery Layer": imageryLayer}).addTo(map);
{{- end}}
        map.fitBounds(bounds);
    </script>
</body>
</html>
`))

func roundCoordinate(v float64) float64 {
	return decimal.NewFromFloat(v).Round(coordinatePlaces).InexactFloat64()
}

func newViewerPage(region string, bounds geometry.BoundingBox) viewerPage {
	return viewerPage{
		Title:     "Tile Viewer - " + region,
		Region:    region,
		West:      roundCoordinate(bounds.Xmin),
		South:     roundCoordinate(bounds.Ymin),
		East:      roundCoordinate(bounds.Xmax),
		North:     roundCoordinate(bounds.Ymax),
		CenterLat: roundCoordinate((bounds.Ymin + bounds.Ymax) / 2),
		CenterLon: roundCoordinate((bounds.Xmin + bounds.Xmax) / 2),
	}
}

func writeViewer(outputDir string, page viewerPage) error {
	var buf bytes.Buffer
	if err := viewerTemplate.Execute(&buf, page); err != nil {
		return err
	}
	return tools.WriteFileAtomic(filepath.Join(outputDir, ViewerFileName), buf.Bytes())
}

func writeTileJSON(outputDir string, region string, bounds geometry.BoundingBox, minZoom int, maxZoom int) error {
	centerZoom := minZoom + (maxZoom-minZoom)/2
	obj := TileJSON{
		TileJSON:    "2.2.0",
		Name:        region,
		Description: "Imagery extracted from photorealistic 3D tiles of " + region,
		Scheme:      "xyz",
		Tiles:       []string{"{z}/{x}/{y}.png"},
		Minzoom:     minZoom,
		Maxzoom:     maxZoom,
		Bounds: [4]float64{
			roundCoordinate(bounds.Xmin), roundCoordinate(bounds.Ymin),
			roundCoordinate(bounds.Xmax), roundCoordinate(bounds.Ymax),
		},
		Center: [3]float64{
			roundCoordinate((bounds.Xmin + bounds.Xmax) / 2),
			roundCoordinate((bounds.Ymin + bounds.Ymax) / 2),
			float64(centerZoom),
		},
	}

	data, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return err
	}
	return tools.WriteFileAtomic(filepath.Join(outputDir, TileJSONFileName), data)
}
