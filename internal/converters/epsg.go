package converters

import (
	"fmt"
	"strings"
)

const (
	SridWGS84         = 4326
	SridWebMercator   = 3857
	SridWorldMercator = 3395
	SridECEF          = 4978
)

// Definitions maps EPSG codes to proj4 init strings.
type Definitions map[int]string

var defaultDefinitions = Definitions{
	SridWGS84:         "+proj=longlat +datum=WGS84 +no_defs",
	SridWebMercator:   "+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs",
	SridWorldMercator: "+proj=merc +lon_0=0 +k=1 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
	SridECEF:          "+proj=geocent +datum=WGS84 +units=m +no_defs",
	4258:              "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	27700:             "+proj=tmerc +lat_0=49 +lon_0=-2 +k=0.9996012717 +x_0=400000 +y_0=-100000 +ellps=airy +towgs84=446.448,-125.157,542.06,0.15,0.247,0.842,-20.489 +units=m +no_defs",
}

// NewDefinitions returns the built-in table extended, and possibly
// overridden, by extra.
func NewDefinitions(extra map[int]string) Definitions {
	defs := make(Definitions, len(defaultDefinitions)+len(extra))
	for srid, def := range defaultDefinitions {
		defs[srid] = def
	}
	for srid, def := range extra {
		defs[srid] = def
	}
	return defs
}

func (d Definitions) Lookup(srid int) (string, error) {
	if def, ok := d[srid]; ok {
		return def, nil
	}
	// UTM zones are generated rather than listed
	if srid > 32600 && srid <= 32660 {
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", srid-32600), nil
	}
	if srid > 32700 && srid <= 32760 {
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", srid-32700), nil
	}
	return "", fmt.Errorf("no proj4 definition for EPSG:%d", srid)
}

// IsGeographic reports whether the definition works in longitude and latitude.
func IsGeographic(definition string) bool {
	for _, token := range strings.Fields(definition) {
		switch token {
		case "+proj=longlat", "+proj=latlong", "+proj=lonlat", "+proj=latlon":
			return true
		}
	}
	return false
}
