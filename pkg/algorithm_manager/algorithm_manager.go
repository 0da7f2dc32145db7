package algorithm_manager

import (
	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/texture"
)

// Supplies the pipeline stages with the algorithms they run
type AlgorithmManager interface {
	GetCoordinateConverterAlgorithm() converters.CoordinateConverter
	GetExtractorAlgorithm() texture.IExtractor
}
