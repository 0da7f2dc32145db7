package std_algorithm_manager

import (
	"github.com/ecopia-map/cesium_texture_tiler/internal/converters"
	"github.com/ecopia-map/cesium_texture_tiler/internal/converters/proj4_coordinate_converter"
	"github.com/ecopia-map/cesium_texture_tiler/internal/texture"
	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
	"github.com/ecopia-map/cesium_texture_tiler/pkg/algorithm_manager"
)

type StandardAlgorithmManager struct {
	coordinateConverter converters.CoordinateConverter
	extractor           texture.IExtractor
}

func NewAlgorithmManager(opts *tiler.TilerOptions) algorithm_manager.AlgorithmManager {
	return &StandardAlgorithmManager{
		coordinateConverter: proj4_coordinate_converter.NewProj4CoordinateConverter(converters.NewDefinitions(opts.CrsDefinitions)),
		extractor:           texture.NewExtractor(),
	}
}

func (m *StandardAlgorithmManager) GetCoordinateConverterAlgorithm() converters.CoordinateConverter {
	return m.coordinateConverter
}

func (m *StandardAlgorithmManager) GetExtractorAlgorithm() texture.IExtractor {
	return m.extractor
}
