package tools

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ecopia-map/cesium_texture_tiler/internal/tiler"
)

var RasterExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}

type FileFinder interface {
	GetRasterFilesToProcess(opts *tiler.MosaicOptions) ([]string, error)
}

type StandardFileFinder struct{}

func NewStandardFileFinder() FileFinder {
	return &StandardFileFinder{}
}

// Lists the raster files of the -input folder in lexical order, eventually excluding nested folders if Recursive flag
// is disabled. Temporary files and the mosaic itself are never returned
func (f *StandardFileFinder) GetRasterFilesToProcess(opts *tiler.MosaicOptions) ([]string, error) {
	var rasterFiles = make([]string, 0)

	baseInfo, err := os.Stat(opts.Input)
	if err != nil {
		return nil, err
	}
	output, _ := filepath.Abs(opts.Output)

	err = filepath.Walk(
		opts.Input,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if !opts.Recursive && !os.SameFile(info, baseInfo) {
					return filepath.SkipDir
				}
				return nil
			}
			if IsTempFile(path) || !IsRasterFile(path) {
				return nil
			}
			if abs, _ := filepath.Abs(path); abs == output {
				return nil
			}
			rasterFiles = append(rasterFiles, path)
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	return rasterFiles, nil
}

func IsRasterFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range RasterExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
