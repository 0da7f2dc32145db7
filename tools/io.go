package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

const (
	WorkDirEnv   = "TILES_WORKDIR"
	TempFileTail = ".tmp"
)

// GetRootFolder returns the directory under which downloads, mosaics and
// tiles are laid out: $TILES_WORKDIR when set, else the working directory.
func GetRootFolder() string {
	if dir := os.Getenv(WorkDirEnv); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		glog.Fatal("cannot retrieve working directory", err)
	}
	return wd
}

func CreateDirectoryIfDoesNotExist(directory string) error {
	if _, err := os.Stat(directory); os.IsNotExist(err) {
		err := os.MkdirAll(directory, 0777)
		if err != nil {
			return err
		}
	}
	return nil
}

// IsTempFile reports whether name was produced by WriteFileAtomic and not yet
// renamed into place.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, TempFileTail)
}

// WriteFileAtomic writes data next to filePath and renames it into place, so
// readers never observe a partially written file.
func WriteFileAtomic(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	file, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".*"+TempFileTail)
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", filePath, err)
	}
	tmpPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming %s into place: %w", filePath, err)
	}
	return nil
}
