// Package source locates and streams MaxMind GeoLite2 CSV files.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultBlocksFile        = "GeoLite2-Country-Blocks-IPv4.csv"
	DefaultLocationsTemplate = "GeoLite2-Country-Locations-%s.csv"
)

// ErrMissing is returned when the source directory or a required file is absent.
var ErrMissing = errors.New("source file missing")

// Files resolves file names inside an extracted MaxMind CSV archive.
type Files struct {
	Dir               string
	BlocksFile        string
	LocationsTemplate string
}

func NewFiles(dir, blocksFile, locationsTemplate string) Files {
	if blocksFile == "" {
		blocksFile = DefaultBlocksFile
	}
	if locationsTemplate == "" {
		locationsTemplate = DefaultLocationsTemplate
	}

	return Files{
		Dir:               filepath.Clean(dir),
		BlocksFile:        blocksFile,
		LocationsTemplate: locationsTemplate,
	}
}

func (f Files) BlocksPath() string {
	return filepath.Join(f.Dir, f.BlocksFile)
}

func (f Files) LocationsPath(language string) string {
	return filepath.Join(f.Dir, fmt.Sprintf(f.LocationsTemplate, language))
}

// Check verifies that the directory, the blocks file and the locations file
// of the primary language are present before anything is written.
func (f Files) Check(primary string) error {
	info, err := os.Stat(f.Dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: directory %s", ErrMissing, f.Dir)
	}

	for _, path := range []string{f.BlocksPath(), f.LocationsPath(primary)} {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrMissing, path)
		}
	}

	return nil
}
