// Package bundle inspects a downloaded model directory and decides whether it
// is worth handing to the converter.
package bundle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ConfigFileName is the configuration descriptor every convertible bundle
// must carry at its top level.
const ConfigFileName = "config.json"

// weightExtensions are the file suffixes recognised as model weights.
var weightExtensions = []string{".safetensors", ".bin", ".pt", ".pth", ".ckpt"}

// Bundle is a validated model directory.
type Bundle struct {
	// Dir is the bundle directory.
	Dir string
	// WeightFiles are the absolute paths of the top-level weight files, sorted.
	WeightFiles []string
	// ConfigPath is the path of the configuration descriptor.
	ConfigPath string
}

// Validate scans the immediate entries of dir (subdirectories are ignored)
// and checks that the bundle has at least one weight file and a configuration
// descriptor. It never modifies the directory.
func Validate(dir string) (*Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read bundle directory: %w", err)
	}

	var weights []string
	hasConfig := false
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if isWeightFile(name) {
			weights = append(weights, filepath.Join(dir, name))
		}
		if name == ConfigFileName {
			hasConfig = true
		}
	}

	if len(weights) == 0 {
		return nil, &ValidationError{Kind: NoWeightFiles, Dir: dir}
	}
	if !hasConfig {
		return nil, &ValidationError{Kind: MissingConfig, Dir: dir}
	}

	// Sort so that logs and downstream consumers see a stable order.
	sort.Strings(weights)

	return &Bundle{
		Dir:         dir,
		WeightFiles: weights,
		ConfigPath:  filepath.Join(dir, ConfigFileName),
	}, nil
}

// Size returns the total size in bytes of the bundle's weight files.
func (b *Bundle) Size() (int64, error) {
	var total int64
	for _, path := range b.WeightFiles {
		fi, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		total += fi.Size()
	}
	return total, nil
}

func isWeightFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range weightExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
