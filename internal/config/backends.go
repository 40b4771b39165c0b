package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/depotfs/depot/internal/model"
)

// backendsFile is the YAML document declaring the configured backends.
type backendsFile struct {
	Backends []model.BackendConfig `yaml:"backends"`
}

// LoadBackends reads the backend declarations from path. Every entry needs
// a unique tag and a known kind; connection params are validated by the
// backend constructors, not here.
func LoadBackends(path string) ([]model.BackendConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backends file %q: %w", path, err)
	}

	var doc backendsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse backends file %q: %w", path, err)
	}
	if len(doc.Backends) == 0 {
		return nil, fmt.Errorf("backends file %q declares no backends", path)
	}

	seen := make(map[string]bool, len(doc.Backends))
	for _, b := range doc.Backends {
		if b.Tag == "" {
			return nil, fmt.Errorf("backends file %q: entry with empty tag", path)
		}
		if seen[b.Tag] {
			return nil, fmt.Errorf("backends file %q: duplicate tag %q", path, b.Tag)
		}
		seen[b.Tag] = true
		switch b.Kind {
		case model.KindFS, model.KindSFTP, model.KindS3:
		default:
			return nil, fmt.Errorf("backends file %q: tag %q has unknown kind %q", path, b.Tag, b.Kind)
		}
	}
	return doc.Backends, nil
}
