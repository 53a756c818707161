package dedupe

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceRegistry persists the set of tunnel inputs the Controller listens
// on — adapted from the teacher's store.Registry persistence pattern.
// pathsteer-dedupe reads it once at startup; inputs added later take effect
// only after a restart.
type SourceRegistry struct {
	UpdatedAt time.Time      `yaml:"updated_at"`
	Sources   []TunnelSource `yaml:"sources"`
}

// TunnelSource is one configured tunnel input.
type TunnelSource struct {
	Name    string `yaml:"name"`
	Listen  string `yaml:"listen"`
	Enabled bool   `yaml:"enabled"`
}

// LoadSourceRegistry loads the registry from disk. A missing file yields an
// empty registry, not an error.
func LoadSourceRegistry(path string) (*SourceRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SourceRegistry{}, nil
		}
		return nil, err
	}
	var reg SourceRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// SaveSourceRegistry writes the registry to disk, stamping UpdatedAt.
func SaveSourceRegistry(path string, reg *SourceRegistry) error {
	if reg == nil {
		return nil
	}
	reg.UpdatedAt = time.Now().UTC()
	data, err := yaml.Marshal(reg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
