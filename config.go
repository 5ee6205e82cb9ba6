package problog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds engine settings loaded from a YAML file.
type Config struct {
	// MaxDepth bounds evaluation recursion. Zero keeps the default.
	MaxDepth int `yaml:"max_depth"`
}

// LoadConfig reads engine settings from path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
