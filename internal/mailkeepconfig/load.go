package mailkeepconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a YAML config file, starting from DefaultConfig so
// fields the file omits retain their defaults, then validates the result.
// A missing file is not an error — the caller gets pure defaults, same as
// onedrive-go's LoadOrDefault.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	logger.Debug("loading config file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("config file not found, using defaults", slog.String("path", path))
		return cfg, nil
	}

	if err != nil {
		return nil, fmt.Errorf("mailkeepconfig: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mailkeepconfig: parsing %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("mailkeepconfig: %s: %w", path, err)
	}

	logger.Debug("config file parsed successfully", slog.String("path", path))

	return cfg, nil
}
