package mailkeepconfig

import (
	"log/slog"

	"github.com/mailkeep/mailkeep/internal/security"
)

// Resolve runs the full four-layer precedence chain — defaults (via Load),
// config file, environment, then CLI flags — and returns the effective
// Config.
func Resolve(configPath string, env EnvOverrides, cli CLIOverrides, logger *slog.Logger) (*Config, error) {
	path := configPath
	if path == "" {
		path = env.ConfigPath
	}

	cfg, err := Load(path, logger)
	if err != nil {
		return nil, err
	}

	ApplyEnv(cfg, env)
	Apply(cfg, cli)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SecurityOptions converts the resolved ZIP-extraction section into the
// internal/security.Options shape the Security Screen actually consumes.
func (c *Config) SecurityOptions() security.Options {
	return security.Options{
		Enabled:                c.ZipExtraction.Enabled,
		MinFiles:               c.ZipExtraction.MinFiles,
		MaxFiles:               c.ZipExtraction.MaxFiles,
		SkipEncrypted:          c.ZipExtraction.SkipEncrypted,
		SkipWithExecutables:    c.ZipExtraction.SkipWithExecutables,
		BlockExecutablesDirect: c.ZipExtraction.BlockExecutablesDirect,
	}
}
