package mailkeepconfig

import (
	"log/slog"
	"os"
)

// EnvOverrides holds configuration values sourced from environment
// variables — the third layer of the precedence chain, below CLI flags and
// above the config file.
type EnvOverrides struct {
	ConfigPath string // MAILKEEP_CONFIG
	Mailbox    string // MAILKEEP_MAILBOX
}

// ReadEnvOverrides reads the environment variables mailkeep recognizes.
// Unset variables leave the corresponding field empty, which ApplyEnv
// treats as "no override".
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv("MAILKEEP_CONFIG"),
		Mailbox:    os.Getenv("MAILKEEP_MAILBOX"),
	}

	if env.ConfigPath != "" || env.Mailbox != "" {
		logger.Debug("environment overrides present",
			slog.String("config_path", env.ConfigPath),
			slog.String("mailbox", env.Mailbox),
		)
	}

	return env
}

// ApplyEnv layers environment overrides onto cfg. Called after Load, before
// CLI overrides.
func ApplyEnv(cfg *Config, env EnvOverrides) {
	if env.Mailbox != "" {
		cfg.Provider.Mailbox = env.Mailbox
	}
}
