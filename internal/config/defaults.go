package config

const (
	defaultConfigPath   = "~/.config/slipstream/config.toml"
	projectConfigName   = "slipstream.toml"
	defaultOutputDir    = "~/Videos/slipstream"
	defaultLogDir       = "~/.local/share/slipstream/logs"
	defaultStateDir     = "~/.local/share/slipstream"
	defaultTarget       = "/dev/sr0"
	defaultBackend      = "auto"
	defaultBlockSectors = 64
	maxBlockSectors     = 4096
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultLogMaxSizeMB = 20
	defaultLogBackups   = 5
	defaultLogMaxAge    = 60
	defaultNtfyTimeout  = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Device: Device{
			DefaultTarget: defaultTarget,
			Backend:       defaultBackend,
			BlockSectors:  defaultBlockSectors,
		},
		Backup: Backup{
			RecordHistory: true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogBackups,
			MaxAgeDays: defaultLogMaxAge,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Completed:      true,
			Failures:       true,
		},
	}
}
