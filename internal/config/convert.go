package config

import (
	"github.com/loykin/gsmon/internal/logger"
	"github.com/loykin/gsmon/internal/process"
)

// LoggerConfig maps the [log] section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Slog: logger.SlogConfig{
			Level:      logger.Level(c.Log.Level),
			Format:     logger.Format(c.Log.Format),
			Color:      c.Log.Color,
			TimeStamps: c.Log.Timestamps,
		},
		File: logger.FileConfig{
			Path:       c.Log.File,
			Dir:        c.Log.Dir,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	}
}

// ProcessSpec describes the game server to launch.
func (c *Config) ProcessSpec() (process.Spec, error) {
	env, err := c.ChildEnv()
	if err != nil {
		return process.Spec{}, err
	}
	return process.Spec{
		Name:    c.GSName,
		Path:    c.Executable,
		Args:    c.Args,
		WorkDir: c.WorkDir,
		Env:     env,
		Log:     c.LoggerConfig(),
	}, nil
}
