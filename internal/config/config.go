package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: GSMON_CONSOLE_PASSWORD
// overrides console.password.
const EnvPrefix = "GSMON"

var ErrNotFound = errors.New("config: file not found")

// Config is the monitor's settings file.
type Config struct {
	GSName     string   `mapstructure:"gsname"`
	Executable string   `mapstructure:"executable"`
	Args       []string `mapstructure:"args"`
	WorkDir    string   `mapstructure:"workdir"`
	Env        []string `mapstructure:"env"`
	EnvFiles   []string `mapstructure:"env_files"`

	RestartInterval time.Duration `mapstructure:"restart_interval"`
	RestartTimeout  time.Duration `mapstructure:"restart_timeout"`
	RestartSchedule string        `mapstructure:"restart_schedule"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RelaunchDelay   time.Duration `mapstructure:"relaunch_delay"`
	ForceStopWait   time.Duration `mapstructure:"force_stop_wait"`

	Console   ConsoleConfig   `mapstructure:"console"`
	Watchdog  WatchdogConfig  `mapstructure:"watchdog"`
	Report    ReportConfig    `mapstructure:"report"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	History   HistoryConfig   `mapstructure:"history"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ConsoleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type WatchdogConfig struct {
	Module  string        `mapstructure:"module"`
	Offset  uint32        `mapstructure:"offset"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReportConfig periods; 0 disables a report.
type ReportConfig struct {
	Status time.Duration `mapstructure:"status"`
	Games  time.Duration `mapstructure:"games"`
}

type EndpointsConfig struct {
	Data   string `mapstructure:"data"`
	Events string `mapstructure:"events"`
}

type AuthConfig struct {
	Header string `mapstructure:"header"`
	Value  string `mapstructure:"value"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Color      bool   `mapstructure:"color"`
	Timestamps bool   `mapstructure:"timestamps"`
	File       string `mapstructure:"file"`
	Dir        string `mapstructure:"dir"` // child stdout/stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type HistoryConfig struct {
	Sinks []string `mapstructure:"sinks"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// defaults mirror the settings a fresh install of the server expects.
// Durations are strings so that WriteDefault emits readable values.
func defaults() map[string]any {
	return map[string]any{
		"gsname":                "D2GS",
		"executable":            "D2GS.exe",
		"args":                  []string{},
		"workdir":               "",
		"env":                   []string{},
		"env_files":             []string{},
		"restart_interval":      "4h",
		"restart_timeout":       "30s",
		"restart_schedule":      "",
		"poll_interval":         "2.5s",
		"relaunch_delay":        "1s",
		"force_stop_wait":       "5s",
		"console.enabled":       true,
		"console.port":          8888,
		"console.password":      "",
		"console.login_timeout": "500ms",
		"console.read_timeout":  "500ms",
		"watchdog.module":       "D2Server.dll",
		"watchdog.offset":       69364,
		"watchdog.timeout":      "30s",
		"report.status":         "0s",
		"report.games":          "0s",
		"endpoints.data":        "",
		"endpoints.events":      "",
		"auth.header":           "",
		"auth.value":            "",
		"log.level":             "info",
		"log.format":            "text",
		"log.color":             false,
		"log.timestamps":        true,
		"log.file":              "",
		"log.dir":               "",
		"log.max_size_mb":       10,
		"log.max_backups":       3,
		"log.max_age_days":      7,
		"log.compress":          false,
		"history.sinks":         []string{},
		"metrics.listen":        "",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// configType picks the viper decoder from the extension; TOML by default.
func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// Load reads path, applies defaults and GSMON_* overrides and validates the
// result. A missing file wraps ErrNotFound.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType(configType(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return decode(v)
}

// Default returns the built-in settings with environment overrides applied.
func Default() (*Config, error) {
	return decode(newViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// WriteDefault writes the built-in settings to path, refusing to overwrite
// an existing file.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	v := viper.New()
	for k, val := range defaults() {
		v.Set(k, val)
	}
	v.SetConfigType(configType(path))
	return v.SafeWriteConfigAs(path)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Executable) == "" {
		errs = append(errs, errors.New("executable is required"))
	}
	for name, d := range map[string]time.Duration{
		"restart_interval":      c.RestartInterval,
		"restart_timeout":       c.RestartTimeout,
		"relaunch_delay":        c.RelaunchDelay,
		"force_stop_wait":       c.ForceStopWait,
		"console.login_timeout": c.Console.LoginTimeout,
		"console.read_timeout":  c.Console.ReadTimeout,
		"watchdog.timeout":      c.Watchdog.Timeout,
		"report.status":         c.Report.Status,
		"report.games":          c.Report.Games,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Console.Enabled && (c.Console.Port <= 0 || c.Console.Port > 65535) {
		errs = append(errs, fmt.Errorf("console.port %d out of range", c.Console.Port))
	}
	if _, err := c.Schedule(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Schedule parses restart_schedule as a standard five-field cron
// expression. It returns nil when no schedule is configured.
func (c *Config) Schedule() (cron.Schedule, error) {
	expr := strings.TrimSpace(c.RestartSchedule)
	if expr == "" {
		return nil, nil
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("restart_schedule %q: %w", expr, err)
	}
	return s, nil
}
