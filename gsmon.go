package gsmon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/loykin/gsmon/internal/config"
	"github.com/loykin/gsmon/internal/console"
	"github.com/loykin/gsmon/internal/history"
	"github.com/loykin/gsmon/internal/history/factory"
	"github.com/loykin/gsmon/internal/metrics"
	"github.com/loykin/gsmon/internal/report"
	"github.com/loykin/gsmon/internal/supervisor"
	"github.com/loykin/gsmon/internal/telemetry"
	"github.com/loykin/gsmon/internal/watchdog"
)

// Re-export the types callers need to drive a monitor.

type Config = config.Config

type ServerStatus = report.ServerStatus

type Game = report.Game

var (
	ErrLaunch         = supervisor.ErrLaunch
	ErrConfigNotFound = config.ErrNotFound
	// ErrNoConsole is returned by console queries when the console is disabled
	// or did not answer.
	ErrNoConsole = errors.New("gsmon: console unavailable")
)

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

func WriteDefaultConfig(path string) error { return config.WriteDefault(path) }

// Monitor wires a loaded configuration into a running supervisor.
type Monitor struct {
	cfg       *Config
	log       *slog.Logger
	sup       *supervisor.Supervisor
	collector *telemetry.Collector
	recorder  *history.Recorder
}

// New builds every collaborator the configuration asks for. History sinks are
// opened here, so Close must be called even if Run is never reached.
func New(cfg *Config) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.LoggerConfig().NewSlogger()

	spec, err := cfg.ProcessSpec()
	if err != nil {
		return nil, err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	sinks, err := factory.NewSinks(cfg.History.Sinks)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	m := &Monitor{cfg: cfg, log: log}
	deps := supervisor.Deps{
		Launcher: supervisor.ProcessLauncher{Spec: spec},
		Logger:   log,
	}

	var events telemetry.Fanout
	if cfg.Endpoints.Data != "" || cfg.Endpoints.Events != "" {
		m.collector = telemetry.NewCollector(cfg.Endpoints.Data, cfg.Endpoints.Events).
			WithAuth(cfg.Auth.Header, cfg.Auth.Value)
		m.collector.Logger = log
		events = append(events, m.collector)
		if cfg.Endpoints.Data != "" {
			deps.Data = m.collector
		}
	}
	if len(sinks) > 0 {
		m.recorder = history.NewRecorder(log, sinks...)
		events = append(events, m.recorder)
	}
	if len(events) > 0 {
		deps.Events = events
	}

	if c := consoleClient(cfg, log); c != nil {
		deps.Console = c
	}
	deps.Watchdog = watchdogFunc(cfg, log)

	m.sup = supervisor.New(supervisor.Options{
		GSName:          cfg.GSName,
		RestartInterval: cfg.RestartInterval,
		RestartSchedule: sched,
		RestartTimeout:  cfg.RestartTimeout,
		PollInterval:    cfg.PollInterval,
		RelaunchDelay:   cfg.RelaunchDelay,
		ForceStopWait:   cfg.ForceStopWait,
		ReportGames:     cfg.Report.Games,
		ReportStatus:    cfg.Report.Status,
	}, deps)
	return m, nil
}

func consoleClient(cfg *Config, log *slog.Logger) *console.Client {
	if !cfg.Console.Enabled {
		return nil
	}
	c := console.NewClient(cfg.Console.Port, cfg.Console.Password)
	if cfg.Console.LoginTimeout > 0 {
		c.LoginTimeout = cfg.Console.LoginTimeout
	}
	if cfg.Console.ReadTimeout > 0 {
		c.ReadTimeout = cfg.Console.ReadTimeout
	}
	c.Logger = log
	return c
}

func watchdogFunc(cfg *Config, log *slog.Logger) supervisor.WatchdogFunc {
	if cfg.Watchdog.Offset == 0 {
		return nil
	}
	sys, err := watchdog.NewSystem()
	if err != nil {
		log.Warn("watchdog disabled", "error", err)
		return nil
	}
	wc := watchdog.Config{Module: cfg.Watchdog.Module, Offset: cfg.Watchdog.Offset, Timeout: cfg.Watchdog.Timeout}
	return func(pid int) (supervisor.Watchdog, error) {
		p, err := watchdog.NewProbe(sys, pid, wc)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Run serves metrics when configured and supervises the game server until ctx
// is done or a launch fails.
func (m *Monitor) Run(ctx context.Context) error {
	if addr := m.cfg.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				m.log.Error("metrics server stopped", "addr", addr, "error", err)
			}
		}()
	}
	m.log.Info("monitoring game server", "gsname", m.cfg.GSName, "executable", m.cfg.Executable)
	return m.sup.Run(ctx)
}

// Close waits for pending publishes and closes the history sinks.
func (m *Monitor) Close() error {
	if m.collector != nil {
		m.collector.Wait()
	}
	if m.recorder != nil {
		return m.recorder.Close()
	}
	return nil
}

// Exec runs one console command against the configured server.
func Exec(ctx context.Context, cfg *Config, command string) (string, error) {
	c := consoleClient(cfg, slog.Default())
	if c == nil {
		return "", ErrNoConsole
	}
	out, ok := c.Exec(ctx, command)
	if !ok {
		return "", ErrNoConsole
	}
	return out, nil
}

func QueryStatus(ctx context.Context, cfg *Config) (ServerStatus, error) {
	out, err := Exec(ctx, cfg, report.CommandStatus)
	if err != nil {
		return ServerStatus{}, err
	}
	return report.ParseStatus(out)
}

func QueryGames(ctx context.Context, cfg *Config) ([]Game, error) {
	out, err := Exec(ctx, cfg, report.CommandGames)
	if err != nil {
		return nil, err
	}
	return report.ParseGames(out), nil
}
