package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config combines the monitor's own structured logging (Slog) with the
// rotated files used for the monitor log and the child's stdout/stderr (File).
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// SlogConfig controls the handler used for the monitor's log.
type SlogConfig struct {
	Level      Level
	Format     Format
	Color      bool // tint handler on the console; ignored for json
	TimeStamps bool
	Source     bool
}

// FileConfig describes rotated log files.
// Path is the monitor's own log file. Child output goes to
// Dir/<name>.stdout.log and Dir/<name>.stderr.log unless StdoutPath/StderrPath
// are set explicitly. Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string
	Dir        string
	StdoutPath string
	StderrPath string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ParseLevel maps a textual level onto slog; unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogger builds the monitor logger writing to stderr and, when File.Path
// is set, to a rotated file as well.
func (c Config) NewSlogger() *slog.Logger {
	return c.newSlogger(os.Stderr)
}

func (c Config) newSlogger(console io.Writer) *slog.Logger {
	level := ParseLevel(string(c.Slog.Level))
	var fileW io.Writer
	if c.File.Path != "" {
		_ = os.MkdirAll(filepath.Dir(c.File.Path), 0o750)
		fileW = c.File.rotated(c.File.Path)
	}

	var handler slog.Handler
	switch {
	case c.Slog.Format == FormatJSON:
		w := console
		if fileW != nil {
			w = io.MultiWriter(console, fileW)
		}
		handler = slog.NewJSONHandler(w, c.handlerOptions(level))
	case c.Slog.Color:
		// Colors stay on the console; the file copy is plain text.
		opts := &tint.Options{Level: level, AddSource: c.Slog.Source, TimeFormat: time.DateTime}
		if !c.Slog.TimeStamps {
			opts.ReplaceAttr = dropTime
		}
		handler = tint.NewHandler(console, opts)
		if fileW != nil {
			handler = fanout{handler, slog.NewTextHandler(fileW, c.handlerOptions(level))}
		}
	default:
		w := console
		if fileW != nil {
			w = io.MultiWriter(console, fileW)
		}
		handler = slog.NewTextHandler(w, c.handlerOptions(level))
	}
	return slog.New(handler)
}

func (c Config) handlerOptions(level slog.Level) *slog.HandlerOptions {
	opts := &slog.HandlerOptions{Level: level, AddSource: c.Slog.Source}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	return opts
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// ProcessWriters returns rotated writers for a child's stdout and stderr.
// Either may be nil when neither Dir nor the explicit path is configured.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.File.StdoutPath
	stderr := c.File.StderrPath
	if stdout == "" && c.File.Dir != "" {
		stdout = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.File.Dir != "" {
		stderr = filepath.Join(c.File.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = c.File.rotated(stdout)
	}
	if stderr != "" {
		errW = c.File.rotated(stderr)
	}
	return outW, errW, nil
}

func (f FileConfig) rotated(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
