// Package console talks to the game server's embedded telnet-style console.
package console

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/loykin/gsmon/internal/metrics"
)

// Host is the console address; the console only listens on loopback.
const Host = "127.0.0.1"

const (
	DefaultLoginTimeout = 500 * time.Millisecond
	DefaultReadTimeout  = 500 * time.Millisecond
	passwordPrompt      = ':'
	commandPrompt       = '>'
)

// Execer runs one console command and returns its raw output.
// ok is false when no result could be obtained.
type Execer interface {
	Exec(ctx context.Context, command string) (out string, ok bool)
}

// Client opens a fresh session for every command.
type Client struct {
	Addr         string
	Password     string
	LoginTimeout time.Duration // bound for each prompt
	ReadTimeout  time.Duration // response window after the command
	Logger       *slog.Logger
}

// NewClient returns a client for the console on the local port.
func NewClient(port int, password string) *Client {
	return &Client{
		Addr:         net.JoinHostPort(Host, strconv.Itoa(port)),
		Password:     password,
		LoginTimeout: DefaultLoginTimeout,
		ReadTimeout:  DefaultReadTimeout,
	}
}

// Exec connects, authenticates and runs command. Every failure (dial, missing
// prompt, I/O) is logged at debug level and reported as ok == false.
func (c *Client) Exec(ctx context.Context, command string) (string, bool) {
	out, err := c.exec(ctx, command)
	if err != nil {
		metrics.IncConsoleFailure(commandName(command))
		c.logger().Debug("console command failed", "command", commandName(command), "addr", c.Addr, "error", err)
		return "", false
	}
	return out, true
}

func (c *Client) exec(ctx context.Context, command string) (string, error) {
	login := valOr(c.LoginTimeout, DefaultLoginTimeout)
	s, err := Dial(ctx, c.Addr, login)
	if err != nil {
		return "", err
	}
	defer func() { _ = s.Close() }()

	if _, err := s.ReadUntil(passwordPrompt, login); err != nil {
		return "", err
	}
	if err := s.WriteLine(c.Password); err != nil {
		return "", err
	}
	if _, err := s.ReadUntil(commandPrompt, login); err != nil {
		return "", err
	}
	if err := s.WriteLine(command); err != nil {
		return "", err
	}
	return s.ReadFor(valOr(c.ReadTimeout, DefaultReadTimeout))
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// commandName keeps metric labels bounded ("restart 30" -> "restart").
func commandName(command string) string {
	for i := 0; i < len(command); i++ {
		if command[i] == ' ' {
			return command[:i]
		}
	}
	return command
}

func valOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
