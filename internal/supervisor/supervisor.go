// Package supervisor keeps a single game server alive: it launches the
// child, polls it for due restarts, reports and watchdog stalls, and relaunches
// it whenever it exits.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/gsmon/internal/console"
	"github.com/loykin/gsmon/internal/metrics"
	"github.com/loykin/gsmon/internal/process"
	"github.com/loykin/gsmon/internal/report"
	"github.com/loykin/gsmon/internal/telemetry"
)

// ErrLaunch wraps any failure to start the child. It is the only error Run
// returns.
var ErrLaunch = errors.New("supervisor: launch failed")

const (
	defaultPollInterval  = 2500 * time.Millisecond
	defaultRelaunchDelay = time.Second
	defaultForceStopWait = 5 * time.Second
	defaultRestartGrace  = 30 * time.Second

	// A module that is still missing after this many ticks is not coming.
	maxProbeAttempts = 12
)

// Watchdog reports whether the child stopped updating its heartbeat.
type Watchdog interface {
	Stalled() bool
}

// WatchdogFunc builds a probe for a freshly launched child. An error means
// the probe is not ready yet; it is retried on later ticks, up to
// maxProbeAttempts per session.
type WatchdogFunc func(pid int) (Watchdog, error)

type Options struct {
	GSName string

	// Uptime limit; whichever of the two comes first after launch.
	RestartInterval time.Duration
	RestartSchedule cron.Schedule
	// Passed to the console restart command as its countdown.
	RestartTimeout time.Duration
	// Extra time the server gets beyond RestartTimeout before it is killed.
	RestartGrace time.Duration

	PollInterval  time.Duration
	RelaunchDelay time.Duration
	ForceStopWait time.Duration

	ReportGames  time.Duration
	ReportStatus time.Duration
}

// Deps are the collaborators a Supervisor drives. Only Launcher is required.
type Deps struct {
	Launcher Launcher
	Console  console.Execer
	Data     telemetry.DataPublisher
	Events   telemetry.EventPublisher
	Watchdog WatchdogFunc
	Logger   *slog.Logger
}

type Supervisor struct {
	opts     Options
	launcher Launcher
	console  console.Execer
	reporter *report.Reporter
	events   telemetry.EventPublisher
	watchdog WatchdogFunc
	log      *slog.Logger
	now      func() time.Time
}

func New(opts Options, deps Deps) *Supervisor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.RelaunchDelay <= 0 {
		opts.RelaunchDelay = defaultRelaunchDelay
	}
	if opts.ForceStopWait <= 0 {
		opts.ForceStopWait = defaultForceStopWait
	}
	if opts.RestartGrace <= 0 {
		opts.RestartGrace = defaultRestartGrace
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		opts:     opts,
		launcher: deps.Launcher,
		console:  deps.Console,
		events:   deps.Events,
		watchdog: deps.Watchdog,
		log:      log.With("gsname", opts.GSName),
		now:      time.Now,
	}
	if deps.Console != nil {
		s.reporter = report.NewReporter(deps.Console, deps.Data, opts.GSName, s.log)
	}
	return s
}

// session is the state of one child run. It is owned by the poll loop.
type session struct {
	child    Child
	pid      int
	start    time.Time
	limit    time.Time // zero when there is no uptime limit
	sched    *report.Schedule
	probe    Watchdog
	probeTry int
	pending  bool
	deadlock bool
	forceAt  time.Time
}

// Run launches the child and keeps relaunching it until ctx is done. A
// running child is left alone on cancellation. The only error returned wraps
// ErrLaunch.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		sess, err := s.launch(ctx)
		if err != nil {
			return err
		}
		if !s.supervise(ctx, sess) {
			s.log.Info("monitor stopping, leaving server running", "pid", sess.pid)
			return nil
		}
		s.exited(ctx, sess)

		t := time.NewTimer(s.opts.RelaunchDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *Supervisor) launch(ctx context.Context) (*session, error) {
	child, err := s.launcher.Launch()
	if err != nil {
		s.log.Error("unable to start server", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	now := s.now()
	sess := &session{
		child: child,
		pid:   child.PID(),
		start: now,
		limit: s.uptimeLimit(now),
		sched: report.NewSchedule(s.opts.ReportGames, s.opts.ReportStatus, now),
	}
	metrics.IncStart()
	s.publish(ctx, telemetry.StartEvent(now, s.opts.GSName, sess.pid))
	s.log.Info("server started", "pid", sess.pid)
	return sess, nil
}

func (s *Supervisor) uptimeLimit(start time.Time) time.Time {
	var limit time.Time
	if s.opts.RestartInterval > 0 {
		limit = start.Add(s.opts.RestartInterval)
	}
	if s.opts.RestartSchedule != nil {
		next := s.opts.RestartSchedule.Next(start)
		if !next.IsZero() && (limit.IsZero() || next.Before(limit)) {
			limit = next
		}
	}
	return limit
}

// supervise polls the child until it exits (true) or ctx is done (false).
func (s *Supervisor) supervise(ctx context.Context, sess *session) bool {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-sess.child.Done():
			return true
		case <-ticker.C:
			s.tick(ctx, sess, s.now())
		}
	}
}

func (s *Supervisor) tick(ctx context.Context, sess *session, now time.Time) {
	if (sess.pending || sess.deadlock) && !sess.forceAt.IsZero() && !now.Before(sess.forceAt) {
		s.forceStop(sess)
		return
	}

	if s.console != nil {
		s.reporter.Dispatch(ctx, sess.sched, now)
		if !sess.pending && !sess.limit.IsZero() && !now.Before(sess.limit) {
			s.restart(ctx, sess, now)
		}
	}

	if !sess.deadlock {
		s.checkWatchdog(sess, now)
	}

	metrics.ObserveChild(sess.pid)
}

// forceStop runs on every overdue tick until the child is gone, so a stop
// that failed is tried again.
func (s *Supervisor) forceStop(sess *session) {
	if gone(sess.child) {
		return
	}
	s.log.Warn("force stopping server", "pid", sess.pid)
	err := sess.child.Stop(s.opts.ForceStopWait)
	if !gone(sess.child) {
		s.log.Warn("force stop failed, retrying on next tick", "pid", sess.pid, "error", err)
	}
}

func gone(c Child) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func (s *Supervisor) restart(ctx context.Context, sess *session, now time.Time) {
	secs := int(s.opts.RestartTimeout / time.Second)
	_, ok := s.console.Exec(ctx, fmt.Sprintf("restart %d", secs))
	sess.pending = true
	sess.forceAt = now.Add(s.opts.RestartTimeout + s.opts.RestartGrace)
	s.log.Info("restarting server", "pid", sess.pid, "countdown", secs, "console_ok", ok)
}

func (s *Supervisor) checkWatchdog(sess *session, now time.Time) {
	if sess.probe == nil {
		if s.watchdog == nil || sess.probeTry >= maxProbeAttempts {
			return
		}
		sess.probeTry++
		p, err := s.watchdog(sess.pid)
		if err != nil {
			if sess.probeTry == maxProbeAttempts {
				s.log.Info("watchdog disabled for this run", "pid", sess.pid, "error", err)
			} else {
				s.log.Debug("watchdog not ready", "pid", sess.pid, "error", err)
			}
			return
		}
		sess.probe = p
	}
	if !sess.probe.Stalled() {
		return
	}
	sess.deadlock = true
	// A hung child is stopped on the next tick, unless a console restart
	// already runs its countdown.
	if !sess.pending {
		sess.forceAt = now
	}
	metrics.IncWatchdogStall()
	s.log.Warn("server deadlocked, queueing restart", "pid", sess.pid)
}

// statusReporter is implemented by children that track their own exit.
type statusReporter interface {
	Snapshot() process.Status
}

func (s *Supervisor) exited(ctx context.Context, sess *session) {
	reason := Classify(sess.pending, sess.deadlock)
	now := s.now()
	uptime := now.Sub(sess.start)
	attrs := []any{"pid", sess.pid, "reason", reason.String()}
	if sr, ok := sess.child.(statusReporter); ok {
		st := sr.Snapshot()
		if d := st.Uptime(now); d > 0 {
			uptime = d
		}
		if st.ExitErr != nil {
			attrs = append(attrs, "exit", st.ExitErr.Error())
		}
	}
	attrs = append(attrs, "uptime", uptime.Round(time.Second))
	s.publish(ctx, telemetry.RestartEvent(now, s.opts.GSName, reason.String(), sess.pid))
	metrics.IncExit(reason.String(), uptime)
	s.log.Info("server stopped", attrs...)
}

func (s *Supervisor) publish(ctx context.Context, e telemetry.Event) {
	if s.events == nil {
		return
	}
	s.events.PublishEvent(ctx, e)
}
