package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/gsmon/internal/process"
	"github.com/loykin/gsmon/internal/telemetry"
)

type fakeChild struct {
	pid   int
	done  chan struct{}
	once  sync.Once
	stops atomic.Int32
	// the first failStops calls to Stop fail and leave the child running
	failStops int32
}

func newFakeChild(pid int) *fakeChild {
	return &fakeChild{pid: pid, done: make(chan struct{})}
}

func (c *fakeChild) PID() int              { return c.pid }
func (c *fakeChild) Done() <-chan struct{} { return c.done }
func (c *fakeChild) exit()                 { c.once.Do(func() { close(c.done) }) }

var errStopDenied = errors.New("access denied")

func (c *fakeChild) Stop(time.Duration) error {
	if c.stops.Add(1) <= c.failStops {
		return errStopDenied
	}
	c.exit()
	return nil
}

// fakeLauncher hands out children in order and fails once they run out.
type fakeLauncher struct {
	mu       sync.Mutex
	children []*fakeChild
	launched int
}

var errNoMore = errors.New("no more children")

func (l *fakeLauncher) Launch() (Child, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launched >= len(l.children) {
		return nil, errNoMore
	}
	c := l.children[l.launched]
	l.launched++
	return c, nil
}

type fakeConsole struct {
	mu       sync.Mutex
	commands []string
	onExec   func(cmd string)
}

func (c *fakeConsole) Exec(_ context.Context, cmd string) (string, bool) {
	c.mu.Lock()
	c.commands = append(c.commands, cmd)
	fn := c.onExec
	c.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
	return "", false
}

func (c *fakeConsole) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordingEvents) PublishEvent(_ context.Context, e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		k := e.Type
		if e.Data.Reason != "" {
			k += ":" + e.Data.Reason
		}
		out = append(out, k)
	}
	return out
}

type stalledProbe bool

func (p stalledProbe) Stalled() bool { return bool(p) }

type probeFunc func() bool

func (f probeFunc) Stalled() bool { return f() }

func fastOptions() Options {
	return Options{
		GSName:        "gs1",
		PollInterval:  5 * time.Millisecond,
		RelaunchDelay: time.Millisecond,
		ForceStopWait: 10 * time.Millisecond,
		RestartGrace:  10 * time.Millisecond,
	}
}

func runWithTimeout(t *testing.T, s *Supervisor) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Run(ctx)
	if ctx.Err() != nil {
		t.Fatalf("supervisor did not finish in time")
	}
	return err
}

func TestClassify(t *testing.T) {
	cases := []struct {
		pending, deadlock bool
		want              ExitReason
	}{
		{false, false, Crash},
		{true, false, Routine},
		{false, true, Deadlock},
		{true, true, Routine},
	}
	for _, c := range cases {
		if got := Classify(c.pending, c.deadlock); got != c.want {
			t.Errorf("Classify(%v, %v) = %v, want %v", c.pending, c.deadlock, got, c.want)
		}
	}
	if Routine.String() != "routine" || Deadlock.String() != "deadlock" || Crash.String() != "crash" {
		t.Fatalf("unexpected reason names")
	}
}

func TestRunReturnsLaunchError(t *testing.T) {
	s := New(fastOptions(), Deps{Launcher: &fakeLauncher{}})
	err := runWithTimeout(t, s)
	if !errors.Is(err, ErrLaunch) || !errors.Is(err, errNoMore) {
		t.Fatalf("expected ErrLaunch wrapping the cause, got %v", err)
	}
}

func TestCrashIsRelaunched(t *testing.T) {
	first, second := newFakeChild(101), newFakeChild(102)
	first.exit()
	second.exit()
	events := &recordingEvents{}
	l := &fakeLauncher{children: []*fakeChild{first, second}}
	s := New(fastOptions(), Deps{Launcher: l, Events: events})

	err := runWithTimeout(t, s)
	if !errors.Is(err, ErrLaunch) {
		t.Fatalf("expected launch error after children ran out, got %v", err)
	}
	want := "start,restart:crash,start,restart:crash"
	if got := strings.Join(events.kinds(), ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
	if l.launched != 2 {
		t.Fatalf("launched %d children, want 2", l.launched)
	}
}

func TestRoutineRestartThroughConsole(t *testing.T) {
	child := newFakeChild(7)
	con := &fakeConsole{}
	con.onExec = func(cmd string) {
		if strings.HasPrefix(cmd, "restart") {
			child.exit()
		}
	}
	events := &recordingEvents{}
	opts := fastOptions()
	opts.RestartInterval = 20 * time.Millisecond
	opts.RestartTimeout = 3 * time.Second
	s := New(opts, Deps{Launcher: &fakeLauncher{children: []*fakeChild{child}}, Console: con, Events: events})

	_ = runWithTimeout(t, s)
	if got := con.sent(); len(got) != 1 || got[0] != "restart 3" {
		t.Fatalf("console commands = %v", got)
	}
	if got := events.kinds(); len(got) < 2 || got[1] != "restart:routine" {
		t.Fatalf("events = %v", got)
	}
	if child.stops.Load() != 0 {
		t.Fatalf("child should have exited without a force stop")
	}
}

func TestIgnoredRestartIsForceStopped(t *testing.T) {
	child := newFakeChild(8)
	con := &fakeConsole{}
	events := &recordingEvents{}
	opts := fastOptions()
	opts.RestartInterval = 10 * time.Millisecond
	s := New(opts, Deps{Launcher: &fakeLauncher{children: []*fakeChild{child}}, Console: con, Events: events})

	_ = runWithTimeout(t, s)
	if child.stops.Load() != 1 {
		t.Fatalf("expected one force stop, got %d", child.stops.Load())
	}
	if got := con.sent(); len(got) != 1 || got[0] != "restart 0" {
		t.Fatalf("restart must be issued once, got %v", got)
	}
	if got := events.kinds(); got[1] != "restart:routine" {
		t.Fatalf("events = %v", got)
	}
}

func TestDeadlockStopsChild(t *testing.T) {
	child := newFakeChild(9)
	con := &fakeConsole{}
	events := &recordingEvents{}
	var probes atomic.Int32
	wd := func(pid int) (Watchdog, error) {
		if pid != 9 {
			t.Errorf("probe built for pid %d", pid)
		}
		// not ready on the first tick
		if probes.Add(1) == 1 {
			return nil, errors.New("module not loaded")
		}
		return stalledProbe(true), nil
	}
	s := New(fastOptions(), Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Console:  con,
		Events:   events,
		Watchdog: wd,
	})

	_ = runWithTimeout(t, s)
	if probes.Load() != 2 {
		t.Fatalf("expected the probe to be retried once, built %d times", probes.Load())
	}
	if child.stops.Load() != 1 {
		t.Fatalf("expected force stop, got %d", child.stops.Load())
	}
	if len(con.sent()) != 0 {
		t.Fatalf("deadlock must not send console commands: %v", con.sent())
	}
	if got := events.kinds(); got[1] != "restart:deadlock" {
		t.Fatalf("events = %v", got)
	}
}

func TestHealthyProbeLeavesChildAlone(t *testing.T) {
	child := newFakeChild(10)
	wd := func(int) (Watchdog, error) { return stalledProbe(false), nil }
	s := New(fastOptions(), Deps{Launcher: &fakeLauncher{children: []*fakeChild{child}}, Watchdog: wd})

	go func() {
		time.Sleep(40 * time.Millisecond)
		child.exit()
	}()
	events := &recordingEvents{}
	s.events = events
	_ = runWithTimeout(t, s)
	if child.stops.Load() != 0 {
		t.Fatalf("healthy child was stopped")
	}
	if got := events.kinds(); got[1] != "restart:crash" {
		t.Fatalf("events = %v", got)
	}
}

func TestCancelLeavesChildRunning(t *testing.T) {
	child := newFakeChild(11)
	s := New(fastOptions(), Deps{Launcher: &fakeLauncher{children: []*fakeChild{child}}})
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run returned %v on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	select {
	case <-child.Done():
		t.Fatalf("child should still be running")
	default:
	}
	if child.stops.Load() != 0 {
		t.Fatalf("child was stopped on cancel")
	}
}

func TestReportsNeedConsole(t *testing.T) {
	child := newFakeChild(12)
	con := &fakeConsole{}
	opts := fastOptions()
	opts.ReportGames = time.Millisecond
	s := New(opts, Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Console:  con,
		Data:     dataSink{},
	})
	go func() {
		time.Sleep(30 * time.Millisecond)
		child.exit()
	}()
	_ = runWithTimeout(t, s)
	sent := con.sent()
	if len(sent) == 0 || sent[0] != "gl" {
		t.Fatalf("expected games queries, got %v", sent)
	}
}

type dataSink struct{}

func (dataSink) PublishData(context.Context, telemetry.Data) {}

func TestUptimeLimit(t *testing.T) {
	start := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	nightly, err := cron.ParseStandard("0 4 * * *")
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name     string
		interval time.Duration
		sched    cron.Schedule
		want     time.Time
	}{
		{"none", 0, nil, time.Time{}},
		{"interval", 4 * time.Hour, nil, start.Add(4 * time.Hour)},
		{"schedule earlier", 4 * time.Hour, nightly, start.Add(time.Hour)},
		{"interval earlier", 30 * time.Minute, nightly, start.Add(30 * time.Minute)},
		{"schedule only", 0, nightly, start.Add(time.Hour)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := New(Options{RestartInterval: c.interval, RestartSchedule: c.sched}, Deps{})
			if got := s.uptimeLimit(start); !got.Equal(c.want) {
				t.Fatalf("uptimeLimit = %v, want %v", got, c.want)
			}
		})
	}
}

// clocked returns a supervisor whose clock is pinned to start and a launched
// session, so tests can drive ticks at exact times.
func clocked(t *testing.T, opts Options, deps Deps, start time.Time) (*Supervisor, *session) {
	t.Helper()
	s := New(opts, deps)
	s.now = func() time.Time { return start }
	sess, err := s.launch(context.Background())
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	return s, sess
}

var t0 = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func restartOptions() Options {
	opts := fastOptions()
	opts.RestartInterval = time.Minute
	opts.RestartTimeout = 30 * time.Second
	opts.RestartGrace = 30 * time.Second
	return opts
}

func TestForceStopWaitsForRestartGrace(t *testing.T) {
	child := newFakeChild(20)
	con := &fakeConsole{}
	s, sess := clocked(t, restartOptions(), Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Console:  con,
	}, t0)
	ctx := context.Background()

	s.tick(ctx, sess, t0.Add(59*time.Second))
	if len(con.sent()) != 0 {
		t.Fatalf("restart issued before the uptime limit: %v", con.sent())
	}
	issued := t0.Add(time.Minute)
	s.tick(ctx, sess, issued)
	if got := con.sent(); len(got) != 1 || got[0] != "restart 30" {
		t.Fatalf("console commands = %v", got)
	}

	for _, at := range []time.Duration{time.Second, 30 * time.Second, 59 * time.Second} {
		s.tick(ctx, sess, issued.Add(at))
		if n := child.stops.Load(); n != 0 {
			t.Fatalf("stopped %d time(s) at issued+%s, before the grace deadline", n, at)
		}
	}
	s.tick(ctx, sess, issued.Add(time.Minute))
	if n := child.stops.Load(); n != 1 {
		t.Fatalf("expected a force stop at the deadline, got %d", n)
	}
	if len(con.sent()) != 1 {
		t.Fatalf("restart must not be re-issued: %v", con.sent())
	}
}

func TestStallDuringRestartKeepsGraceDeadline(t *testing.T) {
	child := newFakeChild(21)
	con := &fakeConsole{}
	// the heartbeat stops once the server begins its countdown
	wd := func(int) (Watchdog, error) {
		return probeFunc(func() bool { return len(con.sent()) > 0 }), nil
	}
	s, sess := clocked(t, restartOptions(), Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Console:  con,
		Watchdog: wd,
	}, t0)
	ctx := context.Background()

	issued := t0.Add(time.Minute)
	s.tick(ctx, sess, issued)
	if !sess.pending || !sess.deadlock {
		t.Fatalf("expected pending restart and deadlock, got pending=%v deadlock=%v", sess.pending, sess.deadlock)
	}
	s.tick(ctx, sess, issued.Add(2500*time.Millisecond))
	s.tick(ctx, sess, issued.Add(59*time.Second))
	if n := child.stops.Load(); n != 0 {
		t.Fatalf("server killed during its restart countdown (%d stops)", n)
	}
	s.tick(ctx, sess, issued.Add(time.Minute))
	if n := child.stops.Load(); n != 1 {
		t.Fatalf("expected a force stop at the deadline, got %d", n)
	}
	if got := Classify(sess.pending, sess.deadlock); got != Routine {
		t.Fatalf("reason = %v, want routine", got)
	}
}

func TestFailedForceStopIsRetried(t *testing.T) {
	child := newFakeChild(22)
	child.failStops = 1
	s, sess := clocked(t, fastOptions(), Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Watchdog: func(int) (Watchdog, error) { return stalledProbe(true), nil },
	}, t0)
	ctx := context.Background()

	s.tick(ctx, sess, t0.Add(time.Second))
	if !sess.deadlock {
		t.Fatalf("deadlock not flagged")
	}
	s.tick(ctx, sess, t0.Add(2*time.Second))
	if n := child.stops.Load(); n != 1 || gone(child) {
		t.Fatalf("first stop should fail and leave the child running (stops=%d)", n)
	}
	s.tick(ctx, sess, t0.Add(3*time.Second))
	if n := child.stops.Load(); n != 2 || !gone(child) {
		t.Fatalf("stop was not retried (stops=%d)", n)
	}
	s.tick(ctx, sess, t0.Add(4*time.Second))
	if n := child.stops.Load(); n != 2 {
		t.Fatalf("exited child stopped again (stops=%d)", n)
	}
}

func TestMissingModuleStopsProbing(t *testing.T) {
	child := newFakeChild(23)
	var calls int
	s, sess := clocked(t, fastOptions(), Deps{
		Launcher: &fakeLauncher{children: []*fakeChild{child}},
		Watchdog: func(int) (Watchdog, error) {
			calls++
			return nil, errors.New("module not loaded")
		},
	}, t0)
	for i := 1; i <= 3*maxProbeAttempts; i++ {
		s.tick(context.Background(), sess, t0.Add(time.Duration(i)*time.Second))
	}
	if calls != maxProbeAttempts {
		t.Fatalf("probe built %d times, want %d", calls, maxProbeAttempts)
	}
	if sess.deadlock {
		t.Fatalf("no probe, no deadlock")
	}
}

type statusChild struct {
	*fakeChild
	st process.Status
}

func (c statusChild) Snapshot() process.Status { return c.st }

func TestExitUsesChildStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	child := statusChild{
		fakeChild: newFakeChild(24),
		st: process.Status{
			PID:       24,
			StartedAt: t0,
			StoppedAt: t0.Add(90 * time.Second),
			ExitErr:   errors.New("exit status 3"),
		},
	}
	s := New(fastOptions(), Deps{Logger: log})
	s.now = func() time.Time { return t0.Add(time.Hour) }
	sess := &session{child: child, pid: 24, start: t0}

	s.exited(context.Background(), sess)
	out := buf.String()
	for _, want := range []string{"reason=crash", `exit="exit status 3"`, "uptime=1m30s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q is missing %q", out, want)
		}
	}
}
