//go:build !windows

package process

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/gsmon/internal/logger"
)

func shSpec(script string) Spec {
	return Spec{Name: "gs", Path: "/bin/sh", Args: []string{"-c", script}}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
}

func TestStartAndExitStatus(t *testing.T) {
	p, err := Start(shSpec("exit 3"))
	require.NoError(t, err)
	assert.Greater(t, p.PID(), 0)

	waitDone(t, p)
	st := p.Snapshot()
	assert.False(t, st.Running)
	assert.Error(t, st.ExitErr)
	assert.False(t, st.StoppedAt.Before(st.StartedAt))
	assert.True(t, p.Exited())
}

func TestStopGracefully(t *testing.T) {
	p, err := Start(shSpec("sleep 30"))
	require.NoError(t, err)
	assert.False(t, p.Exited())

	start := time.Now()
	_ = p.Stop(5 * time.Second)
	assert.True(t, p.Exited())
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestStopEscalatesToKill(t *testing.T) {
	p, err := Start(shSpec(`trap "" TERM; while :; do sleep 0.05; done`))
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	_ = p.Stop(300 * time.Millisecond)
	assert.True(t, p.Exited())
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestStopAfterExitIsNoop(t *testing.T) {
	p, err := Start(shSpec("exit 0"))
	require.NoError(t, err)
	waitDone(t, p)
	assert.NoError(t, p.Stop(time.Second))
	assert.NoError(t, p.Kill())
}

func TestOutputCapturedToRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	s := shSpec("echo hello; echo oops 1>&2")
	s.Log = logger.Config{File: logger.FileConfig{Dir: dir}}

	p, err := Start(s)
	require.NoError(t, err)
	waitDone(t, p)

	out, err := os.ReadFile(filepath.Join(dir, "gs.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
	errOut, err := os.ReadFile(filepath.Join(dir, "gs.stderr.log"))
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(errOut))
}

func TestUptime(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Zero(t, Status{}.Uptime(t0))
	assert.Equal(t, time.Minute, Status{Running: true, StartedAt: t0}.Uptime(t0.Add(time.Minute)))
	assert.Equal(t, 2*time.Second, Status{StartedAt: t0, StoppedAt: t0.Add(2 * time.Second)}.Uptime(t0.Add(time.Hour)))
}
