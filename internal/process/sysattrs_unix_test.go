//go:build !windows

package process

import (
	"os/exec"
	"testing"
)

// checkSysProcAttrs expects the child in its own process group so that
// terminate reaches its descendants too.
func checkSysProcAttrs(t *testing.T, cmd *exec.Cmd) {
	t.Helper()
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("child is not placed in its own process group")
	}
}
