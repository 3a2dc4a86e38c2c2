package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/loykin/gsmon/internal/logger"
)

var ErrExecutableNotFound = errors.New("process: executable not found")

// Spec describes the child to launch.
type Spec struct {
	Name    string        `json:"name"`
	Path    string        `json:"path"`     // executable, relative paths resolve against the monitor's cwd
	Args    []string      `json:"args"`     // optional arguments
	WorkDir string        `json:"work_dir"` // defaults to the executable's directory
	Env     []string      `json:"env"`      // appended to the monitor's environment
	Log     logger.Config `json:"log"`      // stdout/stderr capture
}

// Resolve returns the absolute executable path and the working directory.
// A missing executable or a directory wraps ErrExecutableNotFound.
func (s *Spec) Resolve() (path, dir string, err error) {
	if s.Path == "" {
		return "", "", fmt.Errorf("%w: no path configured", ErrExecutableNotFound)
	}
	path, err = filepath.Abs(s.Path)
	if err != nil {
		return "", "", err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s", ErrExecutableNotFound, path)
	}
	if fi.IsDir() {
		return "", "", fmt.Errorf("%w: %s is a directory", ErrExecutableNotFound, path)
	}
	dir = s.WorkDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	return path, dir, nil
}

// BuildCommand constructs the *exec.Cmd for the spec. No shell is involved;
// arguments are passed as given.
func (s *Spec) BuildCommand() (*exec.Cmd, error) {
	path, dir, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	// #nosec G204 -- the executable comes from the operator's config
	cmd := exec.Command(path, s.Args...)
	cmd.Dir = dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	configureSysProcAttr(cmd)
	return cmd, nil
}
