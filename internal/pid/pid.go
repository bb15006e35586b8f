// Package pid guards against two instances driving the same camera.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
)

const (
	DefaultFile = "hydrocam.pid"
	filePerm    = 0o600
	dirPerm     = 0o755
)

// DefaultPath returns the PID file location used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), DefaultFile)
}

// Write records the current process ID at path. It fails with
// ErrAlreadyRunning when the file names a live process other than this one.
// Stale or unreadable PID files are replaced.
func Write(path string) error {
	errFactory := errors.New()
	self := os.Getpid()

	if other, ok := readPID(path); ok && other != self && alive(other) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{
			Path: path,
			PID:  other,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(self)), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	return nil
}

// Remove deletes the PID file if it exists.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
