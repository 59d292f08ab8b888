// Package pidfile guards the watch daemon against duplicate instances. Two
// schedulers compressing the same recordings root would race each other's
// temporary files.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Lock is a held single-instance lock backed by a pid file.
type Lock struct {
	path string
	pid  int
}

// Path returns the conventional pid file location for the named daemon.
func Path(daemon string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "echotrim", daemon+".pid")
}

// Acquire takes the lock at path by recording the current pid. It fails when
// the file names a live process; a leftover file from a dead process is
// cleared and the lock taken.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("pidfile: create directory: %w", err)
	}

	if owner, ok := currentOwner(path); ok {
		if alive(owner) {
			return nil, fmt.Errorf("pidfile: already running as pid %d", owner)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("pidfile: clear stale lock: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("pidfile: write: %w", err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Release removes the pid file, but only while this process still owns it.
// A file taken over by another instance is left alone.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if owner, ok := currentOwner(l.path); !ok || owner != l.pid {
		return nil
	}
	return os.Remove(l.path)
}

// currentOwner reads the pid recorded at path. A missing or malformed file
// has no owner.
func currentOwner(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// alive reports whether pid names a running process. Signal 0 probes without
// delivering anything; EPERM still means the process exists.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	switch proc.Signal(syscall.Signal(0)) {
	case nil, syscall.EPERM:
		return true
	default:
		return false
	}
}
