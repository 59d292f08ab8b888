package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func readPID(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("pid file content %q: %v", data, err)
	}
	return pid
}

func TestAcquireRecordsOwnPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer lock.Release()

	if got := readPID(t, path); got != os.Getpid() {
		t.Errorf("recorded pid %d, want %d", got, os.Getpid())
	}
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer lock.Release()

	// The file now names this very process, which is certainly alive.
	if _, err := Acquire(path); err == nil {
		t.Fatal("second Acquire succeeded against a live owner")
	} else if !strings.Contains(err.Error(), "already running") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAcquireReplacesStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	if err := os.WriteFile(path, []byte("999999\n"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over stale lock: %v", err)
	}
	defer lock.Release()

	if got := readPID(t, path); got != os.Getpid() {
		t.Errorf("recorded pid %d, want %d", got, os.Getpid())
	}
}

func TestAcquireIgnoresMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")
	if err := os.WriteFile(path, []byte("not a pid"), 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire over malformed file: %v", err)
	}
	defer lock.Release()

	if got := readPID(t, path); got != os.Getpid() {
		t.Errorf("recorded pid %d, want %d", got, os.Getpid())
	}
}

func TestReleaseRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file still present after Release")
	}
}

func TestReleaseLeavesForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch.pid")

	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Another instance took the file over after this one crashed and came
	// back; releasing the old lock must not pull it out from under them.
	other := os.Getpid() + 1
	if err := os.WriteFile(path, []byte(strconv.Itoa(other)+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := readPID(t, path); got != other {
		t.Errorf("foreign pid file modified: got %d, want %d", got, other)
	}
}

func TestReleaseNilLock(t *testing.T) {
	var lock *Lock
	if err := lock.Release(); err != nil {
		t.Errorf("Release on nil lock: %v", err)
	}
}

func TestPath(t *testing.T) {
	want := filepath.Join(os.Getenv("HOME"), ".cache", "echotrim", "watch.pid")
	if got := Path("watch"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestAlive(t *testing.T) {
	if !alive(os.Getpid()) {
		t.Error("own process reported dead")
	}
	if alive(999999) {
		t.Error("bogus pid reported alive")
	}
}
