package diaglog

import (
	"os"
	"sync"
)

// capWriter appends to a single file and starts it over when the next write
// would push it past the cap. The tail always holds the most recent entries,
// which is the part that matters when a run has to be reconstructed.
type capWriter struct {
	mu   sync.Mutex
	f    *os.File
	size int64
	cap  int64
}

// openCapWriter opens path for appending, creating it if needed.
func openCapWriter(path string, cap int64) (*capWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &capWriter{f: f, size: info.Size(), cap: cap}, nil
}

// Write appends p, emptying the file first when the cap would be exceeded.
// Every entry is synced to disk before Write returns.
func (w *capWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.cap {
		if err := w.restart(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = w.f.Sync()
	return n, nil
}

func (w *capWriter) restart() error {
	if err := w.f.Truncate(0); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, 0); err != nil {
		return err
	}
	w.size = 0
	return nil
}

func (w *capWriter) close() error {
	_ = w.f.Sync()
	return w.f.Close()
}
