package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileLog appends timestamped diagnostic records to a plain text file. It is
// strictly best-effort: every failure is swallowed, so a missing directory or
// a full disk never affects request handling. A nil or pathless FileLog is a
// no-op.
type FileLog struct {
	mu   sync.Mutex
	path string
}

func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

// Append writes one record: a UTC timestamp header followed by the line.
func (l *FileLog) Append(line string) {
	if l == nil || l.path == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(f, "=== %s ===\n%s\n\n", ts, line)
}

// Tail returns up to maxBytes of the most recent log content. A nil or
// pathless FileLog reports os.ErrNotExist.
func (l *FileLog) Tail(maxBytes int64) (string, error) {
	if l == nil || l.path == "" {
		return "", os.ErrNotExist
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	var offset int64
	if info.Size() > maxBytes {
		offset = info.Size() - maxBytes
	}

	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return "", err
	}
	return string(buf), nil
}
