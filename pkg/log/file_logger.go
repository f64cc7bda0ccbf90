package log

import (
	"os"
	"sync"

	"go.uber.org/multierr"
)

// RotatedSuffix is appended to the log path when a full file is rotated out.
const RotatedSuffix = ".1"

// FileOption configures a FileLogger.
type FileOption func(*FileLogger)

// WithMaxSize starts a new file once the current one would grow past n
// bytes. The full file is renamed to path+RotatedSuffix, replacing an older
// rotation. Zero disables rotation.
func WithMaxSize(n int64) FileOption {
	return func(l *FileLogger) {
		l.maxSize = n
	}
}

// FileStats counts the work of a FileLogger.
type FileStats struct {
	Events    uint64 // records written since open
	Bytes     int64  // size of the current file
	Rotations int
	Errors    uint64 // records lost to encode, write or rotation failures
}

// FileLogger appends protocol events to a .dlog file as a stream of CBOR
// records. It is safe for concurrent use.
type FileLogger struct {
	path    string
	maxSize int64

	mu     sync.Mutex
	file   *os.File
	stats  FileStats
	closed bool
}

// NewFileLogger opens path for appending, creating it if needed.
func NewFileLogger(path string, opts ...FileOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return multierr.Append(err, f.Close())
	}
	l.file = f
	l.stats.Bytes = info.Size()
	return nil
}

// Path returns the file events are written to.
func (l *FileLogger) Path() string {
	return l.path
}

// Log appends event. Failures are counted in Stats, never returned.
func (l *FileLogger) Log(event Event) {
	rec, err := EncodeEvent(event)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err != nil {
		l.stats.Errors++
		return
	}

	if l.file == nil || (l.maxSize > 0 && l.stats.Bytes > 0 && l.stats.Bytes+int64(len(rec)) > l.maxSize) {
		if err := l.rotate(); err != nil {
			l.stats.Errors++
			return
		}
	}

	n, err := l.file.Write(rec)
	l.stats.Bytes += int64(n)
	if err != nil {
		l.stats.Errors++
		return
	}
	l.stats.Events++
}

// rotate moves the current file aside and opens a fresh one. With no file
// open (an earlier rotation failed) it only reopens.
func (l *FileLogger) rotate() error {
	var err error
	if l.file != nil {
		err = l.file.Close()
		l.file = nil
		err = multierr.Append(err, os.Rename(l.path, l.path+RotatedSuffix))
		if err == nil {
			l.stats.Rotations++
		}
	}
	return multierr.Append(err, l.open())
}

// Stats returns a snapshot of the logger counters.
func (l *FileLogger) Stats() FileStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Close closes the file. Later calls to Log and Close do nothing.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
