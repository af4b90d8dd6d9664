package wal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
	"github.com/sajjad-MoBe/logkv/internal/shared"
)

// Appender is the write side of the main log
type Appender interface {
	Append(text string) (int64, error)
}

// Sizer reports the current size of the main log
type Sizer interface {
	Size() (int64, error)
}

// Options contains configuration for a Writer
type Options struct {
	Sync    bool // fsync after every append
	Logger  *shared.Logger
	Metrics *shared.Metrics
}

// Writer appends newline-terminated text to a shared log file. Each
// append opens the file, takes an exclusive advisory lock, writes at the
// current end of file and releases the lock, so cooperating processes
// never interleave partial lines.
type Writer struct {
	mu      sync.Mutex
	path    string
	sync    bool
	lastEnd int64
	logger  *shared.Logger
	metrics *shared.Metrics
}

// NewWriter creates the log file (and its directory) if missing
func NewWriter(path string, opts Options) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, kverrors.IO("failed to create log directory", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, kverrors.IO("failed to create log file", err)
	}
	if err := file.Close(); err != nil {
		return nil, kverrors.IO("failed to close log file", err)
	}

	if opts.Logger == nil {
		opts.Logger = shared.DefaultLogger
	}
	if opts.Metrics == nil {
		opts.Metrics = shared.NewMetrics(nil)
	}

	return &Writer{
		path:    path,
		sync:    opts.Sync,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Path returns the log file path
func (w *Writer) Path() string {
	return w.path
}

// Append writes text plus a line terminator under an exclusive file lock
// and returns the file offset just past the written bytes. A torn final
// line is terminated first so text always starts a fresh line.
func (w *Writer) Append(text string) (end int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	defer func() {
		if err != nil {
			w.metrics.RecordWALError("append")
		}
	}()

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return 0, kverrors.IO("failed to open log for append", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(file))

	if err := lockFile(file); err != nil {
		return 0, kverrors.IO("failed to lock log", err)
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(func() error { return unlockFile(file) }))

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, kverrors.IO("failed to seek to end of log", err)
	}

	data := []byte(text + "\n")
	if offset > 0 {
		// no cooperating writer holds the lock, so a missing terminator
		// is left over from a crashed append
		last := make([]byte, 1)
		if _, err := file.ReadAt(last, offset-1); err != nil {
			return 0, kverrors.IO("failed to read end of log", err)
		}
		if last[0] != '\n' {
			w.logger.Warn("terminating unfinished last line of %s", w.path)
			data = append([]byte{'\n'}, data...)
		}
	}

	n, err := file.Write(data)
	if err != nil {
		return 0, kverrors.IO("failed to write to log", err)
	}

	if w.sync {
		if err := file.Sync(); err != nil {
			return 0, kverrors.IO("failed to sync log", err)
		}
	}

	w.lastEnd = offset + int64(n)
	w.metrics.RecordAppend(n, time.Since(start))
	w.logger.Debug("appended %d bytes to %s at offset %d", n, w.path, offset)

	return w.lastEnd, nil
}

// LastEnd returns the offset just past this writer's most recent append
func (w *Writer) LastEnd() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastEnd
}

// Size returns the current length of the log file. Appends only ever
// land at or beyond it.
func (w *Writer) Size() (int64, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return 0, kverrors.IO("failed to stat log", err)
	}
	return info.Size(), nil
}

// Replay calls fn for every complete line of the log in file order.
func (w *Writer) Replay(fn func(line string) error) (ScanResult, error) {
	return Scan(w.path, fn)
}

// ScanResult describes what Scan consumed
type ScanResult struct {
	Lines  int    // complete non-empty lines passed to fn
	Offset int64  // offset just past the last complete line
	Torn   string // trailing text without a terminator, if any
}

// Scan reads path line by line and calls fn for each complete, non-empty
// line with any trailing "\r" removed. A final line without terminator is
// not passed to fn; it is returned in ScanResult.Torn.
func Scan(path string, fn func(line string) error) (ScanResult, error) {
	var res ScanResult

	file, err := os.Open(path)
	if err != nil {
		return res, kverrors.IO("failed to open "+path, err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		raw, err := reader.ReadString('\n')
		if err == io.EOF {
			res.Torn = raw
			return res, nil
		}
		if err != nil {
			return res, kverrors.IO("failed to read "+path, err)
		}

		res.Offset += int64(len(raw))
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return res, err
		}
		res.Lines++
	}
}
