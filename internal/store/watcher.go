package store

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/sajjad-MoBe/logkv/internal/shared"
	"github.com/sajjad-MoBe/logkv/internal/wal"
)

// Sink receives the last complete line of the watched log and the file
// offset it ends at.
type Sink interface {
	Ingest(line string, end int64) error
}

// WatcherOptions contains configuration for a Watcher
type WatcherOptions struct {
	// RetryTimeout bounds how long an unterminated last line is retried
	// before the event is dropped. Zero disables retries.
	RetryTimeout time.Duration
	Logger       *shared.Logger
	Metrics      *shared.Metrics
}

// Watcher follows the directory of the main log and hands the last line
// of the log to its sink after every modification.
type Watcher struct {
	path string
	name string
	sink Sink
	fsw  *fsnotify.Watcher

	retryTimeout time.Duration
	logger       *shared.Logger
	metrics      *shared.Metrics

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher subscribes to change events of the directory holding path.
// Call Start to begin delivering lines.
func NewWatcher(path string, sink Sink, opts WatcherOptions) (*Watcher, error) {
	if opts.Logger == nil {
		opts.Logger = shared.DefaultLogger
	}
	if opts.Metrics == nil {
		opts.Metrics = shared.NewMetrics(nil)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:         abs,
		name:         filepath.Base(abs),
		sink:         sink,
		fsw:          fsw,
		retryTimeout: opts.RetryTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		done:         make(chan struct{}),
	}, nil
}

// Start runs the event loop in a background goroutine
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Debug("watching %s", w.path)
}

// Close stops the event loop and waits for it to exit
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error on %s: %v", w.path, err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.name {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	w.metrics.RecordWatcherEvent()

	line, end, err := w.readTail()
	if err != nil {
		if errors.Is(err, wal.ErrIncompleteLine) {
			w.metrics.RecordSkip("incomplete")
			w.logger.Warn("dropping change of %s, last line still unterminated after %s", w.path, w.retryTimeout)
		} else {
			w.metrics.RecordSkip("read_error")
			w.logger.Warn("failed to read tail of %s: %v", w.path, err)
		}
		return
	}
	if line == "" {
		return
	}

	if err := w.sink.Ingest(line, end); err != nil {
		w.logger.Warn("failed to ingest %q: %v", line, err)
	}
}

// readTail reads the last complete line, retrying with exponential
// backoff while a writer is mid-append.
func (w *Watcher) readTail() (string, int64, error) {
	var (
		line string
		end  int64
	)
	operation := func() error {
		l, size, err := wal.LastLine(w.path)
		if errors.Is(err, wal.ErrIncompleteLine) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		line, end = l, size
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if w.retryTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 5 * time.Millisecond
		eb.MaxInterval = 100 * time.Millisecond
		eb.MaxElapsedTime = w.retryTimeout
		b = eb
	}

	err := backoff.RetryNotify(operation, b, func(err error, wait time.Duration) {
		w.metrics.RecordTailRetry()
		w.logger.Debug("tail of %s not ready, retrying in %s", w.path, wait)
	})
	return line, end, err
}
