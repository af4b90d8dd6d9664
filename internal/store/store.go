package store

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/sajjad-MoBe/logkv/internal/command"
	"github.com/sajjad-MoBe/logkv/internal/config"
	"github.com/sajjad-MoBe/logkv/internal/shared"
	"github.com/sajjad-MoBe/logkv/internal/storage"
	"github.com/sajjad-MoBe/logkv/internal/txn"
	"github.com/sajjad-MoBe/logkv/internal/wal"
)

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used by the store and its components
func WithLogger(l *shared.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *shared.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithTracer sets the tracer used for commit and recovery spans
func WithTracer(t *shared.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// Store is the engine behind the line protocol: an ordered in-memory
// table rebuilt from the main log, a single optional open transaction
// and an optional watcher that folds in lines appended by other
// processes. All methods are safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	table *storage.Table
	txn   *txn.Manager
	// seen is the main log offset already reflected in the table
	seen int64

	wal     *wal.Writer
	ledger  *txn.Ledger
	redo    *txn.RedoLog
	watcher *Watcher

	logger  *shared.Logger
	metrics *shared.Metrics
	tracer  *shared.Tracer

	closeOnce sync.Once
}

// Open creates the log files if needed, rebuilds the table from disk and
// starts the watcher when cfg.Watch is set.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		table: storage.NewTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = shared.DefaultLogger
	}
	if s.metrics == nil {
		s.metrics = shared.NewMetrics(nil)
	}
	if s.tracer == nil {
		s.tracer = shared.NewTracer("logkv", nil)
	}

	w, err := wal.NewWriter(cfg.LogFile, wal.Options{
		Sync:    cfg.Sync,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, err
	}
	s.wal = w

	s.ledger, err = txn.NewLedger(cfg.Dir(), cfg.Prefix)
	if err != nil {
		return nil, err
	}
	s.redo = txn.NewRedoLog(cfg.Dir(), cfg.Prefix)
	s.txn = txn.NewManager(txn.Options{
		Ledger:          s.ledger,
		Redo:            s.redo,
		WAL:             s.wal,
		ReverseRollback: cfg.RollbackOrder == config.RollbackReverse,
		Logger:          s.logger,
		Metrics:         s.metrics,
		Tracer:          s.tracer,
	})

	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}

	if cfg.Watch {
		s.watcher, err = NewWatcher(cfg.LogFile, s, WatcherOptions{
			RetryTimeout: cfg.TailRetryTimeout,
			Logger:       s.logger.WithFields(map[string]interface{}{"component": "watcher"}),
			Metrics:      s.metrics,
		})
		if err != nil {
			return nil, err
		}
		s.watcher.Start()
	}

	return s, nil
}

// Get returns the current value of key, including uncommitted writes
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Get(key)
}

// Len returns the number of live keys
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Len()
}

// InTransaction reports whether a transaction is open
func (s *Store) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txn.Active()
}

// Range calls fn for every key in ascending order until fn returns false.
// The store is locked for the duration of the walk.
func (s *Store) Range(fn func(key, value string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.Ascend(fn)
}

// Ingest applies a line some writer appended to the main log, ending at
// offset end. Lines at or below the seen offset are already reflected in
// the table and are skipped; a gap before the line is read from disk so
// batched appends are not lost. A log that shrank below the seen offset
// was truncated or replaced and is read again from its start.
func (s *Store) Ingest(line string, end int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if end <= s.seen {
		if end < s.seen && s.shrunk() {
			s.restart()
			return s.catchUp(end)
		}
		s.metrics.RecordSkip("seen")
		return nil
	}

	start := end - int64(len(line)) - 1
	if start != s.seen {
		return s.catchUp(end)
	}

	cmd, err := command.ParseEntry(line)
	s.seen = end
	if err != nil {
		s.metrics.RecordSkip("malformed")
		return err
	}
	s.table.Apply(cmd)
	s.metrics.RecordIngest()
	s.metrics.SetTableKeys(s.table.Len())
	return nil
}

// shrunk reports whether the main log is now shorter than the seen offset
func (s *Store) shrunk() bool {
	size, err := s.wal.Size()
	if err != nil {
		s.logger.Warn("failed to stat %s: %v", s.wal.Path(), err)
		return false
	}
	return size < s.seen
}

// restart rewinds seen to the start of a log that was truncated or
// replaced. Keys already in the table stay; lines of the new file are
// applied over them.
func (s *Store) restart() {
	s.logger.Warn("%s shrank below offset %d, it was truncated or replaced; reading it from the start", s.wal.Path(), s.seen)
	s.metrics.RecordSkip("truncated")
	s.seen = 0
}

// catchUp applies the complete lines in [seen, to) of the main log and
// advances seen to to. Malformed lines are skipped.
func (s *Store) catchUp(to int64) error {
	lines, err := wal.ReadRange(s.wal.Path(), s.seen, to)
	if err != nil {
		return err
	}
	s.seen = to

	var skipped int
	for _, line := range lines {
		cmd, err := command.ParseEntry(line)
		if err != nil {
			skipped++
			continue
		}
		s.table.Apply(cmd)
		s.metrics.RecordIngest()
	}
	if skipped > 0 {
		s.metrics.RecordSkip("malformed")
		s.logger.Warn("skipped %d malformed lines while catching up on %s", skipped, s.wal.Path())
	}
	s.metrics.SetTableKeys(s.table.Len())
	return nil
}

// Close stops the watcher. An open transaction is discarded without
// rollback; its writes were never made durable.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			err = multierr.Append(err, s.watcher.Close())
		}

		s.mu.Lock()
		if s.txn.Active() {
			s.logger.Warn("closing with an open transaction, %d buffered writes discarded", len(s.txn.Buffered()))
		}
		s.mu.Unlock()
	})
	return err
}
