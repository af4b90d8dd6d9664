package txn

import (
	"context"
	"fmt"

	"github.com/sajjad-MoBe/logkv/internal/command"
	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
	"github.com/sajjad-MoBe/logkv/internal/shared"
	"github.com/sajjad-MoBe/logkv/internal/wal"
)

// State of the transaction manager
type State int

const (
	Idle State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "idle"
}

// Options contains the collaborators of a Manager
type Options struct {
	Ledger          *Ledger
	Redo            *RedoLog
	WAL             wal.Appender
	ReverseRollback bool // replay undo entries newest first
	Logger          *shared.Logger
	Metrics         *shared.Metrics
	Tracer          *shared.Tracer
}

// Manager owns BEGIN/COMMIT/ROLLBACK semantics and the undo/redo buffers
// of the single open transaction. It is not synchronized; the store
// serializes access together with the table.
type Manager struct {
	state State
	undo  []command.Command
	redo  []command.Command

	ledger  *Ledger
	redoLog *RedoLog
	wal     wal.Appender
	reverse bool

	logger  *shared.Logger
	metrics *shared.Metrics
	tracer  *shared.Tracer
}

// NewManager creates an idle transaction manager
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = shared.DefaultLogger
	}
	if opts.Metrics == nil {
		opts.Metrics = shared.NewMetrics(nil)
	}
	if opts.Tracer == nil {
		opts.Tracer = shared.NewTracer("logkv", nil)
	}

	return &Manager{
		ledger:  opts.Ledger,
		redoLog: opts.Redo,
		wal:     opts.WAL,
		reverse: opts.ReverseRollback,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
}

// State returns the current state
func (m *Manager) State() State {
	return m.state
}

// Active reports whether a transaction is open
func (m *Manager) Active() bool {
	return m.state == Open
}

// Buffered returns a copy of the redo entries recorded so far
func (m *Manager) Buffered() []command.Command {
	out := make([]command.Command, len(m.redo))
	copy(out, m.redo)
	return out
}

// Begin opens a transaction, discarding any stale buffers
func (m *Manager) Begin() error {
	if m.state == Open {
		return kverrors.NestedTransaction()
	}
	m.reset()
	m.state = Open
	return nil
}

// Undo builds the entry that restores key to its pre-image: SET with the
// previous value when the key existed, DEL when it did not.
func Undo(cmd command.Command, prev string, existed bool) (command.Command, error) {
	switch cmd.Op {
	case command.OpSet, command.OpDel:
		if existed {
			return command.Set(cmd.Key, prev), nil
		}
		return command.Del(cmd.Key), nil
	default:
		return command.Command{}, kverrors.New(kverrors.ErrorTypeInternal, fmt.Sprintf("%s has no undo entry", cmd.Op), nil)
	}
}

// Record buffers a transactional write given the key's pre-image. The
// caller applies cmd to the table once Record succeeds.
func (m *Manager) Record(cmd command.Command, prev string, existed bool) error {
	if m.state != Open {
		return kverrors.NoTransaction()
	}
	undo, err := Undo(cmd, prev, existed)
	if err != nil {
		return err
	}
	m.undo = append(m.undo, undo)
	m.redo = append(m.redo, cmd)
	return nil
}

// Rollback applies every undo entry through apply and closes the
// transaction. Entries are replayed in recording order unless the
// manager was built with ReverseRollback.
func (m *Manager) Rollback(apply func(command.Command)) error {
	if m.state != Open {
		return kverrors.NoTransaction()
	}

	if m.reverse {
		for i := len(m.undo) - 1; i >= 0; i-- {
			apply(m.undo[i])
		}
	} else {
		for _, entry := range m.undo {
			apply(entry)
		}
	}

	m.logger.Debug("rolled back transaction with %d undo entries", len(m.undo))
	m.reset()
	m.state = Idle
	m.metrics.RecordTransaction("rollback")
	return nil
}

// Commit makes the buffered writes durable: it writes the redo file for
// ledger+1 stamped with the current log size, appends the batch to the
// main log and advances the ledger.
//
// If the redo file or the main log append fails the transaction stays
// open with its buffers intact and nothing durable changes. If only the
// ledger update fails the writes are already in the main log, so the
// transaction is closed and the error returned; recovery finds the redo
// file pending and advances the ledger.
func (m *Manager) Commit(ctx context.Context) (uint64, error) {
	if m.state != Open {
		return 0, kverrors.NoTransaction()
	}
	if len(m.redo) == 0 {
		m.reset()
		m.state = Idle
		m.metrics.RecordTransaction("commit")
		return 0, nil
	}

	var (
		id       uint64
		appended bool
	)
	err := m.tracer.TraceStorageOperation(ctx, "commit", func(ctx context.Context) error {
		last, err := m.ledger.Read()
		if err != nil {
			return err
		}
		id = last + 1

		offset, err := m.logSize()
		if err != nil {
			return err
		}
		if err := m.redoLog.Write(id, offset, m.redo); err != nil {
			return err
		}
		if _, err := m.wal.Append(command.Join(m.redo)); err != nil {
			if rmErr := m.redoLog.Remove(id); rmErr != nil {
				m.logger.Error("failed to remove redo file of failed transaction %d: %v", id, rmErr)
			}
			return err
		}
		appended = true

		return m.ledger.Write(id)
	})

	if !appended {
		m.metrics.RecordTransaction("failed")
		m.logger.Warn("commit failed, transaction kept open: %v", err)
		return 0, err
	}

	m.logger.Debug("committed transaction %d with %d entries", id, len(m.redo))
	m.reset()
	m.state = Idle
	m.metrics.RecordTransaction("commit")
	if err != nil {
		m.logger.Error("transaction %d committed but ledger not advanced: %v", id, err)
	}
	return id, err
}

// logSize returns the main log size before the batch is appended, or -1
// if the appender cannot tell. Recovery only looks for the batch past it.
func (m *Manager) logSize() (int64, error) {
	sizer, ok := m.wal.(wal.Sizer)
	if !ok {
		return -1, nil
	}
	return sizer.Size()
}

func (m *Manager) reset() {
	m.undo = nil
	m.redo = nil
}
