package store

import (
	"context"
	"strings"

	"github.com/sajjad-MoBe/logkv/internal/command"
	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

// Protocol replies that are not errors.
const (
	RespOK = "OK!"
)

// Execute runs one protocol line and returns the reply text together with
// the error it was rendered from, if any. Errors never leave the store in
// a partially applied state.
func (s *Store) Execute(ctx context.Context, line string) (resp string, err error) {
	cmd, err := command.Parse(line)
	if err != nil {
		s.metrics.RecordCommand(keyword(line), result(err))
		return kverrors.Response(err), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = kverrors.RecoverError(r)
			resp = kverrors.Response(err)
			s.logger.Error("panic while executing %q: %v", line, r)
		}
		s.metrics.RecordCommand(string(cmd.Op), result(err))
	}()

	switch cmd.Op {
	case command.OpGet:
		resp, err = s.get(cmd)
	case command.OpSet:
		resp, err = s.write(ctx, cmd)
	case command.OpDel:
		resp, err = s.del(ctx, cmd)
	case command.OpBegin:
		err = s.txn.Begin()
	case command.OpCommit:
		err = s.commit(ctx)
	case command.OpRollback:
		err = s.txn.Rollback(s.table.Apply)
	}
	s.metrics.SetTableKeys(s.table.Len())

	if err != nil {
		return kverrors.Response(err), err
	}
	return resp, nil
}

// ExecuteCommand runs one protocol line and returns only the reply text
func (s *Store) ExecuteCommand(line string) string {
	resp, _ := s.Execute(context.Background(), line)
	return resp
}

func (s *Store) get(cmd command.Command) (string, error) {
	value, ok := s.table.Get(cmd.Key)
	if !ok {
		return "", kverrors.KeyNotFound(cmd.Key)
	}
	return cmd.Key + ": " + value, nil
}

func (s *Store) del(ctx context.Context, cmd command.Command) (string, error) {
	if _, ok := s.table.Get(cmd.Key); !ok {
		return "", kverrors.KeyNotFound(cmd.Key)
	}
	return s.write(ctx, cmd)
}

// write buffers cmd in the open transaction, or makes it durable in the
// main log before touching the table.
func (s *Store) write(ctx context.Context, cmd command.Command) (string, error) {
	if s.txn.Active() {
		prev, existed := s.table.Get(cmd.Key)
		if err := s.txn.Record(cmd, prev, existed); err != nil {
			return "", err
		}
		s.table.Apply(cmd)
		return RespOK, nil
	}

	text := cmd.String()
	err := s.tracer.TraceStorageOperation(ctx, "append", func(ctx context.Context) error {
		end, err := s.wal.Append(text)
		if err != nil {
			return err
		}
		s.advance(end-int64(len(text))-1, end)
		return nil
	})
	if err != nil {
		return "", err
	}

	s.table.Apply(cmd)
	return RespOK, nil
}

// commit closes the open transaction. When another process appended to
// the log since seen, its lines are applied first and the committed batch
// re-applied after them so the table follows log order.
func (s *Store) commit(ctx context.Context) error {
	batch := s.txn.Buffered()

	id, err := s.txn.Commit(ctx)
	if s.txn.Active() || len(batch) == 0 {
		return err
	}

	end := s.wal.LastEnd()
	if s.advance(end-int64(len(command.Join(batch)))-1, end) {
		for _, c := range batch {
			s.table.Apply(c)
		}
	}

	s.logger.Debug("transaction %d committed with %d entries", id, len(batch))
	return err
}

// advance marks our own append [start, end) as seen, first applying any
// lines other processes wrote before it. It reports whether such lines
// were applied.
func (s *Store) advance(start, end int64) bool {
	if end < s.seen {
		// the append landed in a log shorter than what was already seen
		s.restart()
	}

	caught := false
	if start > s.seen {
		if err := s.catchUp(start); err != nil {
			s.logger.Warn("failed to catch up before own append: %v", err)
		}
		caught = true
	}
	if end > s.seen {
		s.seen = end
	}
	return caught
}

func keyword(line string) string {
	kw, _, _ := strings.Cut(line, " ")
	switch command.Op(kw) {
	case command.OpGet, command.OpSet, command.OpDel, command.OpBegin, command.OpCommit, command.OpRollback:
		return kw
	}
	return "unknown"
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	if t := kverrors.TypeOf(err); t != "" {
		return strings.ToLower(string(t))
	}
	return "error"
}
