package store

import (
	"context"

	"github.com/sajjad-MoBe/logkv/internal/command"
	"github.com/sajjad-MoBe/logkv/internal/txn"
	"github.com/sajjad-MoBe/logkv/internal/wal"
)

// rebuild reconstructs the table. Transaction files newer than the ledger are
// applied and the ledger advanced past each of them; the newest one is
// appended to the main log if a crash cut the commit short before its
// batch reached the log. The main log is then replayed in full.
func (s *Store) rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tracer.TraceStorageOperation(ctx, "recover", func(ctx context.Context) error {
		last, err := s.ledger.Read()
		if err != nil {
			return err
		}

		pending, err := s.redo.Pending(last)
		if err != nil {
			return err
		}

		for i, file := range pending {
			rec, err := s.redo.Read(file.Path)
			if err != nil {
				return err
			}
			for _, cmd := range rec.Entries {
				s.table.Apply(cmd)
			}
			s.metrics.RecordRecovered("transaction", len(rec.Entries))

			if i == len(pending)-1 {
				if err := s.mergeRedo(file, rec); err != nil {
					return err
				}
			}
			if err := s.ledger.Write(file.ID); err != nil {
				return err
			}
			s.logger.Info("recovered transaction %d with %d entries", file.ID, len(rec.Entries))
		}

		var skipped int
		res, err := s.wal.Replay(func(line string) error {
			cmd, err := command.ParseEntry(line)
			if err != nil {
				skipped++
				s.logger.Warn("skipping malformed log line %q", line)
				return nil
			}
			s.table.Apply(cmd)
			return nil
		})
		if err != nil {
			return err
		}
		if res.Torn != "" {
			s.metrics.RecordSkip("torn")
			s.logger.Warn("ignoring unterminated last line of %s: %q", s.wal.Path(), res.Torn)
		}
		if skipped > 0 {
			s.metrics.RecordSkip("malformed")
		}

		s.seen = res.Offset
		s.metrics.RecordRecovered("log", res.Lines-skipped)
		s.metrics.SetTableKeys(s.table.Len())
		s.tracer.AddSpanEvent(ctx, "replayed")
		s.logger.Info("loaded %d keys from %s", s.table.Len(), s.wal.Path())
		return nil
	})
}

// mergeRedo appends the entries of a recovered transaction to the main
// log unless they already appear there as a contiguous block at or after
// the offset recorded in the transaction file. Files without an offset
// are searched for across the whole log.
func (s *Store) mergeRedo(file txn.RedoFile, rec txn.Record) error {
	if len(rec.Entries) == 0 {
		return nil
	}

	size, err := s.wal.Size()
	if err != nil {
		return err
	}
	from := max(rec.Offset, 0)
	lines, err := wal.ReadRange(s.wal.Path(), from, size)
	if err != nil {
		return err
	}
	if containsBlock(lines, rec.Entries) {
		return nil
	}

	if _, err := s.wal.Append(command.Join(rec.Entries)); err != nil {
		return err
	}
	s.logger.Warn("transaction %d was missing from %s, appended %d entries", file.ID, s.wal.Path(), len(rec.Entries))
	return nil
}

// containsBlock reports whether entries occur as consecutive lines
func containsBlock(lines []string, entries []command.Command) bool {
	for i := 0; i+len(entries) <= len(lines); i++ {
		if sameEntries(lines[i:i+len(entries)], entries) {
			return true
		}
	}
	return false
}

func sameEntries(lines []string, entries []command.Command) bool {
	if len(lines) != len(entries) {
		return false
	}
	for i, line := range lines {
		cmd, err := command.ParseEntry(line)
		if err != nil || cmd != entries[i] {
			return false
		}
	}
	return true
}
