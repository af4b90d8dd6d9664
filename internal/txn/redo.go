package txn

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sajjad-MoBe/logkv/internal/command"
	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
	"github.com/sajjad-MoBe/logkv/internal/wal"
)

// RedoLog manages per-transaction redo files named
// <prefix>-transaction-<id>.txt in one directory.
type RedoLog struct {
	dir    string
	prefix string
}

// offsetMarker starts the header line holding the main log size observed
// before the batch was appended. It is not a write entry, so readers that
// only apply SET and DEL lines skip it.
const offsetMarker = "#offset "

// RedoFile is one per-transaction log on disk
type RedoFile struct {
	ID   uint64
	Path string
}

// Record is the content of a redo file
type Record struct {
	Entries []command.Command
	// Offset is the main log size before the batch was appended, or -1
	// when the file does not say.
	Offset int64
}

// NewRedoLog creates a redo log rooted at dir
func NewRedoLog(dir, prefix string) *RedoLog {
	return &RedoLog{dir: dir, prefix: prefix}
}

// Path returns the file name used for transaction id
func (r *RedoLog) Path(id uint64) string {
	return filepath.Join(r.dir, prefixed(r.prefix, fmt.Sprintf("transaction-%d.txt", id)))
}

// Write stores the redo entries of transaction id, one per line. A
// non-negative offset is recorded as a header line.
func (r *RedoLog) Write(id uint64, offset int64, entries []command.Command) error {
	data := command.Join(entries) + "\n"
	if offset >= 0 {
		data = offsetMarker + strconv.FormatInt(offset, 10) + "\n" + data
	}
	if err := writeFileSync(r.Path(id), []byte(data)); err != nil {
		return kverrors.IO(fmt.Sprintf("failed to write transaction log %d", id), err)
	}
	return nil
}

// Remove deletes the redo file of transaction id, if present
func (r *RedoLog) Remove(id uint64) error {
	if err := os.Remove(r.Path(id)); err != nil && !os.IsNotExist(err) {
		return kverrors.IO(fmt.Sprintf("failed to remove transaction log %d", id), err)
	}
	return nil
}

// Read returns the SET/DEL entries of a redo file and its recorded log
// offset. Other lines are skipped.
func (r *RedoLog) Read(path string) (Record, error) {
	rec := Record{Offset: -1}
	_, err := wal.Scan(path, func(line string) error {
		if text, ok := strings.CutPrefix(line, offsetMarker); ok {
			if offset, err := strconv.ParseInt(text, 10, 64); err == nil && offset >= 0 {
				rec.Offset = offset
			}
			return nil
		}
		if cmd, err := command.ParseEntry(line); err == nil {
			rec.Entries = append(rec.Entries, cmd)
		}
		return nil
	})
	return rec, err
}

// Pending lists redo files whose id is greater than after, ascending by id.
func (r *RedoLog) Pending(after uint64) ([]RedoFile, error) {
	pattern := filepath.Join(r.dir, prefixed(r.prefix, "transaction-*.txt"))
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, kverrors.IO("failed to list transaction logs", err)
	}

	head := prefixed(r.prefix, "transaction-")
	var files []RedoFile
	for _, p := range paths {
		name := filepath.Base(p)
		idText := strings.TrimSuffix(strings.TrimPrefix(name, head), ".txt")
		id, err := strconv.ParseUint(idText, 10, 64)
		if err != nil {
			// another prefix sharing the directory, e.g. "a" vs "a-b"
			continue
		}
		if id > after {
			files = append(files, RedoFile{ID: id, Path: p})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ID < files[j].ID
	})
	return files, nil
}
