package txn

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

// Ledger persists the id of the last transaction whose redo log has been
// recorded and merged into the main log.
type Ledger struct {
	path string
}

// NewLedger returns the ledger stored in dir under prefix, creating it
// with value 0 if it does not exist.
func NewLedger(dir, prefix string) (*Ledger, error) {
	l := &Ledger{path: filepath.Join(dir, prefixed(prefix, "transactionId.txt"))}

	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		if err := l.Write(0); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, kverrors.IO("failed to stat ledger", err)
	}
	return l, nil
}

// Path returns the ledger file path
func (l *Ledger) Path() string {
	return l.path
}

// Read returns the persisted id; a missing file reads as 0.
func (l *Ledger) Read() (uint64, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, kverrors.IO("failed to read ledger", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, kverrors.New(kverrors.ErrorTypeLogFormat, fmt.Sprintf("malformed ledger value %q", text), err)
	}
	return id, nil
}

// Write replaces the persisted id. The value is written to a sibling
// temp file and renamed into place so a crash never leaves a torn value.
func (l *Ledger) Write(id uint64) error {
	tmp := l.path + ".tmp"
	if err := writeFileSync(tmp, []byte(strconv.FormatUint(id, 10))); err != nil {
		return kverrors.IO("failed to write ledger", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return kverrors.IO("failed to replace ledger", err)
	}
	return nil
}

func prefixed(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

func writeFileSync(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
