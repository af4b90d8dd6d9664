package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajjad-MoBe/logkv/internal/config"
	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
	"github.com/sajjad-MoBe/logkv/internal/txn"
)

// setupRecoveryTest lays out files as a previous run left them and
// returns the configuration pointing at them.
func setupRecoveryTest(t *testing.T, log string, ledger string, redo map[uint64]string) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.LogFile = filepath.Join(dir, "data.txt")
	cfg.Prefix = "test"
	cfg.Watch = false
	cfg.Sync = false

	require.NoError(t, os.WriteFile(cfg.LogFile, []byte(log), 0644))
	if ledger != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "test-transactionId.txt"), []byte(ledger), 0644))
	}
	redoLog := txn.NewRedoLog(dir, cfg.Prefix)
	for id, content := range redo {
		require.NoError(t, os.WriteFile(redoLog.Path(id), []byte(content), 0644))
	}
	return cfg
}

func ledgerValue(t *testing.T, cfg config.Config) uint64 {
	ledger, err := txn.NewLedger(cfg.Dir(), cfg.Prefix)
	require.NoError(t, err)
	id, err := ledger.Read()
	require.NoError(t, err)
	return id
}

func TestRecoverReplaysLog(t *testing.T) {
	cfg := setupRecoveryTest(t, "SET a 1\nSET b 2\nDEL a\nSET b 3\n", "", nil)

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"b": "3"}, snapshot(s))
	assert.Equal(t, uint64(0), ledgerValue(t, cfg))
}

func TestRecoverSkipsMalformedAndTornLines(t *testing.T) {
	cfg := setupRecoveryTest(t, "SET a 1\nGARBAGE\nGET a\nSET b 2\nSET c", "", nil)

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, snapshot(s))

	run(s, "SET d 4")
	assert.Equal(t, "SET a 1\nGARBAGE\nGET a\nSET b 2\nSET c\nSET d 4\n", readLog(t, cfg))
	require.NoError(t, s.Close())

	reopened := openStore(t, cfg)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "d": "4"}, snapshot(reopened))
}

func TestRecoverMergesUnloggedTransaction(t *testing.T) {
	// crash after the transaction file was written, before the main log append
	cfg := setupRecoveryTest(t, "SET a 1\n", "0", map[uint64]string{
		1: "SET b 2\nDEL a\n",
	})

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"b": "2"}, snapshot(s))
	assert.Equal(t, "SET a 1\nSET b 2\nDEL a\n", readLog(t, cfg))
	assert.Equal(t, uint64(1), ledgerValue(t, cfg))

	// a second restart changes nothing
	require.NoError(t, s.Close())
	reopened := openStore(t, cfg)
	assert.Equal(t, map[string]string{"b": "2"}, snapshot(reopened))
	assert.Equal(t, "SET a 1\nSET b 2\nDEL a\n", readLog(t, cfg))
}

func TestRecoverAdvancesLedgerOfLoggedTransaction(t *testing.T) {
	// crash after the main log append, before the ledger update
	cfg := setupRecoveryTest(t, "SET a 1\nSET b 2\nDEL a\n", "0", map[uint64]string{
		1: "SET b 2\nDEL a\n",
	})

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"b": "2"}, snapshot(s))
	assert.Equal(t, "SET a 1\nSET b 2\nDEL a\n", readLog(t, cfg), "batch is not appended twice")
	assert.Equal(t, uint64(1), ledgerValue(t, cfg))
}

func TestRecoverSetsLedgerToFileID(t *testing.T) {
	cfg := setupRecoveryTest(t, "SET a 1\nSET b 2\n", "5", map[uint64]string{
		3: "SET old 1\n",
		7: "SET a 1\n",
		9: "SET b 2\n",
	})

	s := openStore(t, cfg)
	assert.Equal(t, uint64(9), ledgerValue(t, cfg))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, snapshot(s), "files at or below the ledger are ignored")

	run(s, "BEGIN", "SET c 3", "COMMIT")
	assert.Equal(t, uint64(10), ledgerValue(t, cfg))
}

func TestRecoverMergesAfterTornTail(t *testing.T) {
	cfg := setupRecoveryTest(t, "SET a 1\nSET k", "0", map[uint64]string{
		1: "SET k v\n",
	})

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"a": "1", "k": "v"}, snapshot(s))
	assert.Equal(t, "SET a 1\nSET k\nSET k v\n", readLog(t, cfg))
}

func TestRecoverKeepsLaterWritesAfterLoggedTransaction(t *testing.T) {
	// the batch reached the log and a later write followed it
	cfg := setupRecoveryTest(t, "SET k v1\nSET k v2\n", "0", map[uint64]string{
		1: "SET k v1\n",
	})

	s := openStore(t, cfg)
	assert.Equal(t, map[string]string{"k": "v2"}, snapshot(s))
	assert.Equal(t, "SET k v1\nSET k v2\n", readLog(t, cfg))
	assert.Equal(t, uint64(1), ledgerValue(t, cfg))

	require.NoError(t, s.Close())
	reopened := openStore(t, cfg)
	assert.Equal(t, map[string]string{"k": "v2"}, snapshot(reopened))
	assert.Equal(t, "SET k v1\nSET k v2\n", readLog(t, cfg))
}

func TestRecoverSearchesFromRecordedOffset(t *testing.T) {
	tests := []struct {
		name    string
		log     string
		redo    string
		wantLog string
		want    map[string]string
	}{
		{
			name:    "batch after offset",
			log:     "SET k v0\nSET k v1\nSET x 1\n",
			redo:    "#offset 9\nSET k v1\n",
			wantLog: "SET k v0\nSET k v1\nSET x 1\n",
			want:    map[string]string{"k": "v1", "x": "1"},
		},
		{
			name:    "same lines only before offset",
			log:     "SET k v1\nSET x 1\n",
			redo:    "#offset 9\nSET k v1\n",
			wantLog: "SET k v1\nSET x 1\nSET k v1\n",
			want:    map[string]string{"k": "v1", "x": "1"},
		},
		{
			name:    "offset past a truncated log",
			log:     "SET a 1\n",
			redo:    "#offset 100\nSET b 2\n",
			wantLog: "SET a 1\nSET b 2\n",
			want:    map[string]string{"a": "1", "b": "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := setupRecoveryTest(t, tt.log, "0", map[uint64]string{1: tt.redo})

			s := openStore(t, cfg)
			assert.Equal(t, tt.want, snapshot(s))
			assert.Equal(t, tt.wantLog, readLog(t, cfg))
			assert.Equal(t, uint64(1), ledgerValue(t, cfg))
		})
	}
}

func TestRecoverMalformedLedger(t *testing.T) {
	cfg := setupRecoveryTest(t, "", "not-a-number", nil)

	_, err := Open(context.Background(), cfg)
	assert.True(t, kverrors.IsLogFormat(err))
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.LogFile = ""

	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
