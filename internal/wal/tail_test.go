package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLastLine(t *testing.T) {
	path := writeTemp(t, "SET a 1\nSET b 2\n")

	line, size, err := LastLine(path)
	require.NoError(t, err)
	assert.Equal(t, "SET b 2", line)
	assert.Equal(t, int64(16), size)
}

func TestLastLineSingleLine(t *testing.T) {
	path := writeTemp(t, "DEL a\r\n")

	line, _, err := LastLine(path)
	require.NoError(t, err)
	assert.Equal(t, "DEL a", line)
}

func TestLastLineEmptyFile(t *testing.T) {
	path := writeTemp(t, "")

	line, size, err := LastLine(path)
	require.NoError(t, err)
	assert.Equal(t, "", line)
	assert.Equal(t, int64(0), size)
}

func TestLastLineIncomplete(t *testing.T) {
	path := writeTemp(t, "SET a 1\nSET b")

	_, size, err := LastLine(path)
	assert.ErrorIs(t, err, ErrIncompleteLine)
	assert.Equal(t, int64(13), size)
}

func TestTailLinesAcrossChunks(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "SET key%d value%d\n", i, i)
	}
	path := writeTemp(t, sb.String())

	lines, _, err := TailLines(path, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"SET key1997 value1997",
		"SET key1998 value1998",
		"SET key1999 value1999",
	}, lines)

	long := strings.Repeat("v", tailChunkSize*2)
	path = writeTemp(t, "SET a 1\nSET big "+long+"\n")
	line, _, err := LastLine(path)
	require.NoError(t, err)
	assert.Equal(t, "SET big "+long, line)
}

func TestTailLinesMoreThanAvailable(t *testing.T) {
	path := writeTemp(t, "SET a 1\nSET b 2\n")

	lines, _, err := TailLines(path, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"SET a 1", "SET b 2"}, lines)

	lines, _, err = TailLines(path, 0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadRange(t *testing.T) {
	content := "SET a 1\nSET b 2\r\n\nDEL a\nSET c"
	path := writeTemp(t, content)

	lines, err := ReadRange(path, 0, int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, []string{"SET a 1", "SET b 2", "DEL a"}, lines, "torn fragment is dropped")

	from := int64(len("SET a 1\n"))
	lines, err = ReadRange(path, from, from+int64(len("SET b 2\r\n")))
	require.NoError(t, err)
	assert.Equal(t, []string{"SET b 2"}, lines)

	lines, err = ReadRange(path, 5, 5)
	require.NoError(t, err)
	assert.Empty(t, lines)

	lines, err = ReadRange(path, 0, 1<<20)
	require.NoError(t, err)
	assert.Len(t, lines, 3, "reading past the end returns what exists")
}
