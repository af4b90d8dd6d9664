package wal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

// ErrIncompleteLine is returned when the file does not end with a line
// terminator, i.e. a writer is still in the middle of an append.
var ErrIncompleteLine = errors.New("wal: last line is not terminated")

const tailChunkSize = 4096

// TailLines returns up to n complete lines from the end of path, oldest
// first, and the file size they were read at. The file is scanned
// backwards in fixed-size chunks and never read in full unless it is
// shorter than the requested tail.
func TailLines(path string, n int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, kverrors.IO("failed to open "+path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, 0, kverrors.IO("failed to stat "+path, err)
	}
	size := info.Size()
	if size == 0 || n <= 0 {
		return nil, size, nil
	}

	var buf []byte
	pos := size
	for pos > 0 {
		readSize := int64(tailChunkSize)
		if pos < readSize {
			readSize = pos
		}
		pos -= readSize

		chunk := make([]byte, readSize)
		if _, err := file.ReadAt(chunk, pos); err != nil {
			return nil, size, kverrors.IO("failed to read "+path, err)
		}
		buf = append(chunk, buf...)

		if buf[len(buf)-1] != '\n' {
			return nil, size, ErrIncompleteLine
		}
		// n terminators plus the one ending the line before them
		if bytes.Count(buf, []byte{'\n'}) > n {
			break
		}
	}

	lines := strings.Split(string(buf[:len(buf)-1]), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines, size, nil
}

// LastLine returns the final complete line of path and the file size.
func LastLine(path string) (string, int64, error) {
	lines, size, err := TailLines(path, 1)
	if err != nil || len(lines) == 0 {
		return "", size, err
	}
	return lines[0], size, nil
}

// ReadRange returns the non-empty lines stored in [from, to) of path.
// Both offsets are expected to sit on line boundaries; a trailing
// fragment without terminator is dropped.
func ReadRange(path string, from, to int64) ([]string, error) {
	if to <= from {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, kverrors.IO("failed to open "+path, err)
	}
	defer file.Close()

	buf := make([]byte, to-from)
	n, err := file.ReadAt(buf, from)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, kverrors.IO("failed to read "+path, err)
	}
	buf = buf[:n]

	if i := bytes.LastIndexByte(buf, '\n'); i >= 0 {
		buf = buf[:i+1]
	} else {
		return nil, nil
	}

	var lines []string
	for _, l := range strings.Split(string(buf[:len(buf)-1]), "\n") {
		if l = strings.TrimRight(l, "\r"); l != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}
