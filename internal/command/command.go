// Package command parses and renders the line protocol shared by the
// dispatcher and every log file.
package command

import (
	"strings"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

// Op is a protocol keyword
type Op string

const (
	OpGet      Op = "GET"
	OpSet      Op = "SET"
	OpDel      Op = "DEL"
	OpBegin    Op = "BEGIN"
	OpCommit   Op = "COMMIT"
	OpRollback Op = "ROLLBACK"
)

// arity is the exact token count of each keyword, keyword included.
var arity = map[Op]int{
	OpGet:      2,
	OpSet:      3,
	OpDel:      2,
	OpBegin:    1,
	OpCommit:   1,
	OpRollback: 1,
}

// Command is one parsed protocol line
type Command struct {
	Op    Op
	Key   string
	Value string
}

// Set builds a SET command
func Set(key, value string) Command {
	return Command{Op: OpSet, Key: key, Value: value}
}

// Del builds a DEL command
func Del(key string) Command {
	return Command{Op: OpDel, Key: key}
}

// Parse splits line on single spaces and validates the keyword and arity.
func Parse(line string) (Command, error) {
	tokens := strings.Split(line, " ")
	op := Op(tokens[0])

	want, ok := arity[op]
	if !ok {
		return Command{}, kverrors.UnknownCommand(tokens[0])
	}
	if len(tokens) != want {
		return Command{}, kverrors.InvalidArity(tokens[0], len(tokens))
	}

	cmd := Command{Op: op}
	if want >= 2 {
		cmd.Key = tokens[1]
	}
	if want == 3 {
		cmd.Value = tokens[2]
	}
	return cmd, nil
}

// ParseEntry parses a persisted log line, which must be a SET or DEL.
func ParseEntry(line string) (Command, error) {
	cmd, err := Parse(line)
	if err != nil || !cmd.IsWrite() {
		return Command{}, kverrors.LogFormat(line)
	}
	return cmd, nil
}

// IsWrite reports whether the command mutates the table
func (c Command) IsWrite() bool {
	return c.Op == OpSet || c.Op == OpDel
}

// String renders the command in its wire form
func (c Command) String() string {
	switch c.Op {
	case OpSet:
		return string(c.Op) + " " + c.Key + " " + c.Value
	case OpGet, OpDel:
		return string(c.Op) + " " + c.Key
	default:
		return string(c.Op)
	}
}

// Join renders commands as newline-separated lines without a trailing newline
func Join(cmds []Command) string {
	lines := make([]string, len(cmds))
	for i, c := range cmds {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}
