package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kverrors "github.com/sajjad-MoBe/logkv/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		errType kverrors.ErrorType
	}{
		{line: "GET key", want: Command{Op: OpGet, Key: "key"}},
		{line: "SET key 1", want: Command{Op: OpSet, Key: "key", Value: "1"}},
		{line: "DEL key", want: Command{Op: OpDel, Key: "key"}},
		{line: "BEGIN", want: Command{Op: OpBegin}},
		{line: "COMMIT", want: Command{Op: OpCommit}},
		{line: "ROLLBACK", want: Command{Op: OpRollback}},

		{line: "GET key 1", errType: kverrors.ErrorTypeArity},
		{line: "SET key", errType: kverrors.ErrorTypeArity},
		{line: "DEL key 1", errType: kverrors.ErrorTypeArity},
		{line: "BEGIN now", errType: kverrors.ErrorTypeArity},
		{line: "SET a  b", errType: kverrors.ErrorTypeArity},
		{line: "GET", errType: kverrors.ErrorTypeArity},

		{line: "get key", errType: kverrors.ErrorTypeParse},
		{line: "PUT key 1", errType: kverrors.ErrorTypeParse},
		{line: "", errType: kverrors.ErrorTypeParse},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			if tt.errType != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errType, kverrors.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.line, got.String())
		})
	}
}

func TestParseEntry(t *testing.T) {
	cmd, err := ParseEntry("SET k v")
	require.NoError(t, err)
	assert.Equal(t, Set("k", "v"), cmd)

	cmd, err = ParseEntry("DEL k")
	require.NoError(t, err)
	assert.Equal(t, Del("k"), cmd)

	for _, line := range []string{"GET k", "BEGIN", "SET k", "garbage"} {
		_, err := ParseEntry(line)
		assert.True(t, kverrors.IsLogFormat(err), line)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "", Join(nil))
	assert.Equal(t, "SET a 1\nDEL b", Join([]Command{Set("a", "1"), Del("b")}))
	assert.True(t, Set("a", "1").IsWrite())
	assert.False(t, Command{Op: OpGet, Key: "a"}.IsWrite())
}
