package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Replay the log and print every key in ascending order",
	RunE:  runDump,
}

// ranger walks keys in ascending order
type ranger interface {
	Range(fn func(key, value string) bool)
}

func runDump(cmd *cobra.Command, args []string) error {
	c := cfg
	c.Watch = false

	s, closeStore, err := openStore(cmd.Context(), c)
	if err != nil {
		return err
	}

	err = dump(s, cmd.OutOrStdout())
	return multierr.Append(err, closeStore())
}

func dump(s ranger, out io.Writer) error {
	var err error
	s.Range(func(key, value string) bool {
		_, err = fmt.Fprintf(out, "%s: %s\n", key, value)
		return err == nil
	})
	return err
}
